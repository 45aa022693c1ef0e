package kernel_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/agentmodel"
	"github.com/agentcore/agentcore/agenttools"
	"github.com/agentcore/agentcore/cacheboundary"
	"github.com/agentcore/agentcore/economics"
	"github.com/agentcore/agentcore/journal"
	"github.com/agentcore/agentcore/journal/inmem"
	"github.com/agentcore/agentcore/kernel"
	"github.com/agentcore/agentcore/resilience"
	"github.com/agentcore/agentcore/telemetry"
	"github.com/agentcore/agentcore/trace"
)

// scriptedProvider returns canned responses in order, separately for
// ChatWithTools (responses) and Chat (chatResps), and records which method
// was invoked on each call for assertions about the forced-text-only path.
type scriptedProvider struct {
	name      string
	responses []agentmodel.ChatWithToolsResponse
	chatResps []agentmodel.ChatResponse
	errs      []error
	calls     int
	toolsSeen int
	chatSeen  int
	callKinds []string // "chat" | "tools", one entry appended per call, in order
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Chat(_ context.Context, _ []agentmodel.Message, _ agentmodel.ChatOptions) (agentmodel.ChatResponse, error) {
	i := p.chatSeen
	p.chatSeen++
	p.calls++
	p.callKinds = append(p.callKinds, "chat")
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	if i < len(p.chatResps) {
		return p.chatResps[i], err
	}
	return agentmodel.ChatResponse{}, err
}

func (p *scriptedProvider) ChatWithTools(_ context.Context, _ []agentmodel.Message, _ []agentmodel.ToolDescriptor, _ agentmodel.ChatOptions) (agentmodel.ChatWithToolsResponse, error) {
	i := p.toolsSeen
	p.toolsSeen++
	p.calls++
	p.callKinds = append(p.callKinds, "tools")
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], err
	}
	return agentmodel.ChatWithToolsResponse{}, err
}

func newTestKernel(t *testing.T, provider agentmodel.Provider, budgetCfg economics.Config, kcfg kernel.Config) (*kernel.Kernel, *economics.Tracker) {
	t.Helper()
	tel := telemetry.Noop()
	chain := resilience.NewChain(tel, resilience.ChainProvider{
		Name:    "primary",
		Breaker: resilience.NewBreaker(resilience.CircuitConfig{}, tel),
		Retry:   resilience.RetryConfig{MaxAttempts: 1},
	})
	budget := economics.New(budgetCfg, tel)
	cache := cacheboundary.NewTracker(cacheboundary.Config{})
	store := inmem.New()
	jr := journal.New(store, journal.OSFileSystem{}, journal.Config{}, tel, "sess-1")
	collector := trace.New("sess-1", discardWriter{}, cache, trace.PricingTable{}, tel)
	tools := agenttools.NewRegistry()

	k := kernel.New("sess-1", "you are a test agent", kcfg, chain,
		map[string]agentmodel.Provider{"primary": provider}, budget, cache, jr, collector, tools, tel)
	return k, budget
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRunEndsWhenModelStopsRequestingTools(t *testing.T) {
	provider := &scriptedProvider{
		name: "primary",
		responses: []agentmodel.ChatWithToolsResponse{
			{
				Content:    []agentmodel.Part{agentmodel.TextPart{Text: "done"}},
				StopReason: agentmodel.StopEndTurn,
				Usage:      agentmodel.Usage{InputTokens: 100, OutputTokens: 20},
			},
		},
	}
	k, _ := newTestKernel(t, provider, economics.Config{MaxTokens: 100000}, kernel.Config{Model: "test-model"})

	result := k.Run(context.Background(), "say hello")
	require.NoError(t, result.Err)
	assert.Equal(t, kernel.TerminationDone, result.Termination)
	assert.Equal(t, "done", result.FinalText)
	assert.Equal(t, 1, provider.calls)
}

func TestRunDispatchesToolCallsAcrossIterations(t *testing.T) {
	echoTool := &agenttools.Tool{
		Name:        "echo",
		Description: "echoes its input",
		Danger:      agenttools.DangerSafe,
		Execute: func(_ agenttools.ExecContext, args json.RawMessage) (agenttools.Result, error) {
			return agenttools.Result{Success: true, Output: string(args)}, nil
		},
	}

	provider := &scriptedProvider{
		name: "primary",
		responses: []agentmodel.ChatWithToolsResponse{
			{
				Content:    []agentmodel.Part{agentmodel.ToolUsePart{ID: "call-1", Name: "echo", Input: map[string]any{"msg": "hi"}}},
				ToolCalls:  []agentmodel.ToolCall{{ID: "call-1", Name: "echo", Args: map[string]any{"msg": "hi"}}},
				StopReason: agentmodel.StopToolUse,
				Usage:      agentmodel.Usage{InputTokens: 100, OutputTokens: 10},
			},
			{
				Content:    []agentmodel.Part{agentmodel.TextPart{Text: "all done"}},
				StopReason: agentmodel.StopEndTurn,
				Usage:      agentmodel.Usage{InputTokens: 120, OutputTokens: 15},
			},
		},
	}

	tools := agenttools.NewRegistry()
	require.NoError(t, tools.Register(echoTool))

	k, budget := newTestKernelWithTools(t, provider, tools, economics.Config{MaxTokens: 100000})

	result := k.Run(context.Background(), "echo hi")
	require.NoError(t, result.Err)
	assert.Equal(t, kernel.TerminationDone, result.Termination)
	assert.Equal(t, "all done", result.FinalText)
	assert.Equal(t, 2, provider.calls)
	assert.Equal(t, 1, budget.Usage().ToolCalls)
}

func newTestKernelWithTools(t *testing.T, provider agentmodel.Provider, tools *agenttools.Registry, budgetCfg economics.Config) (*kernel.Kernel, *economics.Tracker) {
	t.Helper()
	tel := telemetry.Noop()
	chain := resilience.NewChain(tel, resilience.ChainProvider{
		Name:    "primary",
		Breaker: resilience.NewBreaker(resilience.CircuitConfig{}, tel),
		Retry:   resilience.RetryConfig{MaxAttempts: 1},
	})
	budget := economics.New(budgetCfg, tel)
	cache := cacheboundary.NewTracker(cacheboundary.Config{})
	store := inmem.New()
	jr := journal.New(store, journal.OSFileSystem{}, journal.Config{}, tel, "sess-2")
	collector := trace.New("sess-2", discardWriter{}, cache, trace.PricingTable{}, tel)

	k := kernel.New("sess-2", "you are a test agent", kernel.Config{Model: "test-model"}, chain,
		map[string]agentmodel.Provider{"primary": provider}, budget, cache, jr, collector, tools, tel)
	return k, budget
}

func TestRunTerminatesOnHardBudget(t *testing.T) {
	provider := &scriptedProvider{
		name: "primary",
		responses: []agentmodel.ChatWithToolsResponse{
			{
				Content:    []agentmodel.Part{agentmodel.TextPart{Text: "still going"}},
				StopReason: agentmodel.StopEndTurn,
				Usage:      agentmodel.Usage{InputTokens: 90000, OutputTokens: 20000},
			},
		},
	}
	k, _ := newTestKernel(t, provider, economics.Config{MaxTokens: 50000, EnforcementMode: economics.ModeStrict}, kernel.Config{Model: "test-model"})

	result := k.Run(context.Background(), "burn budget")
	require.NoError(t, result.Err)
	assert.Equal(t, kernel.TerminationBudgetHard, result.Termination)
}

func TestRunTerminatesOnToolCallCap(t *testing.T) {
	countingTool := &agenttools.Tool{
		Name:   "bump",
		Danger: agenttools.DangerSafe,
		Execute: func(_ agenttools.ExecContext, _ json.RawMessage) (agenttools.Result, error) {
			return agenttools.Result{Success: true, Output: "ok"}, nil
		},
	}
	tools := agenttools.NewRegistry()
	require.NoError(t, tools.Register(countingTool))

	toolCallResp := agentmodel.ChatWithToolsResponse{
		Content:    []agentmodel.Part{agentmodel.ToolUsePart{ID: "c", Name: "bump"}},
		ToolCalls:  []agentmodel.ToolCall{{ID: "c", Name: "bump"}},
		StopReason: agentmodel.StopToolUse,
		Usage:      agentmodel.Usage{InputTokens: 10, OutputTokens: 5},
	}
	provider := &scriptedProvider{
		name: "primary",
		responses: []agentmodel.ChatWithToolsResponse{
			toolCallResp, toolCallResp, toolCallResp,
		},
	}

	tel := telemetry.Noop()
	chain := resilience.NewChain(tel, resilience.ChainProvider{
		Name:    "primary",
		Breaker: resilience.NewBreaker(resilience.CircuitConfig{}, tel),
		Retry:   resilience.RetryConfig{MaxAttempts: 1},
	})
	budget := economics.New(economics.Config{MaxTokens: 1000000}, tel)
	cache := cacheboundary.NewTracker(cacheboundary.Config{})
	jr := journal.New(inmem.New(), journal.OSFileSystem{}, journal.Config{}, tel, "sess-3")
	collector := trace.New("sess-3", discardWriter{}, cache, trace.PricingTable{}, tel)

	k := kernel.New("sess-3", "sys", kernel.Config{Model: "test-model", MaxToolCalls: 1}, chain,
		map[string]agentmodel.Provider{"primary": provider}, budget, cache, jr, collector, tools, tel)

	result := k.Run(context.Background(), "loop forever")
	require.NoError(t, result.Err)
	assert.Equal(t, kernel.TerminationToolCap, result.Termination)
}

func TestFirstIterationNeverHonorsForceTextOnly(t *testing.T) {
	// A single call whose own usage clears the 80%-of-hard-tokens
	// escalation threshold (spec §4.2) would normally force text-only for
	// every later call in the session. Because this is the session's very
	// first completed call, neither economics.Check(isFirstIteration=true)
	// nor the kernel's own independent guard (spec §5) may let that verdict
	// take effect for the call that produced it: it must still have been
	// issued through ChatWithTools, not the forced-text-only Chat path.
	provider := &scriptedProvider{
		name: "primary",
		responses: []agentmodel.ChatWithToolsResponse{
			{
				Content:    []agentmodel.Part{agentmodel.TextPart{Text: "first"}},
				StopReason: agentmodel.StopEndTurn,
				// 85000 clears 80% of a 100000 hard token limit.
				Usage: agentmodel.Usage{InputTokens: 85000, OutputTokens: 0},
			},
		},
	}

	k, _ := newTestKernel(t, provider, economics.Config{MaxTokens: 100000, SoftTokenLimit: 40000}, kernel.Config{Model: "test-model"})
	result := k.Run(context.Background(), "go")
	require.NoError(t, result.Err)
	assert.Equal(t, kernel.TerminationDone, result.Termination)
	require.Len(t, provider.callKinds, 1)
	assert.Equal(t, "tools", provider.callKinds[0])
}

// TestForceTextOnlyLatchesOnceFirstCallHasCompleted is the mirror case: once
// a call has genuinely completed (it is no longer "before any LLM call"),
// crossing the same threshold legitimately forces every later call in the
// session onto the text-only path.
func TestForceTextOnlyLatchesOnceFirstCallHasCompleted(t *testing.T) {
	bumpTool := &agenttools.Tool{
		Name:   "bump",
		Danger: agenttools.DangerSafe,
		Execute: func(_ agenttools.ExecContext, _ json.RawMessage) (agenttools.Result, error) {
			return agenttools.Result{Success: true, Output: "ok"}, nil
		},
	}
	tools := agenttools.NewRegistry()
	require.NoError(t, tools.Register(bumpTool))

	provider := &scriptedProvider{
		name: "primary",
		responses: []agentmodel.ChatWithToolsResponse{
			{
				Content:    []agentmodel.Part{agentmodel.ToolUsePart{ID: "c", Name: "bump"}},
				ToolCalls:  []agentmodel.ToolCall{{ID: "c", Name: "bump"}},
				StopReason: agentmodel.StopToolUse,
				Usage:      agentmodel.Usage{InputTokens: 85000, OutputTokens: 0},
			},
		},
		chatResps: []agentmodel.ChatResponse{
			{Content: []agentmodel.Part{agentmodel.TextPart{Text: "wrapping up"}}, StopReason: agentmodel.StopEndTurn},
		},
	}

	k, _ := newTestKernelWithTools(t, provider, tools, economics.Config{MaxTokens: 100000, SoftTokenLimit: 40000})
	result := k.Run(context.Background(), "go")
	require.NoError(t, result.Err)
	assert.Equal(t, kernel.TerminationDone, result.Termination)
	require.Len(t, provider.callKinds, 2)
	assert.Equal(t, "tools", provider.callKinds[0])
	assert.Equal(t, "chat", provider.callKinds[1])
}

func TestUnknownToolReturnsRetryHintThenSurfacesAfterExhaustion(t *testing.T) {
	tools := agenttools.NewRegistry()

	toolCallResp := agentmodel.ChatWithToolsResponse{
		Content:    []agentmodel.Part{agentmodel.ToolUsePart{ID: "c", Name: "missing_tool"}},
		ToolCalls:  []agentmodel.ToolCall{{ID: "c", Name: "missing_tool"}},
		StopReason: agentmodel.StopToolUse,
		Usage:      agentmodel.Usage{InputTokens: 10, OutputTokens: 5},
	}
	finalResp := agentmodel.ChatWithToolsResponse{
		Content:    []agentmodel.Part{agentmodel.TextPart{Text: "gave up"}},
		StopReason: agentmodel.StopEndTurn,
		Usage:      agentmodel.Usage{InputTokens: 10, OutputTokens: 5},
	}
	provider := &scriptedProvider{
		name:      "primary",
		responses: []agentmodel.ChatWithToolsResponse{toolCallResp, toolCallResp, toolCallResp, finalResp},
	}

	tel := telemetry.Noop()
	chain := resilience.NewChain(tel, resilience.ChainProvider{
		Name:    "primary",
		Breaker: resilience.NewBreaker(resilience.CircuitConfig{}, tel),
		Retry:   resilience.RetryConfig{MaxAttempts: 1},
	})
	budget := economics.New(economics.Config{MaxTokens: 1000000}, tel)
	cache := cacheboundary.NewTracker(cacheboundary.Config{})
	jr := journal.New(inmem.New(), journal.OSFileSystem{}, journal.Config{}, tel, "sess-4")
	collector := trace.New("sess-4", discardWriter{}, cache, trace.PricingTable{}, tel)

	k := kernel.New("sess-4", "sys", kernel.Config{Model: "test-model", MaxInputRetries: 2}, chain,
		map[string]agentmodel.Provider{"primary": provider}, budget, cache, jr, collector, tools, tel)

	result := k.Run(context.Background(), "call a tool that does not exist")
	require.NoError(t, result.Err)
	assert.Equal(t, kernel.TerminationDone, result.Termination)
	assert.Equal(t, "gave up", result.FinalText)
	assert.Equal(t, 4, provider.calls)
}

func TestCancelPropagatesToChild(t *testing.T) {
	root := kernel.NewCancelSource()
	child := root.Child()

	root.Cancel("shutting down")

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("expected child to observe parent cancellation")
	}
	require.Error(t, child.Err())
	assert.True(t, agenttools.IsClass(child.Err(), agenttools.ClassPolicy))
}

func TestCancelIsIdempotentAndKeepsFirstReason(t *testing.T) {
	c := kernel.NewCancelSource()
	c.Cancel("first")
	c.Cancel("second")
	assert.Contains(t, c.Err().Error(), "first")
}
