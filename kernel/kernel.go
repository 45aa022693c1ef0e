package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/agentcore/agentmodel"
	"github.com/agentcore/agentcore/agenttools"
	"github.com/agentcore/agentcore/cacheboundary"
	"github.com/agentcore/agentcore/economics"
	"github.com/agentcore/agentcore/journal"
	"github.com/agentcore/agentcore/plan"
	"github.com/agentcore/agentcore/resilience"
	"github.com/agentcore/agentcore/telemetry"
	"github.com/agentcore/agentcore/trace"
)

// Kernel is one session's K instance: it runs sequentially per spec §5 (no
// two LLM calls from the same session execute concurrently), driving the
// control flow spec §2 describes: build request -> R.call -> O.record ->
// apply tool via U -> B.check -> continue.
type Kernel struct {
	sessionID    string
	systemPrompt string
	cfg          Config
	chain        *resilience.Chain
	providers    map[string]agentmodel.Provider
	budget       *economics.Tracker
	cache        *cacheboundary.Tracker
	journal      *journal.Journal
	trace        *trace.Collector
	tools        *agenttools.Registry
	tel          telemetry.Bundle
	confirm      Confirm

	// pendingPlan, when set, intercepts every non-safe tool call instead
	// of executing it, per spec §4.8's plan-mode write interception.
	pendingPlan *plan.PendingPlan

	cancel *CancelSource

	messages      []agentmodel.Message
	iteration     int
	turnNumber    int
	toolCallsUsed int
	retryCounts   map[string]int

	// forceTextOnly latches once B has requested text-only mode (spec
	// §4.2's 80% escalation or a hard stop in doomloop_only mode); the
	// kernel itself additionally refuses to honor it before firstCallSettled,
	// per spec §5's first-iteration guard, regardless of what B reports.
	forceTextOnly    bool
	firstCallSettled bool
}

// New constructs a Kernel for one session. pool is consulted lazily via
// Spawn, not at construction time.
func New(
	sessionID, systemPrompt string,
	cfg Config,
	chain *resilience.Chain,
	providers map[string]agentmodel.Provider,
	budget *economics.Tracker,
	cache *cacheboundary.Tracker,
	jr *journal.Journal,
	tc *trace.Collector,
	tools *agenttools.Registry,
	tel telemetry.Bundle,
) *Kernel {
	return &Kernel{
		sessionID:    sessionID,
		systemPrompt: systemPrompt,
		cfg:          cfg.withDefaults(),
		chain:        chain,
		providers:    providers,
		budget:       budget,
		cache:        cache,
		journal:      jr,
		trace:        tc,
		tools:        tools,
		tel:          telemetry.WithDefaults(tel),
		cancel:       NewCancelSource(),
		retryCounts:  make(map[string]int),
	}
}

// WithConfirm installs a confirmation gate consulted before any tool call
// classified above DangerSafe executes, when Config.ConfirmBeforeExecute
// is set.
func (k *Kernel) WithConfirm(fn Confirm) *Kernel {
	k.confirm = fn
	return k
}

// WithPlan puts the kernel into plan mode: every non-safe tool call is
// queued on p instead of executed, per spec §4.8.
func (k *Kernel) WithPlan(p *plan.PendingPlan) *Kernel {
	k.pendingPlan = p
	return k
}

// Cancel cancels this session and every descendant created via Spawn, per
// spec §5's hierarchical cancellation model.
func (k *Kernel) Cancel(reason string) {
	k.cancel.Cancel(reason)
}

// stepOutcome is the internal result of one loop iteration.
type stepOutcome struct {
	done      bool
	terminate TerminationReason
	finalText string
}

// Run drives the agent loop until the task completes, a budget verdict
// stops it, the tool-call cap is reached, the iteration's hard deadline
// passes, or the session is cancelled. Grounded directly on the teacher's
// workflowLoop.run(): check interrupts/cancellation, check deadlines,
// otherwise run one turn and loop.
func (k *Kernel) Run(ctx context.Context, task string) *Result {
	_ = k.trace.SessionStart(ctx)
	k.messages = append(k.messages, agentmodel.Message{
		Role:    agentmodel.RoleUser,
		Content: []agentmodel.Part{agentmodel.TextPart{Text: task}},
	})

	for {
		if err := ctx.Err(); err != nil {
			return k.finish(ctx, TerminationCancelled, "", err)
		}
		select {
		case <-k.cancel.Done():
			return k.finish(ctx, TerminationCancelled, "", k.cancel.Err())
		default:
		}

		dl := IterationDeadlines{FinalizerGrace: k.cfg.FinalizerGrace}
		if k.cfg.SoftIterationTimeout > 0 {
			dl.Soft = time.Now().Add(k.cfg.SoftIterationTimeout)
		}
		if k.cfg.HardIterationTimeout > 0 {
			dl.Hard = time.Now().Add(k.cfg.HardIterationTimeout)
		}

		iterNum := k.budget.BeginIteration()
		k.trace.IterationStart(ctx)

		outcome, err := k.step(ctx, &dl)

		if endErr := k.trace.IterationEnd(ctx, iterNum); endErr != nil {
			k.tel.Logger.Warn(ctx, "kernel: iteration end record failed", "err", endErr)
		}

		if err != nil {
			_ = k.trace.RecordError(ctx, trace.ErrorPayload{Class: errorClass(err), Message: err.Error()})
			return k.finish(ctx, TerminationError, "", err)
		}
		if outcome.done {
			return k.finish(ctx, TerminationDone, outcome.finalText, nil)
		}
		if outcome.terminate != "" {
			return k.finish(ctx, outcome.terminate, outcome.finalText, nil)
		}
		k.iteration++
	}
}

func errorClass(err error) string {
	for _, c := range []agenttools.Class{
		agenttools.ClassTransient, agenttools.ClassPolicy, agenttools.ClassInput,
		agenttools.ClassDurability, agenttools.ClassInternal,
	} {
		if agenttools.IsClass(err, c) {
			return string(c)
		}
	}
	return string(agenttools.ClassInternal)
}

func (k *Kernel) finish(ctx context.Context, reason TerminationReason, text string, err error) *Result {
	_ = k.trace.SessionEnd(ctx)
	return &Result{Termination: reason, FinalText: text, Iterations: k.iteration, Err: err}
}

// step runs exactly one R.call -> O.record -> tool dispatch -> B.check
// cycle (spec §2's "single iteration of K").
func (k *Kernel) step(ctx context.Context, dl *IterationDeadlines) (stepOutcome, error) {
	now := time.Now()
	if dl.ShouldFinalize(now) {
		return stepOutcome{terminate: TerminationTimeBudget}, nil
	}
	if k.cfg.MaxToolCalls > 0 && k.toolCallsUsed >= k.cfg.MaxToolCalls {
		return stepOutcome{terminate: TerminationToolCap}, nil
	}

	isFirst := !k.firstCallSettled
	resp, err := k.callLLM(ctx, isFirst)
	if err != nil {
		return stepOutcome{}, err
	}
	k.firstCallSettled = true

	verdict := k.budget.Check(isFirst)
	if !verdict.CanContinue {
		return stepOutcome{terminate: TerminationBudgetHard, finalText: extractText(resp.Content)}, nil
	}
	// First-iteration guard: spec §5 requires K itself, not B, to refuse
	// forceTextOnly before any LLM call has completed this session.
	if verdict.ForceTextOnly && !isFirst {
		k.forceTextOnly = true
	}

	k.messages = append(k.messages, agentmodel.Message{Role: agentmodel.RoleAssistant, Content: resp.Content})

	if len(resp.ToolCalls) == 0 {
		return stepOutcome{done: true, finalText: extractText(resp.Content)}, nil
	}

	results := k.dispatchToolCalls(ctx, resp.ToolCalls, dl)
	k.messages = append(k.messages, agentmodel.Message{Role: agentmodel.RoleUser, Content: results})

	if end := time.Now(); dl.ShouldFinalize(end) || dl.SoftExpired(end) {
		return stepOutcome{terminate: TerminationTimeBudget}, nil
	}

	verdict2 := k.budget.Check(false)
	if !verdict2.CanContinue {
		return stepOutcome{terminate: TerminationBudgetHard}, nil
	}
	if verdict2.ForceTextOnly {
		k.forceTextOnly = true
	}
	if report := k.budget.Phase().Tick(); report.Stalled {
		_ = k.trace.RecordDecision(ctx, trace.DecisionPayload{Kind: "phase_stall", Choice: "nudge", Reason: report.Nudge})
	}

	return stepOutcome{}, nil
}

// callLLM dispatches a single provider call through R and records it
// through O, reconciling with C. When forceTextOnly is latched it calls
// Chat (no tool descriptors) instead of ChatWithTools.
func (k *Kernel) callLLM(ctx context.Context, isFirst bool) (agentmodel.ChatWithToolsResponse, error) {
	requestID := uuid.NewString()
	prediction := k.cache.Predict(k.buildCacheRequest())
	if err := k.trace.BeginLLMRequest(ctx, requestID, k.cfg.Model, len(k.messages), prediction); err != nil {
		return agentmodel.ChatWithToolsResponse{}, err
	}

	var resp agentmodel.ChatWithToolsResponse
	var callErr error
	if k.forceTextOnly {
		var cr agentmodel.ChatResponse
		callErr = k.chain.Execute(ctx, func(callCtx context.Context, providerName string) error {
			p, ok := k.providers[providerName]
			if !ok {
				return agenttools.Errorf(agenttools.ClassInternal, "kernel: no provider registered for %q", providerName)
			}
			r, err := p.Chat(callCtx, k.messages, agentmodel.ChatOptions{Model: k.cfg.Model})
			if err != nil {
				return err
			}
			cr = r
			return nil
		})
		resp = agentmodel.ChatWithToolsResponse{Content: cr.Content, StopReason: cr.StopReason, Usage: cr.Usage}
	} else {
		descriptors := k.toolDescriptors()
		callErr = k.chain.Execute(ctx, func(callCtx context.Context, providerName string) error {
			p, ok := k.providers[providerName]
			if !ok {
				return agenttools.Errorf(agenttools.ClassInternal, "kernel: no provider registered for %q", providerName)
			}
			r, err := p.ChatWithTools(callCtx, k.messages, descriptors, agentmodel.ChatOptions{Model: k.cfg.Model})
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
	}

	if callErr != nil {
		_ = k.trace.SettleLLMResponse(ctx, requestID, "error", trace.CallTokens{}, 0, false)
		_ = k.trace.RecordDecision(ctx, trace.DecisionPayload{Kind: "provider_call", Choice: "failed", Reason: callErr.Error()})
		return agentmodel.ChatWithToolsResponse{}, callErr
	}

	tokens := trace.CallTokens{
		InputTokens:      resp.Usage.InputTokens,
		OutputTokens:     resp.Usage.OutputTokens,
		CacheReadTokens:  resp.Usage.CacheReadTokens,
		CacheWriteTokens: resp.Usage.CacheWriteTokens,
	}
	if err := k.trace.SettleLLMResponse(ctx, requestID, string(resp.StopReason), tokens, resp.Usage.Cost, resp.Usage.Cost > 0); err != nil {
		return agentmodel.ChatWithToolsResponse{}, err
	}

	k.budget.RecordCall(economics.CallUsage{
		InputTokens:     resp.Usage.InputTokens,
		OutputTokens:    resp.Usage.OutputTokens,
		CacheReadTokens: resp.Usage.CacheReadTokens,
		Cost:            resp.Usage.Cost,
	})
	return resp, nil
}

func (k *Kernel) toolDescriptors() []agentmodel.ToolDescriptor {
	all := k.tools.All()
	out := make([]agentmodel.ToolDescriptor, 0, len(all))
	for _, t := range all {
		out = append(out, agentmodel.ToolDescriptor{Name: t.Name, Description: t.Description, ArgsSchema: t.ArgsSchema})
	}
	return out
}

func (k *Kernel) buildCacheRequest() cacheboundary.Request {
	req := cacheboundary.Request{Prefix: cacheboundary.Segment{Role: "system", Content: k.systemPrompt}}
	for _, m := range k.messages {
		req.Messages = append(req.Messages, segmentFromMessage(m))
	}
	return req
}

func segmentFromMessage(m agentmodel.Message) cacheboundary.Segment {
	var sb strings.Builder
	isTool := false
	for _, p := range m.Content {
		switch v := p.(type) {
		case agentmodel.TextPart:
			sb.WriteString(v.Text)
		case agentmodel.ToolUsePart:
			isTool = true
			sb.WriteString(v.Name)
		case agentmodel.ToolResultPart:
			isTool = true
			sb.WriteString(fmt.Sprint(v.Content))
		}
	}
	return cacheboundary.Segment{Role: string(m.Role), Content: sb.String(), IsTool: isTool}
}

func extractText(parts []agentmodel.Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if tp, ok := p.(agentmodel.TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

func argsMap(args any) map[string]any {
	if m, ok := args.(map[string]any); ok {
		return m
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

func pathFromArgs(args any) string {
	m := argsMap(args)
	for _, key := range []string{"path", "file_path", "filePath"} {
		if v, ok := m[key].(string); ok {
			return v
		}
	}
	return ""
}
