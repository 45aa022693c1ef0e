package trace_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/agenttools"
	"github.com/agentcore/agentcore/cacheboundary"
	"github.com/agentcore/agentcore/telemetry"
	"github.com/agentcore/agentcore/trace"
)

func countLines(t *testing.T, buf *bytes.Buffer) int {
	t.Helper()
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			n++
		}
	}
	return n
}

func TestSessionAndIterationLifecycleEmitsRecords(t *testing.T) {
	var buf bytes.Buffer
	cache := cacheboundary.NewTracker(cacheboundary.Config{})
	c := trace.New("sess-1", &buf, cache, trace.PricingTable{}, telemetry.Noop())
	ctx := context.Background()

	require.NoError(t, c.SessionStart(ctx))
	c.IterationStart(ctx)

	require.NoError(t, c.BeginLLMRequest(ctx, "req-1", "claude", 1, cacheboundary.Prediction{}))
	require.NoError(t, c.SettleLLMResponse(ctx, "req-1", "end_turn", trace.CallTokens{InputTokens: 100, OutputTokens: 50}, 0, false))

	c.BeginToolCall(ctx, "call-1", "read_file", map[string]any{"path": "a.go"})
	require.NoError(t, c.SettleToolCall(ctx, "call-1", agenttools.Result{Success: true, Output: "contents"}))

	require.NoError(t, c.IterationEnd(ctx, 1))
	require.NoError(t, c.SessionEnd(ctx))

	assert.Equal(t, 6, countLines(t, &buf))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var iterRec trace.Record
	require.NoError(t, json.Unmarshal(lines[4], &iterRec))
	assert.Equal(t, trace.RecordIteration, iterRec.Type)

	var iterPayload trace.IterationPayload
	require.NoError(t, json.Unmarshal(iterRec.Payload, &iterPayload))
	assert.Equal(t, 100, iterPayload.InputTokens)
	assert.Equal(t, 50, iterPayload.OutputTokens)
	assert.Equal(t, 1, iterPayload.ToolCallCount)
}

func TestPricingFallbackWhenNoProviderCost(t *testing.T) {
	var buf bytes.Buffer
	pricing := trace.PricingTable{
		"claude": {InputPerMillion: 3, OutputPerMillion: 15},
	}
	c := trace.New("sess-1", &buf, nil, pricing, telemetry.Noop())
	ctx := context.Background()

	require.NoError(t, c.BeginLLMRequest(ctx, "req-1", "claude", 1, cacheboundary.Prediction{}))
	require.NoError(t, c.SettleLLMResponse(ctx, "req-1", "end_turn", trace.CallTokens{InputTokens: 1_000_000, OutputTokens: 1_000_000}, 0, false))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var rec trace.Record
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))
	var p trace.LLMResponsePayload
	require.NoError(t, json.Unmarshal(rec.Payload, &p))
	assert.InDelta(t, 18.0, p.Cost, 0.001)
}

func TestProviderCostTakesPriorityOverPricingTable(t *testing.T) {
	var buf bytes.Buffer
	pricing := trace.PricingTable{"claude": {InputPerMillion: 1000}}
	c := trace.New("sess-1", &buf, nil, pricing, telemetry.Noop())
	ctx := context.Background()

	require.NoError(t, c.BeginLLMRequest(ctx, "req-1", "claude", 1, cacheboundary.Prediction{}))
	require.NoError(t, c.SettleLLMResponse(ctx, "req-1", "end_turn", trace.CallTokens{InputTokens: 100}, 0.5, true))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var rec trace.Record
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))
	var p trace.LLMResponsePayload
	require.NoError(t, json.Unmarshal(rec.Payload, &p))
	assert.Equal(t, 0.5, p.Cost)
}

func TestSubagentViewSharesQueueAndEnrichesRecords(t *testing.T) {
	var buf bytes.Buffer
	parent := trace.New("sess-parent", &buf, nil, trace.PricingTable{}, telemetry.Noop())
	ctx := context.Background()
	require.NoError(t, parent.SessionStart(ctx))

	view := parent.NewView("sess-child", "sub-1", "reviewer", 3, nil)
	require.NoError(t, view.SessionStart(ctx))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var childRec trace.Record
	require.NoError(t, json.Unmarshal(lines[1], &childRec))
	assert.Equal(t, "sub-1", childRec.SubagentID)
	assert.Equal(t, "reviewer", childRec.SubagentType)
	assert.Equal(t, "sess-parent", childRec.ParentSessionID)
	assert.Equal(t, 3, childRec.SpawnedAtIteration)
	assert.Equal(t, "sess-child", childRec.SessionID)
}

func TestReadHierarchyGroupsBySubagent(t *testing.T) {
	var buf bytes.Buffer
	parent := trace.New("sess-parent", &buf, nil, trace.PricingTable{}, telemetry.Noop())
	ctx := context.Background()
	require.NoError(t, parent.SessionStart(ctx))
	view := parent.NewView("sess-child", "sub-1", "reviewer", 1, nil)
	require.NoError(t, view.SessionStart(ctx))
	require.NoError(t, view.SessionEnd(ctx))
	require.NoError(t, parent.SessionEnd(ctx))

	root, err := trace.ReadHierarchy(bytes.NewReader(buf.Bytes()), "sess-parent")
	require.NoError(t, err)
	assert.Len(t, root.Records, 2)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "sub-1", root.Children[0].SessionID)
	assert.Len(t, root.Children[0].Records, 2)
}
