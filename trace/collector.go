package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/agentcore/agentcore/agenttools"
	"github.com/agentcore/agentcore/cacheboundary"
	"github.com/agentcore/agentcore/telemetry"
)

// queue serializes every write to one underlying writer (typically one
// open os.File per session) under a single mutex, matching spec
// §4.5's "single per-file queue" requirement. Subagent views share their
// parent's queue rather than opening their own file.
type queue struct {
	mu sync.Mutex
	w  io.Writer
}

func newQueue(w io.Writer) *queue {
	return &queue{w: w}
}

func (q *queue) writeLine(b []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.w.Write(b); err != nil {
		return err
	}
	_, err := q.w.Write([]byte("\n"))
	return err
}

// pendingLLM tracks an open llm.request span awaiting its settling response.
type pendingLLM struct {
	startedAt time.Time
	model     string
	prediction cacheboundary.Prediction
}

// pendingTool tracks an open tool call awaiting its settling result.
type pendingTool struct {
	startedAt time.Time
	toolName  string
	args      any
}

// iterAgg accumulates per-iteration metrics as records are emitted between
// iteration.start and iteration.end.
type iterAgg struct {
	inputTokens, outputTokens, toolCalls int
	iterations                           int
	totalCost                            float64
	cacheHitSum                          float64
	cacheHitSamples                      int
	startedAt                            time.Time
}

// Collector is one session's O instance: it owns (or shares) a JSONL write
// queue, the pending-request/pending-tool-call bookkeeping, the cache
// boundary tracker used for reconciliation, and iteration/session
// aggregation state.
type Collector struct {
	sessionID string
	q         *queue
	tel       telemetry.Bundle
	cache     *cacheboundary.Tracker
	pricing   PricingTable

	mu       sync.Mutex
	pendingLLM  map[string]pendingLLM
	pendingTool map[string]pendingTool
	currentIter *iterAgg
	sessionAgg  iterAgg
	sessionStarted time.Time

	// subagent* are empty for a top-level Collector and populated for a
	// view returned by NewView; every emitted record carries them, per
	// spec §4.5's subagent-view enrichment rule.
	subagentID         string
	subagentType       string
	parentSessionID    string
	spawnedAtIteration int
}

// NewView returns a Collector for a spawned subagent that shares the
// parent's write queue (ordering within the file stays deterministic) but
// keeps its own session ID, cache tracker, and aggregation state. Every
// record emitted through the view is enriched with the subagent metadata.
func (c *Collector) NewView(sessionID, subagentID, subagentType string, spawnedAtIteration int, cache *cacheboundary.Tracker) *Collector {
	return &Collector{
		sessionID:          sessionID,
		q:                  c.q,
		tel:                c.tel,
		cache:              cache,
		pricing:            c.pricing,
		pendingLLM:         make(map[string]pendingLLM),
		pendingTool:        make(map[string]pendingTool),
		subagentID:         subagentID,
		subagentType:       subagentType,
		parentSessionID:    c.sessionID,
		spawnedAtIteration: spawnedAtIteration,
	}
}

// New constructs a top-level Collector writing to w (typically one file per
// session opened with O_APPEND).
func New(sessionID string, w io.Writer, cache *cacheboundary.Tracker, pricing PricingTable, tel telemetry.Bundle) *Collector {
	return &Collector{
		sessionID:   sessionID,
		q:           newQueue(w),
		tel:         telemetry.WithDefaults(tel),
		cache:       cache,
		pricing:     pricing,
		pendingLLM:  make(map[string]pendingLLM),
		pendingTool: make(map[string]pendingTool),
	}
}

func (c *Collector) emit(ctx context.Context, r Record) error {
	r.SessionID = c.sessionID
	if r.Timestamp.IsZero() {
		r.Timestamp = timeNow(ctx)
	}
	if c.subagentID != "" {
		r.SubagentID = c.subagentID
		r.SubagentType = c.subagentType
		r.ParentSessionID = c.parentSessionID
		r.SpawnedAtIteration = c.spawnedAtIteration
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("trace: marshal %s record: %w", r.Type, err)
	}
	if err := c.q.writeLine(b); err != nil {
		c.tel.Logger.Error(ctx, "trace: write failed", "type", r.Type, "err", err)
		return fmt.Errorf("trace: write %s record: %w", r.Type, err)
	}
	return nil
}

// timeNow exists so tests can stamp deterministic timestamps by embedding a
// fixed clock in ctx; production callers leave it unset and get time.Now.
func timeNow(ctx context.Context) time.Time {
	if v := ctx.Value(clockKey{}); v != nil {
		if fn, ok := v.(func() time.Time); ok {
			return fn()
		}
	}
	return time.Now()
}

type clockKey struct{}

// WithClock overrides the collector's time source for deterministic tests.
func WithClock(ctx context.Context, fn func() time.Time) context.Context {
	return context.WithValue(ctx, clockKey{}, fn)
}

// SessionStart emits session.start and begins session-level aggregation.
func (c *Collector) SessionStart(ctx context.Context) error {
	c.mu.Lock()
	c.sessionStarted = timeNow(ctx)
	c.mu.Unlock()
	return c.emit(ctx, Record{Type: RecordSessionStart})
}

// SessionEnd emits session.end with the recursed aggregate over every
// iteration observed so far.
func (c *Collector) SessionEnd(ctx context.Context) error {
	c.mu.Lock()
	agg := c.sessionAgg
	started := c.sessionStarted
	c.mu.Unlock()

	payload, _ := json.Marshal(SessionEndPayload{
		IterationCount: agg.iterations,
		InputTokens:  agg.inputTokens,
		OutputTokens: agg.outputTokens,
		CacheHitRate: averageHitRate(agg),
		ToolCallCount: agg.toolCalls,
		TotalCost:    agg.totalCost,
		DurationMs:   time.Since(started).Milliseconds(),
	})
	return c.emit(ctx, Record{Type: RecordSessionEnd, Payload: payload})
}

// IterationStart begins a new per-iteration aggregation window.
func (c *Collector) IterationStart(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentIter = &iterAgg{startedAt: timeNow(ctx)}
}

// IterationEnd emits the iteration record with its aggregated metrics and
// folds them into the session aggregate.
func (c *Collector) IterationEnd(ctx context.Context, iterationNumber int) error {
	c.mu.Lock()
	agg := c.currentIter
	if agg == nil {
		agg = &iterAgg{}
	}
	c.sessionAgg.inputTokens += agg.inputTokens
	c.sessionAgg.outputTokens += agg.outputTokens
	c.sessionAgg.toolCalls += agg.toolCalls
	c.sessionAgg.totalCost += agg.totalCost
	c.sessionAgg.cacheHitSum += agg.cacheHitSum
	c.sessionAgg.cacheHitSamples += agg.cacheHitSamples
	c.sessionAgg.iterations++
	c.currentIter = nil
	c.mu.Unlock()

	payload, _ := json.Marshal(IterationPayload{
		IterationNumber: iterationNumber,
		InputTokens:     agg.inputTokens,
		OutputTokens:    agg.outputTokens,
		CacheHitRate:    averageHitRate(*agg),
		ToolCallCount:   agg.toolCalls,
		TotalCost:       agg.totalCost,
		DurationMs:      time.Since(agg.startedAt).Milliseconds(),
	})
	return c.emit(ctx, Record{Type: RecordIteration, Payload: payload})
}

func averageHitRate(a iterAgg) float64 {
	if a.cacheHitSamples == 0 {
		return 0
	}
	return a.cacheHitSum / float64(a.cacheHitSamples)
}

// BeginLLMRequest opens a pending span for an outgoing LLM call and emits
// the llm.request record.
func (c *Collector) BeginLLMRequest(ctx context.Context, requestID, model string, messageCount int, prediction cacheboundary.Prediction) error {
	c.mu.Lock()
	c.pendingLLM[requestID] = pendingLLM{startedAt: timeNow(ctx), model: model, prediction: prediction}
	c.mu.Unlock()

	payload, _ := json.Marshal(LLMRequestPayload{RequestID: requestID, Model: model, Messages: messageCount, StartedAt: timeNow(ctx)})
	return c.emit(ctx, Record{Type: RecordLLMRequest, Payload: payload})
}

// SettleLLMResponse closes the pending span for requestID, reconciles with
// C, computes cost, and emits llm.response. Calling Settle for an unknown
// requestID is a caller bug but degrades gracefully (duration reported as 0).
func (c *Collector) SettleLLMResponse(ctx context.Context, requestID, stopReason string, tokens CallTokens, providerCost float64, hasProviderCost bool) error {
	c.mu.Lock()
	pending, ok := c.pendingLLM[requestID]
	delete(c.pendingLLM, requestID)
	c.mu.Unlock()

	var duration time.Duration
	var model string
	if ok {
		duration = timeNow(ctx).Sub(pending.startedAt)
		model = pending.model
	}

	var rec cacheboundary.Reconciliation
	if c.cache != nil && ok {
		rec = c.cache.Reconcile(pending.prediction, cacheboundary.Actual{
			InputTokens:      tokens.InputTokens,
			CacheReadTokens:  tokens.CacheReadTokens,
			CacheWriteTokens: tokens.CacheWriteTokens,
		})
	}

	cost := providerCost
	if !hasProviderCost {
		cost = c.pricing.Estimate(model, tokens)
	}

	c.mu.Lock()
	if c.currentIter != nil {
		c.currentIter.inputTokens += tokens.InputTokens
		c.currentIter.outputTokens += tokens.OutputTokens
		c.currentIter.totalCost += cost
		c.currentIter.cacheHitSum += rec.HitRate
		c.currentIter.cacheHitSamples++
	}
	c.mu.Unlock()

	payload, _ := json.Marshal(LLMResponsePayload{
		RequestID:        requestID,
		StopReason:       stopReason,
		InputTokens:      tokens.InputTokens,
		OutputTokens:     tokens.OutputTokens,
		CacheReadTokens:  tokens.CacheReadTokens,
		CacheWriteTokens: tokens.CacheWriteTokens,
		Cost:             cost,
		DurationMs:       duration.Milliseconds(),
	})
	return c.emit(ctx, Record{Type: RecordLLMResponse, Payload: payload})
}

// BeginToolCall opens a pending span for a tool invocation.
func (c *Collector) BeginToolCall(ctx context.Context, toolCallID, toolName string, args any) {
	c.mu.Lock()
	c.pendingTool[toolCallID] = pendingTool{startedAt: timeNow(ctx), toolName: toolName, args: args}
	c.mu.Unlock()
}

// SettleToolCall closes the pending span and emits tool.execution, matching
// the agenttools.TraceRecorder contract U's tool wrapper is expected to use.
func (c *Collector) SettleToolCall(ctx context.Context, toolCallID string, result agenttools.Result) error {
	c.mu.Lock()
	pending, ok := c.pendingTool[toolCallID]
	delete(c.pendingTool, toolCallID)
	if c.currentIter != nil {
		c.currentIter.toolCalls++
	}
	c.mu.Unlock()

	var duration time.Duration
	var toolName string
	var args any
	if ok {
		duration = timeNow(ctx).Sub(pending.startedAt)
		toolName = pending.toolName
		args = pending.args
	}

	var errMsg string
	if result.Err != nil {
		errMsg = result.Err.Error()
	}

	payload, _ := json.Marshal(ToolExecutionPayload{
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Args:       args,
		Success:    result.Success,
		Output:     result.Output,
		Error:      errMsg,
		DurationMs: duration.Milliseconds(),
	})
	return c.emit(ctx, Record{Type: RecordToolExecution, Payload: payload})
}

// RecordEvent implements agenttools.TraceRecorder, allowing a tool's
// Execute function to emit ad hoc records (e.g. memory retrieval details)
// without the caller needing the full Collector surface. The record's type
// is eventType; toolCallID is not written, so the record carries no link
// to the tool call's span.
func (c *Collector) RecordEvent(ctx context.Context, toolCallID, eventType string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("trace: marshal event payload: %w", err)
	}
	return c.emit(ctx, Record{Type: RecordType(eventType), Payload: b})
}

// RecordDecision emits a decision record.
func (c *Collector) RecordDecision(ctx context.Context, p DecisionPayload) error {
	b, _ := json.Marshal(p)
	return c.emit(ctx, Record{Type: RecordDecision, Payload: b})
}

// RecordPlanEvolution emits a plan.evolution record.
func (c *Collector) RecordPlanEvolution(ctx context.Context, p PlanEvolutionPayload) error {
	b, _ := json.Marshal(p)
	return c.emit(ctx, Record{Type: RecordPlanEvolution, Payload: b})
}

// RecordError emits an error record.
func (c *Collector) RecordError(ctx context.Context, p ErrorPayload) error {
	b, _ := json.Marshal(p)
	return c.emit(ctx, Record{Type: RecordError, Payload: b})
}

// TaskStart / TaskEnd bracket a task. TaskEnd reports the session's
// aggregate over every iteration ended so far; it is not scoped to the
// task, and its DurationMs is left at zero.
func (c *Collector) TaskStart(ctx context.Context, taskID string) error {
	payload, _ := json.Marshal(struct {
		TaskID string `json:"taskId"`
	}{taskID})
	return c.emit(ctx, Record{Type: RecordTaskStart, Payload: payload})
}

func (c *Collector) TaskEnd(ctx context.Context, taskID string, success bool) error {
	c.mu.Lock()
	agg := c.sessionAgg
	c.mu.Unlock()
	payload, _ := json.Marshal(TaskEndPayload{
		TaskID:       taskID,
		IterationCount: agg.iterations,
		InputTokens:  agg.inputTokens,
		OutputTokens: agg.outputTokens,
		TotalCost:    agg.totalCost,
		Success:      success,
	})
	return c.emit(ctx, Record{Type: RecordTaskEnd, Payload: payload})
}
