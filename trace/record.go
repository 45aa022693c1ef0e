// Package trace implements the O component: a one-session, one-JSONL-file
// append-only collector. Grounded on the teacher's runlog package (an
// append-only event store with typed records and durable Append semantics)
// and hooks package (typed event envelopes keyed by event type), adapted
// from a Store-interface abstraction into a concrete JSONL writer since
// spec §4.5 mandates the file itself as the durability boundary rather than
// a pluggable backend.
package trace

import (
	"encoding/json"
	"time"
)

// RecordType names the kind of trace record, matching spec §4.5's schema list.
type RecordType string

const (
	RecordSessionStart    RecordType = "session.start"
	RecordSessionEnd      RecordType = "session.end"
	RecordTaskStart       RecordType = "task.start"
	RecordTaskEnd         RecordType = "task.end"
	RecordIteration       RecordType = "iteration"
	RecordLLMRequest      RecordType = "llm.request"
	RecordLLMResponse     RecordType = "llm.response"
	RecordLLMThinking     RecordType = "llm.thinking"
	RecordToolExecution   RecordType = "tool.execution"
	RecordMemoryRetrieval RecordType = "memory.retrieval"
	RecordPlanEvolution   RecordType = "plan.evolution"
	RecordSubagentLink    RecordType = "subagent.link"
	RecordDecision        RecordType = "decision"
	RecordError           RecordType = "error"
)

// Record is the envelope every JSONL line is serialized from. Payload
// carries the type-specific fields; a subagent view enriches every record
// with the Subagent* fields before it reaches the shared write queue.
type Record struct {
	Type      RecordType `json:"type"`
	SessionID string     `json:"sessionId"`
	Timestamp time.Time  `json:"timestamp"`

	SubagentID         string `json:"subagentId,omitempty"`
	SubagentType       string `json:"subagentType,omitempty"`
	ParentSessionID    string `json:"parentSessionId,omitempty"`
	SpawnedAtIteration int    `json:"spawnedAtIteration,omitempty"`

	Payload json.RawMessage `json:"payload"`
}

// LLMRequestPayload opens a pending span for an LLM call.
type LLMRequestPayload struct {
	RequestID string    `json:"requestId"`
	Model     string    `json:"model"`
	Messages  int       `json:"messageCount"`
	StartedAt time.Time `json:"startedAt"`
}

// LLMResponsePayload settles the pending span opened by LLMRequestPayload.
type LLMResponsePayload struct {
	RequestID        string  `json:"requestId"`
	StopReason       string  `json:"stopReason"`
	InputTokens      int     `json:"inputTokens"`
	OutputTokens     int     `json:"outputTokens"`
	CacheReadTokens  int     `json:"cacheReadTokens"`
	CacheWriteTokens int     `json:"cacheWriteTokens"`
	Cost             float64 `json:"cost"`
	DurationMs       int64   `json:"durationMs"`
}

// LLMThinkingPayload carries a reasoning block emitted mid-response.
type LLMThinkingPayload struct {
	RequestID string `json:"requestId"`
	Text      string `json:"text,omitempty"`
	Redacted  bool   `json:"redacted"`
}

// ToolExecutionPayload is the settled record for one tool call.
type ToolExecutionPayload struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Args       any    `json:"args,omitempty"`
	Success    bool   `json:"success"`
	Output     any    `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// MemoryRetrievalPayload records a memory/context lookup.
type MemoryRetrievalPayload struct {
	Query      string   `json:"query"`
	ResultKeys []string `json:"resultKeys,omitempty"`
	HitCount   int      `json:"hitCount"`
}

// PlanEvolutionPayload records a plan mutation (draft/edit/approve/reject).
type PlanEvolutionPayload struct {
	PlanID string `json:"planId"`
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

// SubagentLinkPayload connects a parent iteration to a spawned subagent session.
type SubagentLinkPayload struct {
	ChildSessionID string `json:"childSessionId"`
	ChildType      string `json:"childType"`
}

// DecisionPayload records a kernel- or plan-level branch point.
type DecisionPayload struct {
	Kind   string `json:"kind"`
	Choice string `json:"choice"`
	Reason string `json:"reason,omitempty"`
}

// ErrorPayload records a structured failure.
type ErrorPayload struct {
	Class   string `json:"class"`
	Message string `json:"message"`
}

// IterationPayload aggregates metrics across everything emitted between
// iteration.start and iteration.end.
type IterationPayload struct {
	IterationNumber int     `json:"iterationNumber"`
	InputTokens     int     `json:"inputTokens"`
	OutputTokens    int     `json:"outputTokens"`
	CacheHitRate    float64 `json:"cacheHitRate"`
	ToolCallCount   int     `json:"toolCallCount"`
	TotalCost       float64 `json:"totalCost"`
	DurationMs      int64   `json:"durationMs"`
}

// SessionEndPayload / TaskEndPayload recurse the same aggregation over the
// session's iterations ended so far (TaskEndPayload is not scoped to the
// task).
type SessionEndPayload struct {
	IterationCount int     `json:"iterationCount"`
	InputTokens    int     `json:"inputTokens"`
	OutputTokens   int     `json:"outputTokens"`
	CacheHitRate   float64 `json:"cacheHitRate"`
	ToolCallCount  int     `json:"toolCallCount"`
	TotalCost      float64 `json:"totalCost"`
	DurationMs     int64   `json:"durationMs"`
}

type TaskEndPayload struct {
	TaskID         string  `json:"taskId"`
	IterationCount int     `json:"iterationCount"`
	InputTokens    int     `json:"inputTokens"`
	OutputTokens   int     `json:"outputTokens"`
	TotalCost      float64 `json:"totalCost"`
	DurationMs     int64   `json:"durationMs"`
	Success        bool    `json:"success"`
}
