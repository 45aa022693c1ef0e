package kernel

import "time"

// RetryReason classifies why the kernel is retrying a tool call with a
// corrected prompt, adapted from the teacher's planner.RetryReason enum
// (runtime/agent/planner, runtime/agent/runtime/hints) into the narrower
// set spec §7 calls for: "the kernel may retry with a corrected prompt (up
// to a configured count)" on an input-class tool error.
type RetryReason string

const (
	RetryMissingFields     RetryReason = "missing_fields"
	RetryInvalidArgs       RetryReason = "invalid_args"
	RetryMalformedOutput   RetryReason = "malformed_output"
	RetryUnknownTool       RetryReason = "unknown_tool"
)

// RetryHint is attached to a tool result that failed with a ClassInput
// error, so the next LLM turn sees exactly what was wrong and how to fix
// it rather than a bare error string.
type RetryHint struct {
	Reason        RetryReason `json:"reason"`
	MissingFields []string    `json:"missingFields,omitempty"`
	Suggestion    string      `json:"suggestion,omitempty"`
}

// TerminationReason is why Run stopped iterating.
type TerminationReason string

const (
	TerminationDone             TerminationReason = "done"
	TerminationBudgetHard       TerminationReason = "budget_hard"
	TerminationTimeBudget       TerminationReason = "time_budget"
	TerminationToolCap          TerminationReason = "tool_cap"
	TerminationCancelled        TerminationReason = "cancelled"
	TerminationError            TerminationReason = "error"
)

// Config carries the spec §6 environment knobs relevant to K.
type Config struct {
	Model string

	// MaxToolCalls bounds the total number of tool calls executed across
	// the whole session, mirroring the teacher's Caps.MaxToolCalls.
	MaxToolCalls int

	// SoftIterationTimeout / HardIterationTimeout / FinalizerGrace seed a
	// fresh IterationDeadlines at the start of every iteration.
	SoftIterationTimeout time.Duration
	HardIterationTimeout time.Duration
	FinalizerGrace        time.Duration

	// MaxInputRetries bounds how many ClassInput failures of a single tool
	// name (counted over the whole session) are answered with a RetryHint;
	// every later failure for that tool name is surfaced to the
	// conversation as terminal, per spec §7.
	MaxInputRetries int

	// ConfirmBeforeExecute gates any tool call above DangerSafe on the
	// Confirm callback before it executes.
	ConfirmBeforeExecute bool
}

func (c Config) withDefaults() Config {
	if c.MaxInputRetries <= 0 {
		c.MaxInputRetries = 2
	}
	if c.FinalizerGrace <= 0 {
		c.FinalizerGrace = minFinalizerGrace
	}
	return c
}

// Confirm is consulted before executing a tool call classified above
// DangerSafe when Config.ConfirmBeforeExecute is set. Returning false
// denies the call without executing it and the kernel records a
// "confirm"/"denied" decision trace; an approved call records none.
type Confirm func(toolName string, args any) bool

// Result is what Run returns once the loop stops.
type Result struct {
	Termination TerminationReason
	FinalText   string
	Iterations  int
	Err         error
}
