// Package plan implements the P component: a pending-plan write
// interceptor and an interactive, checkpointable step-by-step execution
// plan. Grounded on the teacher's runtime/agent/interrupt (Controller
// pause/resume signal pattern) and runtime/agent/runtime/confirmation.go,
// adapted from Temporal workflow signals to a plain, channel-free step
// generator (Executor.Next) since this core has no durable workflow
// engine (spec §4.8).
package plan

import "time"

// ProposedChange is a single intercepted write while in plan mode.
type ProposedChange struct {
	ID        string
	FilePath  string
	Operation string
	Content   string
	CreatedAt time.Time
}

// PendingPlanStatus is the lifecycle state of a PendingPlan.
type PendingPlanStatus string

const (
	PendingOpen     PendingPlanStatus = "open"
	PendingApproved PendingPlanStatus = "approved"
	PendingRejected PendingPlanStatus = "rejected"
)

// StepStatus is a PlanStep's place in the execution generator's lifecycle.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
	StepPaused    StepStatus = "paused"
)

// PlanStep is one unit of an InteractivePlan.
type PlanStep struct {
	ID              string
	Number          int
	Description     string
	Status          StepStatus
	Dependencies    []string
	IsDecisionPoint bool
	DecisionChoice  string
	DecisionOptions []string
}

// InteractivePlanStatus is the overall plan state.
type InteractivePlanStatus string

const (
	PlanDraft     InteractivePlanStatus = "draft"
	PlanActive    InteractivePlanStatus = "active"
	PlanPaused    InteractivePlanStatus = "paused"
	PlanCompleted InteractivePlanStatus = "completed"
	PlanFailed    InteractivePlanStatus = "failed"
)

// Checkpoint is a persisted snapshot taken before a non-skipped step.
type Checkpoint struct {
	StepID           string
	Steps            []PlanStep
	Status           InteractivePlanStatus
	CurrentStepIndex int
	TakenAt          time.Time
}

// GeneratorSignal is what Next returns to tell the caller what happened.
type GeneratorSignal string

const (
	SignalYield  GeneratorSignal = "yield"
	SignalPaused GeneratorSignal = "paused"
	SignalDone   GeneratorSignal = "done"
	SignalFailed GeneratorSignal = "failed"
)

// StepEvent is emitted by the execution generator for each Next() call.
type StepEvent struct {
	Signal GeneratorSignal
	Step   *PlanStep
	Err    error
}
