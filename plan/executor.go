package plan

import (
	"context"
	"fmt"
)

// CheckpointStore persists and restores Checkpoints, keyed by the owning
// plan. Injected so P stays storage-agnostic.
type CheckpointStore interface {
	Save(ctx context.Context, planID string, cp Checkpoint) error
	// Latest returns the most recently saved checkpoint without removing it.
	Latest(ctx context.Context, planID string) (Checkpoint, bool, error)
	// RollbackTo restores the checkpoint identified by stepID and discards
	// it along with every checkpoint taken after it, per spec §4.8.
	RollbackTo(ctx context.Context, planID, stepID string) (Checkpoint, bool, error)
}

// Executor drives an InteractivePlan one step at a time per spec §4.8's
// execution generator: before each non-skipped step it optionally
// checkpoints, enforces dependency completion, and pauses at decision
// points awaiting makeDecision.
type Executor struct {
	planID         string
	plan           *InteractivePlan
	store          CheckpointStore
	autoCheckpoint bool
	cursor         int
	awaitingDecision bool
}

// NewExecutor constructs an Executor for plan, starting at the first step.
func NewExecutor(planID string, p *InteractivePlan, store CheckpointStore, autoCheckpoint bool) *Executor {
	return &Executor{planID: planID, plan: p, store: store, autoCheckpoint: autoCheckpoint}
}

func (e *Executor) dependenciesSatisfied(s PlanStep) bool {
	for _, depID := range s.Dependencies {
		found := false
		for _, other := range e.plan.Steps {
			if other.ID == depID {
				found = true
				if other.Status != StepCompleted && other.Status != StepSkipped {
					return false
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Next advances the generator by one step. Callers are expected to mark
// the returned step's outcome (Completed/Failed) before calling Next
// again; Next itself only governs pause/dependency/checkpoint mechanics
// and skips steps already marked Skipped.
func (e *Executor) Next(ctx context.Context) StepEvent {
	if e.awaitingDecision {
		return StepEvent{Signal: SignalPaused}
	}

	for e.cursor < len(e.plan.Steps) {
		s := &e.plan.Steps[e.cursor]

		if s.Status == StepSkipped || s.Status == StepCompleted {
			e.cursor++
			continue
		}

		if !e.dependenciesSatisfied(*s) {
			return StepEvent{Signal: SignalFailed, Step: s, Err: fmt.Errorf("plan: step %s has unsatisfied dependencies", s.ID)}
		}

		if e.autoCheckpoint && e.store != nil {
			cp := Checkpoint{
				StepID:           s.ID,
				Steps:            append([]PlanStep{}, e.plan.Steps...),
				Status:           e.plan.Status,
				CurrentStepIndex: e.cursor,
			}
			if err := e.store.Save(ctx, e.planID, cp); err != nil {
				return StepEvent{Signal: SignalFailed, Step: s, Err: err}
			}
		}

		if s.IsDecisionPoint && s.DecisionChoice == "" {
			s.Status = StepPaused
			e.plan.Status = PlanPaused
			e.awaitingDecision = true
			return StepEvent{Signal: SignalPaused, Step: s}
		}

		s.Status = StepRunning
		return StepEvent{Signal: SignalYield, Step: s}
	}
	e.plan.Status = PlanCompleted
	return StepEvent{Signal: SignalDone}
}

// MakeDecision resumes a paused decision-point step with choice and
// advances the cursor, ready for the next Next() call.
func (e *Executor) MakeDecision(choice string) error {
	if !e.awaitingDecision {
		return fmt.Errorf("plan: no decision is pending")
	}
	s := &e.plan.Steps[e.cursor]
	s.DecisionChoice = choice
	s.Status = StepCompleted
	e.awaitingDecision = false
	e.plan.Status = PlanActive
	e.cursor++
	return nil
}

// CompleteCurrent marks the step most recently yielded as completed and
// advances the cursor.
func (e *Executor) CompleteCurrent() {
	if e.cursor < len(e.plan.Steps) {
		e.plan.Steps[e.cursor].Status = StepCompleted
		e.cursor++
	}
}

// FailCurrent marks the step most recently yielded as failed without
// advancing the cursor, leaving the generator positioned to retry or roll
// back.
func (e *Executor) FailCurrent() {
	if e.cursor < len(e.plan.Steps) {
		e.plan.Steps[e.cursor].Status = StepFailed
		e.plan.Status = PlanFailed
	}
}

// Rollback restores the checkpoint taken before stepID verbatim and
// discards any checkpoints taken after it, per spec §4.8. An empty stepID
// rolls back to the single most recent checkpoint.
func (e *Executor) Rollback(ctx context.Context, stepID string) error {
	if e.store == nil {
		return fmt.Errorf("plan: no checkpoint store configured")
	}
	if stepID == "" {
		latest, ok, err := e.store.Latest(ctx, e.planID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("plan: no checkpoint to roll back to")
		}
		stepID = latest.StepID
	}
	cp, ok, err := e.store.RollbackTo(ctx, e.planID, stepID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("plan: no checkpoint found for step %s", stepID)
	}
	e.plan.Steps = append([]PlanStep{}, cp.Steps...)
	e.plan.Status = cp.Status
	e.cursor = cp.CurrentStepIndex
	e.awaitingDecision = false
	return nil
}
