package kernel

import "time"

// IterationDeadlines is the per-iteration soft timeout from spec §5,
// extended in two stages: progress-aware (pause, called whenever the
// iteration made observable progress) and a hard finalization boundary;
// Pause moves both by the same delta and nothing else extends them.
// Directly grounded on the teacher's
// runDeadlines{Budget, Hard, FinalizerGrace} and its pause/shouldFinalize
// methods in runtime/agent/runtime/workflow_loop.go.
type IterationDeadlines struct {
	// Soft is the time budget for this iteration's internal work. Exceeding
	// it without having made progress is a time-budget termination; making
	// progress extends it via Pause.
	Soft time.Time
	// Hard is the absolute ceiling, including finalization grace. Once
	// within FinalizerGrace of Hard, ShouldFinalize reports true and the
	// kernel must stop starting new work and wrap up immediately.
	Hard time.Time
	// FinalizerGrace reserves time for a clean wrap-up (settling the
	// trace, final budget accounting). Zero means minFinalizerGrace.
	FinalizerGrace time.Duration
}

// minFinalizerGrace is the floor used when FinalizerGrace is unset,
// mirroring the teacher's minActivityTimeout fallback.
const minFinalizerGrace = 2 * time.Second

func (d IterationDeadlines) finalizeReserve() time.Duration {
	if d.FinalizerGrace > 0 {
		return d.FinalizerGrace
	}
	return minFinalizerGrace
}

// Pause extends both deadlines by delta, for time spent on progress that
// should not burn the iteration's time budget (a tool call that is making
// headway, a decision-point wait). A non-positive delta is a no-op, and a
// zero deadline (no time budget configured) stays zero.
func (d *IterationDeadlines) Pause(delta time.Duration) {
	if delta <= 0 {
		return
	}
	if !d.Soft.IsZero() {
		d.Soft = d.Soft.Add(delta)
	}
	if !d.Hard.IsZero() {
		d.Hard = d.Hard.Add(delta)
	}
}

// ShouldFinalize reports whether it is too late to start new work and the
// kernel should move directly to finalization.
func (d IterationDeadlines) ShouldFinalize(now time.Time) bool {
	if d.Hard.IsZero() {
		return false
	}
	return d.Hard.Sub(now) <= d.finalizeReserve()
}

// SoftExpired reports whether the soft (progress-aware) deadline has
// passed, independent of the hard ceiling.
func (d IterationDeadlines) SoftExpired(now time.Time) bool {
	if d.Soft.IsZero() {
		return false
	}
	return now.After(d.Soft)
}
