package plan

import (
	"fmt"
	"sync"
)

// PendingPlan intercepts writes while the session is in "plan mode" per
// spec §4.8: every candidate write is appended as a ProposedChange instead
// of executing immediately.
type PendingPlan struct {
	mu      sync.Mutex
	status  PendingPlanStatus
	changes []ProposedChange
	nextID  int
}

// NewPendingPlan starts a plan in the open state.
func NewPendingPlan() *PendingPlan {
	return &PendingPlan{status: PendingOpen}
}

// Intercept appends a candidate write as a ProposedChange. Returns an
// error if the plan is no longer open.
func (p *PendingPlan) Intercept(filePath, operation, content string) (ProposedChange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PendingOpen {
		return ProposedChange{}, fmt.Errorf("plan: cannot intercept write, plan is %s", p.status)
	}
	p.nextID++
	c := ProposedChange{ID: fmt.Sprintf("change-%d", p.nextID), FilePath: filePath, Operation: operation, Content: content}
	p.changes = append(p.changes, c)
	return c, nil
}

// Status returns the plan's current status.
func (p *PendingPlan) Status() PendingPlanStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Changes returns a copy of the changes recorded so far.
func (p *PendingPlan) Changes() []ProposedChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProposedChange{}, p.changes...)
}

// Approve returns the first count changes (or all, when count is nil) and
// transitions the plan to approved. The caller is responsible for
// executing the returned changes; Approve has no execution side effects
// itself.
func (p *PendingPlan) Approve(count *int) ([]ProposedChange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PendingOpen {
		return nil, fmt.Errorf("plan: cannot approve, plan is %s", p.status)
	}
	n := len(p.changes)
	if count != nil && *count < n {
		n = *count
	}
	p.status = PendingApproved
	return append([]ProposedChange{}, p.changes[:n]...), nil
}

// Reject terminates the plan without side effects.
func (p *PendingPlan) Reject() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PendingOpen {
		return fmt.Errorf("plan: cannot reject, plan is %s", p.status)
	}
	p.status = PendingRejected
	return nil
}

// Clear discards all recorded changes without changing status.
func (p *PendingPlan) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = nil
}
