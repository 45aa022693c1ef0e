// Package kernel implements the K component: the agent loop that ties
// resilience (R), economics (B), cache boundary (C), the file change
// journal (U), the trace collector (O), the decomposer (T), the swarm
// scheduler (S) and the plan lifecycle (P) into one bounded iterative
// "propose action -> execute tool -> observe -> repeat" cycle. Grounded on
// the teacher's runtime/agent/runtime/workflow_loop.go (the run() loop
// shape, two-stage deadline extension) and workflow_turn.go (tool-call
// capping, policy application, confirmation-before-execute).
package kernel

import (
	"sync"

	"github.com/agentcore/agentcore/agenttools"
)

// CancelSource is a hierarchical cancellation token: cancelling a source
// cancels every descendant created from it via Child, carrying a reason
// string through the whole subtree. Grounded on the teacher's
// interrupt.Controller, adapted from a pause/resume signal into the plain
// cancellation-with-reason primitive spec §5 describes ("a cancellation
// token source is hierarchical... tokens carry a reason").
type CancelSource struct {
	mu     sync.Mutex
	done   chan struct{}
	reason string
}

// NewCancelSource constructs a root cancellation source.
func NewCancelSource() *CancelSource {
	return &CancelSource{done: make(chan struct{})}
}

// Child constructs a cancellation source that is cancelled whenever c is,
// carrying c's reason unless the child is cancelled independently first.
func (c *CancelSource) Child() *CancelSource {
	child := NewCancelSource()
	go func() {
		select {
		case <-c.Done():
			child.Cancel(c.reasonLocked())
		case <-child.Done():
		}
	}()
	return child
}

// Cancel marks c (and transitively every descendant) cancelled with
// reason. Calling Cancel more than once is a no-op; the first reason wins.
func (c *CancelSource) Cancel(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
	}
	if reason == "" {
		reason = "cancelled"
	}
	c.reason = reason
	close(c.done)
}

// Done implements agenttools.CancelToken.
func (c *CancelSource) Done() <-chan struct{} {
	return c.done
}

// Err implements agenttools.CancelToken: nil until cancelled, then the
// distinguished cancellation error spec §5 requires timers and throttle
// waits to reject with, classified policy (not retry-eligible) per §7.
func (c *CancelSource) Err() error {
	select {
	case <-c.done:
		reason := c.reasonLocked()
		if reason == "" {
			reason = "cancelled"
		}
		return agenttools.Errorf(agenttools.ClassPolicy, "cancelled: %s", reason)
	default:
		return nil
	}
}

func (c *CancelSource) reasonLocked() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}
