// Package swarm implements the S component: a worker pool that dispatches
// a decompose.DependencyGraph's parallel waves across concurrent workers,
// each with its own economics.Tracker seeded from a shared budget pool and
// its own per-minute request/token throttle. Grounded on the teacher's
// features/model/middleware/ratelimit.go AIMD token bucket, adapted from a
// single adaptive provider-facing limiter into a dual per-worker
// request-bucket/token-bucket pair (spec §4.7's "per-minute request and
// token buckets").
package swarm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentcore/agentcore/decompose"
	"github.com/agentcore/agentcore/economics"
)

// Capabilities names what kinds of subtasks a worker can execute.
type Capabilities []decompose.SubtaskType

// Can reports whether the worker declares support for t. An empty
// Capabilities list means "any type".
func (c Capabilities) Can(t decompose.SubtaskType) bool {
	if len(c) == 0 {
		return true
	}
	for _, ct := range c {
		if ct == t {
			return true
		}
	}
	return false
}

// Throttle is a worker's own per-minute request and token buckets. A
// worker whose bucket is empty blocks on its own timer without stalling
// peers, per spec §4.7.
type Throttle struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// NewThrottle builds a Throttle from per-minute request and token limits.
func NewThrottle(requestsPerMinute, tokensPerMinute int) *Throttle {
	return &Throttle{
		requests: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), maxInt(requestsPerMinute, 1)),
		tokens:   rate.NewLimiter(rate.Limit(float64(tokensPerMinute)/60.0), maxInt(tokensPerMinute, 1)),
	}
}

// Wait blocks until both a request slot and estimatedTokens of budget are
// available, or ctx is cancelled.
func (t *Throttle) Wait(ctx context.Context, estimatedTokens int) error {
	if t == nil {
		return nil
	}
	if err := t.requests.Wait(ctx); err != nil {
		return err
	}
	return t.tokens.WaitN(ctx, maxInt(estimatedTokens, 1))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Spec is a worker's declared identity per spec §4.7.
type Spec struct {
	WorkerID     string
	Model        string
	Capabilities Capabilities
	TokenBudget  int
	Throttle     *Throttle
}

// Worker is one live pool member: its spec, its own budget tracker, and an
// idle flag; during a wave it claims subtasks from the pool's shared
// pending list.
type Worker struct {
	Spec    Spec
	Budget  *economics.Tracker
	idle    bool
	lastRun time.Time
}

func newWorker(spec Spec, budget *economics.Tracker) *Worker {
	return &Worker{Spec: spec, Budget: budget, idle: true}
}
