// Package resilience implements the R component: a circuit breaker wrapping
// a single provider, a fallback chain rotating across providers, and a
// bounded, jittered retry that runs inside a single breaker slot. Grounded
// on the teacher's runtime/a2a/retry (backoff/jitter shape) and
// features/model/middleware (adaptive request shaping).
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/agentcore/agentcore/agenttools"
	"github.com/agentcore/agentcore/telemetry"
)

// State is one of the three circuit breaker states from spec §3/§4.1.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// TripEligibility decides which error kinds count toward tripping the
// breaker. "all" trips on any error; the default set is network failures,
// 5xx, timeouts, and rate-limiting.
type TripEligibility func(err error) bool

// DefaultTripEligibility trips on transient errors only (network, 5xx,
// network, timeout, rate-limited), per spec §4.1.
func DefaultTripEligibility(err error) bool {
	return agenttools.IsClass(err, agenttools.ClassTransient)
}

// TripOnAll trips the breaker on any error, matching the "all" configurable
// option in spec §4.1.
func TripOnAll(error) bool { return true }

// CircuitStateSnapshot mirrors spec §3's Circuit state data model for
// introspection/tracing.
type CircuitStateSnapshot struct {
	State             State
	Failures          int
	Successes         int
	TotalRequests     int
	RejectedRequests  int
	LastStateChange   time.Time
	ResetAt           *time.Time
	HalfOpenInProgress int
	LastError         error
}

// CircuitConfig configures a Breaker.
type CircuitConfig struct {
	// FailureThreshold is the number of consecutive trip-eligible failures
	// in CLOSED before the breaker opens.
	FailureThreshold int
	// ResetTimeout is how long OPEN waits before admitting a HALF_OPEN probe.
	ResetTimeout time.Duration
	// HalfOpenRequests caps concurrent in-flight probes while HALF_OPEN.
	HalfOpenRequests int
	// RequestTimeout, if non-zero, bounds a single call; expiry counts as a
	// trip-eligible failure.
	RequestTimeout time.Duration
	// Eligible decides which errors count toward the failure threshold.
	// Defaults to DefaultTripEligibility.
	Eligible TripEligibility
}

func (c CircuitConfig) withDefaults() CircuitConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenRequests <= 0 {
		c.HalfOpenRequests = 1
	}
	if c.Eligible == nil {
		c.Eligible = DefaultTripEligibility
	}
	return c
}

// ErrCircuitOpen is returned when the breaker short-circuits a call.
var ErrCircuitOpen = agenttools.New(agenttools.ClassPolicy, "circuit_open")

// Breaker is a single-provider circuit breaker. Safe for concurrent use by
// multiple swarm workers sharing the same provider.
type Breaker struct {
	cfg CircuitConfig
	tel telemetry.Bundle

	mu                sync.Mutex
	state             State
	failures          int
	successes         int
	totalRequests     int
	rejectedRequests  int
	lastStateChange   time.Time
	resetAt           time.Time
	halfOpenInFlight  int
	lastErr           error
}

// NewBreaker constructs a Breaker in the CLOSED state.
func NewBreaker(cfg CircuitConfig, tel telemetry.Bundle) *Breaker {
	return &Breaker{
		cfg:             cfg.withDefaults(),
		tel:             telemetry.WithDefaults(tel),
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Snapshot returns the current circuit state for tracing/introspection.
func (b *Breaker) Snapshot() CircuitStateSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	var resetAt *time.Time
	if !b.resetAt.IsZero() {
		t := b.resetAt
		resetAt = &t
	}
	return CircuitStateSnapshot{
		State:              b.state,
		Failures:           b.failures,
		Successes:          b.successes,
		TotalRequests:      b.totalRequests,
		RejectedRequests:   b.rejectedRequests,
		LastStateChange:    b.lastStateChange,
		ResetAt:            resetAt,
		HalfOpenInProgress: b.halfOpenInFlight,
		LastError:          b.lastErr,
	}
}

// admit decides whether a new call may proceed and, if so, reserves a
// half-open slot as needed. It transitions OPEN->HALF_OPEN automatically
// once the wall clock has passed resetAt.
func (b *Breaker) admit(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.totalRequests++
		return true
	case StateOpen:
		if !b.resetAt.IsZero() && !now.Before(b.resetAt) {
			b.transitionLocked(StateHalfOpen, now)
			b.halfOpenInFlight = 1
			b.totalRequests++
			return true
		}
		b.rejectedRequests++
		return false
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenRequests {
			b.rejectedRequests++
			return false
		}
		b.halfOpenInFlight++
		b.totalRequests++
		return true
	default:
		return false
	}
}

func (b *Breaker) transitionLocked(to State, now time.Time) {
	b.state = to
	b.lastStateChange = now
	switch to {
	case StateClosed:
		b.failures = 0
		b.halfOpenInFlight = 0
		b.resetAt = time.Time{}
	case StateOpen:
		b.resetAt = now.Add(b.cfg.ResetTimeout)
		b.halfOpenInFlight = 0
	case StateHalfOpen:
		// resetAt/halfOpenInFlight managed by caller (admit)
	}
}

func (b *Breaker) recordSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes++
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		// All in-flight half-open probes must succeed before closing; since
		// HalfOpenRequests bounds concurrency to exactly that many probes,
		// a single success closes the breaker once no others are pending.
		if b.halfOpenInFlight == 0 {
			b.transitionLocked(StateClosed, now)
		}
	}
}

func (b *Breaker) recordFailure(now time.Time, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastErr = err
	if !b.cfg.Eligible(err) {
		if b.state == StateHalfOpen && b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		return
	}
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionLocked(StateOpen, now)
		}
	case StateHalfOpen:
		b.transitionLocked(StateOpen, now)
	}
}

// Execute runs fn through the breaker: short-circuits if the breaker does
// not admit the call, otherwise runs fn (honoring RequestTimeout if set)
// and records the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	now := time.Now()
	if !b.admit(now) {
		b.tel.Metrics.IncCounter("resilience.circuit.rejected", 1)
		return ErrCircuitOpen
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if b.cfg.RequestTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.RequestTimeout)
		defer cancel()
	}

	err := fn(callCtx)
	if err == nil {
		b.recordSuccess(time.Now())
		return nil
	}
	if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = agenttools.Wrap(agenttools.ClassTransient, "request timeout", err)
	}
	b.recordFailure(time.Now(), err)
	return err
}
