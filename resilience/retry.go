package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/agentcore/agentcore/agenttools"
)

// RetryConfig bounds a jittered exponential backoff retry, adapted from the
// teacher's runtime/a2a/retry.Config shape.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            float64
	// MaxCumulativeDelay caps total time spent waiting between attempts,
	// independent of MaxAttempts (spec §4.1: "cumulative delay are capped").
	MaxCumulativeDelay time.Duration
	// Retryable decides which errors are retried. Defaults to transient-class only.
	Retryable func(error) bool
}

// DefaultRetryConfig returns sensible defaults matching the teacher's
// DefaultConfig.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:        3,
		InitialBackoff:     100 * time.Millisecond,
		MaxBackoff:         10 * time.Second,
		BackoffMultiplier:  2.0,
		Jitter:             0.1,
		MaxCumulativeDelay: 30 * time.Second,
		Retryable:          func(err error) bool { return agenttools.IsClass(err, agenttools.ClassTransient) },
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		d.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoff > 0 {
		d.InitialBackoff = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		d.MaxBackoff = c.MaxBackoff
	}
	if c.BackoffMultiplier > 0 {
		d.BackoffMultiplier = c.BackoffMultiplier
	}
	if c.Jitter > 0 {
		d.Jitter = c.Jitter
	}
	if c.MaxCumulativeDelay > 0 {
		d.MaxCumulativeDelay = c.MaxCumulativeDelay
	}
	if c.Retryable != nil {
		d.Retryable = c.Retryable
	}
	return d
}

// ErrRetryBudgetExhausted is returned when all retry attempts (or the
// cumulative delay budget) are exhausted.
type ErrRetryBudgetExhausted struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
}

func (e *ErrRetryBudgetExhausted) Error() string {
	return agenttools.Errorf(agenttools.ClassPolicy, "retry_budget_exhausted after %d attempts over %v: %v",
		e.Attempts, e.TotalDuration, e.LastError).Error()
}

func (e *ErrRetryBudgetExhausted) Unwrap() error { return e.LastError }

// Do runs fn with bounded exponential backoff + jitter. It retries only on
// errors cfg.Retryable accepts; total attempts and cumulative delay are
// capped. Do itself does not touch a circuit breaker — callers place a
// single Do call inside one Breaker.Execute slot so retries never bypass
// the breaker (spec §4.1).
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	start := time.Now()
	var lastErr error
	var cumulative time.Duration
	attempts := 0

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attempts = attempt
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !cfg.Retryable(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		backoff := calculateBackoff(cfg, attempt)
		if cumulative+backoff > cfg.MaxCumulativeDelay {
			break
		}
		cumulative += backoff

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return &ErrRetryBudgetExhausted{
		Attempts:      attempts,
		TotalDuration: time.Since(start),
		LastError:     lastErr,
	}
}

func calculateBackoff(cfg RetryConfig, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter > 0 {
		backoff += backoff * cfg.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter, not security sensitive
	}
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}
