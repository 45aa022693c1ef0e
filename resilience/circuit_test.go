package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/agenttools"
	"github.com/agentcore/agentcore/resilience"
	"github.com/agentcore/agentcore/telemetry"
)

func transientErr() error {
	return agenttools.New(agenttools.ClassTransient, "boom")
}

// TestCircuitBreakerFlow matches spec §8 scenario 6 exactly.
func TestCircuitBreakerFlow(t *testing.T) {
	b := resilience.NewBreaker(resilience.CircuitConfig{
		FailureThreshold: 3,
		ResetTimeout:     50 * time.Millisecond,
		HalfOpenRequests: 1,
	}, telemetry.Noop())

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := b.Execute(ctx, func(context.Context) error { return transientErr() })
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, b.Snapshot().State)

	// Calls during OPEN fail immediately as circuit_open.
	err := b.Execute(ctx, func(context.Context) error {
		t.Fatal("fn should not run while circuit is open")
		return nil
	})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)

	time.Sleep(60 * time.Millisecond)

	// Next call is admitted (HALF_OPEN); make it fail -> back to OPEN.
	err = b.Execute(ctx, func(context.Context) error { return transientErr() })
	require.Error(t, err)
	assert.Equal(t, resilience.StateOpen, b.Snapshot().State)

	time.Sleep(60 * time.Millisecond)

	// This time succeed -> CLOSED, failures reset to 0.
	err = b.Execute(ctx, func(context.Context) error { return nil })
	require.NoError(t, err)
	snap := b.Snapshot()
	assert.Equal(t, resilience.StateClosed, snap.State)
	assert.Equal(t, 0, snap.Failures)
}

func TestCircuitBreakerHalfOpenConcurrencyLimit(t *testing.T) {
	b := resilience.NewBreaker(resilience.CircuitConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
		HalfOpenRequests: 1,
	}, telemetry.Noop())
	ctx := context.Background()

	_ = b.Execute(ctx, func(context.Context) error { return transientErr() })
	time.Sleep(20 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = b.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := b.Execute(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen, "second concurrent half-open probe must be rejected")
	close(release)
}

func TestCircuitBreakerIgnoresNonEligibleErrors(t *testing.T) {
	b := resilience.NewBreaker(resilience.CircuitConfig{FailureThreshold: 1}, telemetry.Noop())
	ctx := context.Background()

	err := b.Execute(ctx, func(context.Context) error {
		return agenttools.New(agenttools.ClassInput, "bad args")
	})
	require.Error(t, err)
	assert.Equal(t, resilience.StateClosed, b.Snapshot().State, "non-eligible errors must not trip the breaker")
}

func TestCircuitBreakerSuccessResetsFailuresInClosed(t *testing.T) {
	b := resilience.NewBreaker(resilience.CircuitConfig{FailureThreshold: 3}, telemetry.Noop())
	ctx := context.Background()

	_ = b.Execute(ctx, func(context.Context) error { return transientErr() })
	_ = b.Execute(ctx, func(context.Context) error { return nil })
	snap := b.Snapshot()
	assert.Equal(t, 0, snap.Failures)
	assert.Equal(t, resilience.StateClosed, snap.State)
}

func TestRetryExhaustion(t *testing.T) {
	attempts := 0
	err := resilience.Do(context.Background(), resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, func(context.Context) error {
		attempts++
		return transientErr()
	})
	var exhausted *resilience.ErrRetryBudgetExhausted
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, attempts)
}

func TestRetryNonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	err := resilience.Do(context.Background(), resilience.RetryConfig{MaxAttempts: 5}, func(context.Context) error {
		attempts++
		return agenttools.New(agenttools.ClassInput, "bad")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestChainFallsThroughOnFailure(t *testing.T) {
	b1 := resilience.NewBreaker(resilience.CircuitConfig{FailureThreshold: 1}, telemetry.Noop())
	b2 := resilience.NewBreaker(resilience.CircuitConfig{FailureThreshold: 1}, telemetry.Noop())
	chain := resilience.NewChain(telemetry.Noop(),
		resilience.ChainProvider{Name: "primary", Breaker: b1, Retry: resilience.RetryConfig{MaxAttempts: 1}},
		resilience.ChainProvider{Name: "secondary", Breaker: b2, Retry: resilience.RetryConfig{MaxAttempts: 1}},
	)

	called := map[string]int{}
	err := chain.Execute(context.Background(), func(_ context.Context, provider string) error {
		called[provider]++
		if provider == "primary" {
			return transientErr()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, called["primary"])
	assert.Equal(t, 1, called["secondary"])
}

func TestChainExhaustion(t *testing.T) {
	b1 := resilience.NewBreaker(resilience.CircuitConfig{FailureThreshold: 1}, telemetry.Noop())
	chain := resilience.NewChain(telemetry.Noop(),
		resilience.ChainProvider{Name: "only", Breaker: b1, Retry: resilience.RetryConfig{MaxAttempts: 1}},
	)
	err := chain.Execute(context.Background(), func(context.Context, string) error { return transientErr() })
	var exhausted *resilience.ErrChainExhausted
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, []string{"only"}, exhausted.Attempted)
}
