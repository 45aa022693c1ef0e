package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/agentcore/agentcore/agenttools"
	"github.com/agentcore/agentcore/telemetry"
)

// Health is the coarse provider health classification from spec §4.1,
// derived from recent success rate over a sliding window.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// ErrChainExhausted is returned when every provider in the chain rejected
// or failed the call.
type ErrChainExhausted struct {
	Attempted []string
	LastError error
}

func (e *ErrChainExhausted) Error() string {
	return agenttools.Errorf(agenttools.ClassPolicy, "chain_exhausted after trying %v: %v", e.Attempted, e.LastError).Error()
}

func (e *ErrChainExhausted) Unwrap() error { return e.LastError }

// providerEntry binds a named provider to its breaker and retry config and
// tracks a sliding window of recent outcomes for health classification.
type providerEntry struct {
	name    string
	breaker *Breaker
	retry   RetryConfig

	mu     sync.Mutex
	window []bool // true = success, oldest first
}

const healthWindowSize = 20

func (p *providerEntry) recordOutcome(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window = append(p.window, ok)
	if len(p.window) > healthWindowSize {
		p.window = p.window[len(p.window)-healthWindowSize:]
	}
}

func (p *providerEntry) health() Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.window) == 0 {
		return HealthHealthy
	}
	successes := 0
	for _, ok := range p.window {
		if ok {
			successes++
		}
	}
	rate := float64(successes) / float64(len(p.window))
	switch {
	case rate >= 0.9:
		return HealthHealthy
	case rate >= 0.5:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

// Chain dispatches to the highest-priority provider whose breaker admits a
// request, falling through to the next on failure (spec §4.1).
type Chain struct {
	tel       telemetry.Bundle
	providers []*providerEntry
}

// ChainProvider describes one entry in priority order (index 0 = highest
// priority) when constructing a Chain.
type ChainProvider struct {
	Name    string
	Breaker *Breaker
	Retry   RetryConfig
}

// NewChain constructs a fallback chain in the given priority order.
func NewChain(tel telemetry.Bundle, providers ...ChainProvider) *Chain {
	entries := make([]*providerEntry, 0, len(providers))
	for _, p := range providers {
		entries = append(entries, &providerEntry{name: p.Name, breaker: p.Breaker, retry: p.Retry})
	}
	return &Chain{tel: telemetry.WithDefaults(tel), providers: entries}
}

// Health reports the current health classification for each provider, in
// chain order.
func (c *Chain) Health() map[string]Health {
	out := make(map[string]Health, len(c.providers))
	for _, p := range c.providers {
		out[p.name] = p.health()
	}
	return out
}

// Execute dispatches fn (parameterized by the chosen provider name) through
// the chain: retry runs inside a single breaker slot per provider, and a
// provider whose breaker rejects the call is skipped; the rejection does not
// count toward that breaker's failure threshold but is recorded as a failed
// outcome in the provider's health window. Returns ErrChainExhausted if
// every provider fails or is unavailable.
func (c *Chain) Execute(ctx context.Context, fn func(ctx context.Context, providerName string) error) error {
	var attempted []string
	var lastErr error

	for _, p := range c.providers {
		attempted = append(attempted, p.name)
		start := time.Now()
		err := p.breaker.Execute(ctx, func(callCtx context.Context) error {
			return Do(callCtx, p.retry, func(retryCtx context.Context) error {
				return fn(retryCtx, p.name)
			})
		})
		if err == nil {
			p.recordOutcome(true)
			c.tel.Metrics.RecordTimer("resilience.chain.call", time.Since(start), "provider", p.name, "result", "ok")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.recordOutcome(false)
		c.tel.Metrics.RecordTimer("resilience.chain.call", time.Since(start), "provider", p.name, "result", "error")
		lastErr = err
	}

	return &ErrChainExhausted{Attempted: attempted, LastError: lastErr}
}
