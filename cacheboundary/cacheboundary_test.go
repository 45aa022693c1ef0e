package cacheboundary_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/cacheboundary"
)

func req(prefix string, msgs ...string) cacheboundary.Request {
	segs := make([]cacheboundary.Segment, len(msgs))
	for i, m := range msgs {
		segs[i] = cacheboundary.Segment{Role: "user", Content: m}
	}
	return cacheboundary.Request{
		Prefix:   cacheboundary.Segment{Role: "system", Content: prefix},
		Messages: segs,
	}
}

func TestFirstRequestHasNoBreakpoint(t *testing.T) {
	tr := cacheboundary.NewTracker(cacheboundary.Config{})
	p := tr.Predict(req("system prompt", "hello"))
	assert.Equal(t, cacheboundary.BreakpointNone, p.Breakpoint)
	assert.Equal(t, -1, p.BreakpointIndex)
}

func TestIdenticalPrefixStableAcrossTurns(t *testing.T) {
	tr := cacheboundary.NewTracker(cacheboundary.Config{})
	tr.Predict(req("system prompt", "hello"))
	p := tr.Predict(req("system prompt", "hello", "a new turn"))
	// Growth past the end of the prior request is a divergence at the
	// append point, not at position 0 -- the stable prefix is unaffected.
	require.NotEqual(t, 0, p.BreakpointIndex)
	assert.Greater(t, p.CacheableTokens, 0)
}

func TestChangedPrefixIsContentChangeAtZero(t *testing.T) {
	tr := cacheboundary.NewTracker(cacheboundary.Config{})
	tr.Predict(req("system prompt v1", "hello"))
	p := tr.Predict(req("system prompt v2", "hello"))
	assert.Equal(t, 0, p.BreakpointIndex)
	assert.Equal(t, cacheboundary.BreakpointContentChange, p.Breakpoint)
	assert.Equal(t, 0, p.CacheableTokens)
}

func TestRoleChangeClassification(t *testing.T) {
	tr := cacheboundary.NewTracker(cacheboundary.Config{})
	tr.Predict(cacheboundary.Request{
		Prefix:   cacheboundary.Segment{Role: "system", Content: "p"},
		Messages: []cacheboundary.Segment{{Role: "user", Content: "hi"}},
	})
	p := tr.Predict(cacheboundary.Request{
		Prefix:   cacheboundary.Segment{Role: "system", Content: "p"},
		Messages: []cacheboundary.Segment{{Role: "assistant", Content: "hi"}},
	})
	assert.Equal(t, cacheboundary.BreakpointRoleChange, p.Breakpoint)
}

func TestToolResultClassification(t *testing.T) {
	tr := cacheboundary.NewTracker(cacheboundary.Config{})
	tr.Predict(cacheboundary.Request{
		Prefix:   cacheboundary.Segment{Role: "system", Content: "p"},
		Messages: []cacheboundary.Segment{{Role: "user", Content: "hi"}},
	})
	p := tr.Predict(cacheboundary.Request{
		Prefix:   cacheboundary.Segment{Role: "system", Content: "p"},
		Messages: []cacheboundary.Segment{{Role: "user", Content: "hi", IsTool: true}},
	})
	assert.Equal(t, cacheboundary.BreakpointToolResult, p.Breakpoint)
}

func TestReconcileComputesHitRateAndSavings(t *testing.T) {
	tr := cacheboundary.NewTracker(cacheboundary.Config{CachedTokenCostRatio: 0.1})
	p := tr.Predict(req("system prompt", "hello"))
	rec := tr.Reconcile(p, cacheboundary.Actual{InputTokens: 1000, CacheReadTokens: 800})
	assert.InDelta(t, 0.8, rec.HitRate, 0.001)
	assert.InDelta(t, 720, rec.EstimatedSavings, 0.001)
}

func TestReconcileZeroInputTokensNoDivideByZero(t *testing.T) {
	tr := cacheboundary.NewTracker(cacheboundary.Config{})
	p := tr.Predict(req("system prompt"))
	rec := tr.Reconcile(p, cacheboundary.Actual{})
	assert.Equal(t, float64(0), rec.HitRate)
}

func TestLowHitRateRecommendation(t *testing.T) {
	tr := cacheboundary.NewTracker(cacheboundary.Config{LowHitRateThreshold: 0.5})
	for i := 0; i < 5; i++ {
		p := tr.Predict(req("system prompt", "hello"))
		tr.Reconcile(p, cacheboundary.Actual{InputTokens: 1000, CacheReadTokens: 100})
	}
	recs := tr.Recommendations()
	require.NotEmpty(t, recs)
	found := false
	for _, r := range recs {
		if r.Reason == "low_hit_rate" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTrendInsufficientDataEarly(t *testing.T) {
	tr := cacheboundary.NewTracker(cacheboundary.Config{})
	p := tr.Predict(req("system prompt"))
	tr.Reconcile(p, cacheboundary.Actual{InputTokens: 100, CacheReadTokens: 50})
	assert.Equal(t, cacheboundary.TrendInsufficient, tr.TrendDirection())
}

func TestTrendImproving(t *testing.T) {
	tr := cacheboundary.NewTracker(cacheboundary.Config{})
	rates := []int{10, 10, 90, 90}
	for _, r := range rates {
		p := tr.Predict(req("system prompt"))
		tr.Reconcile(p, cacheboundary.Actual{InputTokens: 100, CacheReadTokens: r})
	}
	assert.Equal(t, cacheboundary.TrendImproving, tr.TrendDirection())
}
