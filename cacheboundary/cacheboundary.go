// Package cacheboundary implements the C component: per-request prompt
// prefix-hash comparison, cache breakpoint classification, cacheable-token
// prediction, and reconciliation against provider-reported cache counts.
// Grounded on the teacher's runtime/agent/runtime/model_tracing.go usage-
// event shape and provenance.go's metadata-envelope style, generalized from
// span annotation into a standalone predictive tracker.
package cacheboundary

import (
	"crypto/sha256"
	"encoding/hex"
)

// BreakpointKind classifies where a request's content first diverges from
// the previous request's content.
type BreakpointKind string

const (
	BreakpointNone           BreakpointKind = "none"
	BreakpointContentChange  BreakpointKind = "content_change"
	BreakpointRoleChange     BreakpointKind = "role_change"
	BreakpointToolResult     BreakpointKind = "tool_result"
	BreakpointDynamicContent BreakpointKind = "dynamic_content"
)

// Trend summarizes the recent direction of the hit rate.
type Trend string

const (
	TrendStable     Trend = "stable"
	TrendImproving  Trend = "improving"
	TrendDeclining  Trend = "declining"
	TrendInsufficient Trend = "insufficient_data"
)

// Segment is one canonicalized, hashable unit of a request: the stable
// prefix (system prompt + tool definitions) is segment 0, then one segment
// per message in order.
type Segment struct {
	Role    string
	Content string
	IsTool  bool
}

// Request is the canonicalized view of an LLM call that C compares against
// the previous call in the same session.
type Request struct {
	Prefix   Segment
	Messages []Segment
}

// Prediction is C's pre-flight estimate, computed before the call is sent.
type Prediction struct {
	Breakpoint      BreakpointKind
	BreakpointIndex int // -1 if no prior request to compare against
	CacheableTokens int
	TotalTokens     int
}

// Actual is the provider-reported usage used to reconcile a Prediction.
type Actual struct {
	InputTokens     int
	CacheReadTokens int
	CacheWriteTokens int
}

// Reconciliation is the settled record after a response arrives.
type Reconciliation struct {
	Prediction      Prediction
	Actual          Actual
	HitRate         float64 // cacheReadTokens / inputTokens, 0 if inputTokens==0
	EstimatedSavings float64
}

// Recommendation is emitted when the running stats cross a configured
// threshold.
type Recommendation struct {
	Reason  string
	Detail  string
}

// Config carries the thresholds that drive recommendations.
type Config struct {
	// LowHitRateThreshold triggers a recommendation when the running
	// average hit rate falls below it. Defaults to 0.5.
	LowHitRateThreshold float64
	// DominantBreakpointRatio triggers a recommendation when a single
	// non-none breakpoint kind accounts for at least this fraction of
	// recent requests. Defaults to 0.6.
	DominantBreakpointRatio float64
	// WindowSize bounds how many recent reconciliations inform the
	// running average and trend. Defaults to 20.
	WindowSize int
	// CachedTokenCostRatio approximates a cached token's cost relative to
	// a fresh one, used for EstimatedSavings. Defaults to 0.1 (a 90%
	// discount), a reasonable approximation of common provider pricing.
	CachedTokenCostRatio float64
}

func (c Config) withDefaults() Config {
	if c.LowHitRateThreshold <= 0 {
		c.LowHitRateThreshold = 0.5
	}
	if c.DominantBreakpointRatio <= 0 {
		c.DominantBreakpointRatio = 0.6
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 20
	}
	if c.CachedTokenCostRatio <= 0 {
		c.CachedTokenCostRatio = 0.1
	}
	return c
}

// approxTokens estimates token count from content length. This mirrors the
// coarse char/4 heuristic used elsewhere in the pack when a real tokenizer
// isn't wired; C only needs relative sizing for breakpoint comparison, not
// exact counts (the provider's Actual figures are authoritative).
func approxTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}

func hashSegment(s Segment) string {
	h := sha256.New()
	h.Write([]byte(s.Role))
	h.Write([]byte{0})
	h.Write([]byte(s.Content))
	if s.IsTool {
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Tracker maintains per-session prefix-hash history and running cache
// statistics.
type Tracker struct {
	cfg Config

	prevHashes []string
	prevKinds  []Segment

	history []Reconciliation
}

// NewTracker constructs a Tracker with the given config.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg.withDefaults()}
}

// Predict compares req against the previous request on this tracker and
// returns the cache breakpoint classification and cacheable-token estimate.
// Call this before sending the request to the provider.
func (t *Tracker) Predict(req Request) Prediction {
	segments := make([]Segment, 0, len(req.Messages)+1)
	segments = append(segments, req.Prefix)
	segments = append(segments, req.Messages...)

	hashes := make([]string, len(segments))
	for i, s := range segments {
		hashes[i] = hashSegment(s)
	}

	total := 0
	for _, s := range segments {
		total += approxTokens(s.Content)
	}

	if t.prevHashes == nil {
		t.prevHashes = hashes
		t.prevKinds = segments
		return Prediction{Breakpoint: BreakpointNone, BreakpointIndex: -1, CacheableTokens: 0, TotalTokens: total}
	}

	divergeAt := -1
	n := len(hashes)
	if len(t.prevHashes) < n {
		n = len(t.prevHashes)
	}
	for i := 0; i < n; i++ {
		if hashes[i] != t.prevHashes[i] {
			divergeAt = i
			break
		}
	}
	if divergeAt == -1 && len(hashes) != len(t.prevHashes) {
		divergeAt = n
	}

	var kind BreakpointKind
	var cacheable int
	if divergeAt == -1 {
		kind = BreakpointNone
		for _, s := range segments {
			cacheable += approxTokens(s.Content)
		}
	} else {
		kind = classifyBreakpoint(segments, t.prevKinds, divergeAt)
		for i := 0; i < divergeAt; i++ {
			cacheable += approxTokens(segments[i].Content)
		}
	}

	t.prevHashes = hashes
	t.prevKinds = segments

	return Prediction{
		Breakpoint:      kind,
		BreakpointIndex: divergeAt,
		CacheableTokens: cacheable,
		TotalTokens:     total,
	}
}

func classifyBreakpoint(cur, prev []Segment, at int) BreakpointKind {
	if at >= len(prev) {
		// Pure growth: new content appended past the end of the prior
		// request (a new message in the turn).
		if at < len(cur) && cur[at].IsTool {
			return BreakpointToolResult
		}
		return BreakpointDynamicContent
	}
	if at >= len(cur) {
		return BreakpointContentChange
	}
	if cur[at].Role != prev[at].Role {
		return BreakpointRoleChange
	}
	if cur[at].IsTool || prev[at].IsTool {
		return BreakpointToolResult
	}
	return BreakpointContentChange
}

// Reconcile records the provider's actual usage against a prior Prediction
// and updates running statistics.
func (t *Tracker) Reconcile(p Prediction, a Actual) Reconciliation {
	var hitRate float64
	if a.InputTokens > 0 {
		hitRate = float64(a.CacheReadTokens) / float64(a.InputTokens)
	}
	savings := float64(a.CacheReadTokens) * (1 - t.cfg.CachedTokenCostRatio)

	rec := Reconciliation{Prediction: p, Actual: a, HitRate: hitRate, EstimatedSavings: savings}

	t.history = append(t.history, rec)
	if len(t.history) > t.cfg.WindowSize {
		t.history = t.history[len(t.history)-t.cfg.WindowSize:]
	}
	return rec
}

// AverageHitRate returns the mean hit rate over the current window.
func (t *Tracker) AverageHitRate() float64 {
	if len(t.history) == 0 {
		return 0
	}
	var sum float64
	for _, r := range t.history {
		sum += r.HitRate
	}
	return sum / float64(len(t.history))
}

// TrendDirection compares the first and second half of the window's hit
// rates to classify the trend.
func (t *Tracker) TrendDirection() Trend {
	n := len(t.history)
	if n < 4 {
		return TrendInsufficient
	}
	half := n / 2
	var firstSum, secondSum float64
	for i := 0; i < half; i++ {
		firstSum += t.history[i].HitRate
	}
	for i := half; i < n; i++ {
		secondSum += t.history[i].HitRate
	}
	first := firstSum / float64(half)
	second := secondSum / float64(n-half)

	const noise = 0.03
	switch {
	case second-first > noise:
		return TrendImproving
	case first-second > noise:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// Recommendations inspects the running window and emits suggestions when
// hit rate is low or a single breakpoint kind dominates recent requests.
func (t *Tracker) Recommendations() []Recommendation {
	var recs []Recommendation
	if len(t.history) == 0 {
		return recs
	}

	if avg := t.AverageHitRate(); avg < t.cfg.LowHitRateThreshold {
		recs = append(recs, Recommendation{
			Reason: "low_hit_rate",
			Detail: "average cache hit rate is below threshold; consider stabilizing the prompt prefix or reordering dynamic content to the end of the message list",
		})
	}

	counts := map[BreakpointKind]int{}
	for _, r := range t.history {
		if r.Prediction.Breakpoint != BreakpointNone {
			counts[r.Prediction.Breakpoint]++
		}
	}
	for kind, c := range counts {
		if float64(c)/float64(len(t.history)) >= t.cfg.DominantBreakpointRatio {
			recs = append(recs, Recommendation{
				Reason: "dominant_breakpoint",
				Detail: string(kind) + " accounts for most recent cache breaks",
			})
		}
	}

	return recs
}
