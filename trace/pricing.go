package trace

// ModelPrice is the per-million-token rate for one model, in the same
// currency unit as the rest of the system (spec leaves the unit
// unspecified; this tracks the provider's own unit, typically USD).
type ModelPrice struct {
	InputPerMillion      float64
	OutputPerMillion     float64
	CacheReadPerMillion  float64
	CacheWritePerMillion float64
}

// PricingTable is consulted when a provider response carries no explicit
// cost field; spec §4.5 prefers provider-reported cost and falls back to
// this table otherwise.
type PricingTable map[string]ModelPrice

// CallTokens is the raw token breakdown of one settled LLM call, used both
// for cost estimation and for iteration/session aggregation.
type CallTokens struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Estimate computes a call's cost from actual token counts, applying each
// price tier independently (cache reads and writes are priced separately
// from fresh input/output per spec's "cache discount" framing).
func (pt PricingTable) Estimate(model string, t CallTokens) float64 {
	price, ok := pt[model]
	if !ok {
		return 0
	}
	freshInput := t.InputTokens - t.CacheReadTokens
	if freshInput < 0 {
		freshInput = 0
	}
	const million = 1_000_000.0
	return float64(freshInput)*price.InputPerMillion/million +
		float64(t.OutputTokens)*price.OutputPerMillion/million +
		float64(t.CacheReadTokens)*price.CacheReadPerMillion/million +
		float64(t.CacheWriteTokens)*price.CacheWritePerMillion/million
}
