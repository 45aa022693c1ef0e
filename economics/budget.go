// Package economics implements the B component: incremental token/cost/
// iteration accounting with two enforcement regimes and doom-loop/
// phase-stall detection. Verdicts are computed from usage already
// recorded; there is no pre-flight check of a call before it is sent.
// Grounded on the
// teacher's runtime/agent/runtime budget-boundary plumbing
// (activity_input_budget.go, hints package) generalized from a payload-size
// guard into the full spec §4.2 economics model.
package economics

import (
	"sync"

	"github.com/agentcore/agentcore/telemetry"
)

type (
	// EnforcementMode selects how budget overruns affect the agent loop
	// (spec §4.2).
	EnforcementMode string

	// BudgetType names which dimension triggered a verdict.
	BudgetType string

	// SuggestedAction is the kernel-facing recommendation attached to a verdict.
	SuggestedAction string

	// BudgetMode summarizes the overall posture implied by a verdict.
	BudgetMode string

	// Usage is the spec §3 ExecutionUsage data model.
	Usage struct {
		Tokens                 int
		InputTokens            int
		OutputTokens           int
		CumulativeInputTokens  int
		Cost                   float64
		Iterations             int
		ToolCalls              int
		LLMCalls               int
		BaselineContextTokens  int
		LastInputTokens        int
	}

	// CallUsage is what a single provider call reports back, the raw
	// material charged against Usage.
	CallUsage struct {
		InputTokens     int
		OutputTokens    int
		CacheReadTokens int
		Cost            float64
	}

	// Verdict is the spec §3 Budget verdict data model.
	Verdict struct {
		CanContinue           bool
		IsSoftLimit           bool
		IsHardLimit           bool
		BudgetType            BudgetType
		SuggestedAction       SuggestedAction
		ForceTextOnly         bool
		BudgetMode            BudgetMode
		AllowTaskContinuation bool
	}

	// Config carries the environment knobs from spec §6 relevant to B.
	Config struct {
		EnforcementMode EnforcementMode
		MaxTokens       int
		SoftTokenLimit  int
		MaxCost         float64
		SoftCostLimit   float64
		MaxIterations   int
	}
)

const (
	ModeStrict       EnforcementMode = "strict"
	ModeDoomloopOnly EnforcementMode = "doomloop_only"

	BudgetTokens     BudgetType = "tokens"
	BudgetCost       BudgetType = "cost"
	BudgetIterations BudgetType = "iterations"
	BudgetTime       BudgetType = "time"

	ActionContinue         SuggestedAction = "continue"
	ActionWarn             SuggestedAction = "warn"
	ActionRequestExtension SuggestedAction = "request_extension"
	ActionStop             SuggestedAction = "stop"

	ModeNormal     BudgetMode = "normal"
	ModeWarn       BudgetMode = "warn"
	ModeRestricted BudgetMode = "restricted"
	ModeHard       BudgetMode = "hard"

	// softLimitSoftRatio is the hard-coded 80% threshold from spec §4.2 /
	// §9 Open Questions. It is deliberately separate from SoftTokenLimit:
	// the spec flags this as a possibly-unintentional but load-bearing
	// legacy behavior that must be preserved, not "fixed".
	softLimitSoftRatio = 0.8
)

func (c Config) withDefaults() Config {
	if c.EnforcementMode == "" {
		c.EnforcementMode = ModeStrict
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 100
	}
	return c
}

// Tracker is the stateful B instance for one session (or one swarm worker,
// each of which holds its own Tracker per spec §4.7).
type Tracker struct {
	mu  sync.Mutex
	cfg Config
	tel telemetry.Bundle

	usage Usage

	baselineSet      bool
	baseline         int
	baselineRefined  bool
	firstCallSeen    bool

	doomloop *DoomLoopDetector
	phase    *PhaseTracker
}

// New constructs a Tracker with its own DoomLoopDetector and PhaseTracker,
// both built from their zero-value configs (i.e. their defaults).
func New(cfg Config, tel telemetry.Bundle) *Tracker {
	return &Tracker{
		cfg:      cfg.withDefaults(),
		tel:      telemetry.WithDefaults(tel),
		doomloop: NewDoomLoopDetector(DoomLoopConfig{}),
		phase:    NewPhaseTracker(PhaseConfig{}),
	}
}

// SetBaseline records an estimated baseline context size (system prompt +
// tools + rules). Once set, the tracker switches to incremental accounting.
// The estimate is overwritten by the actual observed inputTokens on the
// first LLM call (spec §4.2 "baseline refinement"), exactly once.
func (t *Tracker) SetBaseline(estimate int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baselineSet = true
	t.baseline = estimate
	t.baselineRefined = false
	t.usage.BaselineContextTokens = estimate
}

// Incremental reports whether the tracker is in incremental-accounting mode.
func (t *Tracker) Incremental() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baselineSet
}

// Usage returns a snapshot of the current accounting state.
func (t *Tracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// RecordCall charges one LLM call's usage against the tracker per spec
// §4.2's cumulative/incremental modes, applying the cache discount, and
// refining the baseline on the very first call if one was pre-set.
func (t *Tracker) RecordCall(u CallUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.baselineSet && !t.baselineRefined && !t.firstCallSeen {
		t.baseline = u.InputTokens
		t.usage.BaselineContextTokens = u.InputTokens
		t.baselineRefined = true
	}
	t.firstCallSeen = true

	var inputCharge int
	if t.baselineSet {
		delta := u.InputTokens - t.usage.LastInputTokens
		if delta < 0 {
			delta = 0
		}
		inputCharge = delta - u.CacheReadTokens
		if inputCharge < 0 {
			inputCharge = 0
		}
	} else {
		inputCharge = u.InputTokens - u.CacheReadTokens
		if inputCharge < 0 {
			inputCharge = 0
		}
	}

	t.usage.LastInputTokens = u.InputTokens
	t.usage.InputTokens += inputCharge
	t.usage.OutputTokens += u.OutputTokens
	t.usage.Tokens += inputCharge + u.OutputTokens
	t.usage.CumulativeInputTokens += u.InputTokens
	t.usage.Cost += u.Cost
	t.usage.LLMCalls++

	t.tel.Metrics.IncCounter("economics.tokens_charged", float64(inputCharge+u.OutputTokens))
}

// RecordToolCall increments the tool-call counter, the raw material for
// doom-loop and phase detection.
func (t *Tracker) RecordToolCall(toolName string, args map[string]any, filePath string, output string) {
	t.mu.Lock()
	t.usage.ToolCalls++
	t.mu.Unlock()
	t.doomloop.Observe(ToolCallObservation{ToolName: toolName, Args: args, FilePath: filePath, Output: output})
	t.phase.Observe(toolName)
}

// DoomLoop exposes the tracker's doom-loop detector so a caller (the
// kernel) can consult it directly after RecordToolCall, independent of the
// token/cost verdict computed by Check.
func (t *Tracker) DoomLoop() *DoomLoopDetector {
	return t.doomloop
}

// Phase exposes the tracker's phase-stall tracker, consulted by the kernel
// once per iteration alongside Check.
func (t *Tracker) Phase() *PhaseTracker {
	return t.phase
}

// BeginIteration increments the iteration counter. Callers call this once
// per kernel loop turn before consulting Check.
func (t *Tracker) BeginIteration() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.Iterations++
	return t.usage.Iterations
}

// Check computes the budget verdict for the current usage state, per the
// spec §4.2 enforcement table. isFirstIteration must reflect whether any
// LLM call has settled yet in the session; K enforces the first-iteration
// guard independently (spec §5), but Check also refuses to report
// ForceTextOnly before then so verdicts are self-consistent.
func (t *Tracker) Check(isFirstIteration bool) Verdict {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkLocked(isFirstIteration)
}

func (t *Tracker) checkLocked(isFirstIteration bool) Verdict {
	mode := t.cfg.EnforcementMode
	strict := mode == ModeStrict

	v := Verdict{CanContinue: true, SuggestedAction: ActionContinue, BudgetMode: ModeNormal, AllowTaskContinuation: true}

	// Iterations are always hard, in both enforcement modes.
	if t.cfg.MaxIterations > 0 && t.usage.Iterations >= t.cfg.MaxIterations {
		v.CanContinue = false
		v.IsHardLimit = true
		v.BudgetType = BudgetIterations
		v.SuggestedAction = ActionStop
		v.BudgetMode = ModeHard
		v.AllowTaskContinuation = false
		if !isFirstIteration {
			v.ForceTextOnly = true
		}
		return v
	}

	hardTokens := t.cfg.MaxTokens > 0 && t.usage.Tokens >= t.cfg.MaxTokens
	hardCost := t.cfg.MaxCost > 0 && t.usage.Cost >= t.cfg.MaxCost

	if hardTokens || hardCost {
		budgetType := BudgetTokens
		if hardCost && !hardTokens {
			budgetType = BudgetCost
		}
		if strict {
			v.CanContinue = false
			v.IsHardLimit = true
			v.BudgetType = budgetType
			v.SuggestedAction = ActionStop
			v.BudgetMode = ModeHard
			return v
		}
		// doomloop_only: hard overrun only warns.
		v.CanContinue = true
		v.IsHardLimit = true
		v.BudgetType = budgetType
		v.SuggestedAction = ActionWarn
		v.BudgetMode = ModeWarn
		return v
	}

	softTokens := t.cfg.SoftTokenLimit > 0 && t.usage.Tokens >= t.cfg.SoftTokenLimit
	softCost := t.cfg.SoftCostLimit > 0 && t.usage.Cost >= t.cfg.SoftCostLimit

	if softTokens || softCost {
		v.IsSoftLimit = true
		v.BudgetType = BudgetTokens
		if softCost && !softTokens {
			v.BudgetType = BudgetCost
		}

		// The 80% escalation only applies to the token dimension; the
		// table in spec §4.2 defines no equivalent split for cost.
		over80 := softTokens && t.usage.Tokens >= softEightyThreshold(t.cfg)

		if strict {
			if over80 {
				v.ForceTextOnly = !isFirstIteration
				v.SuggestedAction = ActionStop
				v.BudgetMode = ModeRestricted
			} else {
				v.SuggestedAction = ActionRequestExtension
				v.BudgetMode = ModeWarn
			}
			return v
		}
		// doomloop_only never forces text-only on soft limits.
		v.SuggestedAction = ActionRequestExtension
		v.BudgetMode = ModeWarn
		return v
	}

	return v
}

// softEightyThreshold computes the hard-coded "80% of hard token limit"
// boundary referenced by spec §4.2's table ("tokens >= soft and >= 80%").
// This is intentionally keyed off MaxTokens, not SoftTokenLimit: see the
// Open Question in spec §9 — the spec mandates preserving this exact
// (possibly accidental) coupling rather than normalizing it.
func softEightyThreshold(cfg Config) int {
	if cfg.MaxTokens <= 0 {
		return 0
	}
	return int(float64(cfg.MaxTokens) * softLimitSoftRatio)
}
