package economics

import "sync"

// Phase is the inferred agent phase from spec §4.2's phase tracker.
type Phase string

const (
	PhaseExploring    Phase = "exploring"
	PhasePlanning     Phase = "planning"
	PhaseImplementing Phase = "implementing"
	PhaseVerifying    Phase = "verifying"
)

// PhaseConfig configures the sliding-window phase tracker.
type PhaseConfig struct {
	// WindowSize is how many recent tool calls inform the phase mix.
	WindowSize int
	// StallIterations is how many iterations without a phase advance
	// before a stall is reported.
	StallIterations int
}

func (c PhaseConfig) withDefaults() PhaseConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = 10
	}
	if c.StallIterations <= 0 {
		c.StallIterations = 5
	}
	return c
}

// phaseOrder defines "advancement": exploring -> planning -> implementing
// -> verifying. A phase transition counts as an advance only when it moves
// forward in this order; oscillating back to an earlier phase does not
// reset the stall counter upward, matching the intent of "has not advanced".
var phaseOrder = map[Phase]int{
	PhaseExploring:    0,
	PhasePlanning:     1,
	PhaseImplementing: 2,
	PhaseVerifying:    3,
}

// StallReport describes a detected phase stall.
type StallReport struct {
	Stalled        bool
	CurrentPhase   Phase
	IterationsHeld int
	Nudge          string
}

// PhaseTracker infers the agent's current phase from the tool-type mix in a
// sliding window and reports a stall when the phase has not advanced for
// StallIterations iterations despite activity.
type PhaseTracker struct {
	cfg PhaseConfig

	mu          sync.Mutex
	window      []string // tool names, most recent last
	current     Phase
	highWater   int
	heldSince   int
	iterations  int
}

// NewPhaseTracker constructs a tracker with the given config.
func NewPhaseTracker(cfg PhaseConfig) *PhaseTracker {
	return &PhaseTracker{cfg: cfg.withDefaults(), current: PhaseExploring}
}

// toolPhase classifies a tool name into the phase it's most associated
// with; unknown tools default to PhaseExploring so exploratory read-only
// tools don't falsely advance the phase.
func toolPhase(name string) Phase {
	switch name {
	case "read_file", "search", "grep", "list_files", "web_search":
		return PhaseExploring
	case "plan", "decompose", "write_plan":
		return PhasePlanning
	case "write_file", "edit_file", "create_file", "run_command":
		return PhaseImplementing
	case "run_tests", "verify", "lint", "review":
		return PhaseVerifying
	default:
		return PhaseExploring
	}
}

// Observe records a tool call's inferred phase and recomputes the dominant
// phase over the sliding window.
func (p *PhaseTracker) Observe(toolName string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.window = append(p.window, toolName)
	if len(p.window) > p.cfg.WindowSize {
		p.window = p.window[len(p.window)-p.cfg.WindowSize:]
	}

	counts := map[Phase]int{}
	for _, t := range p.window {
		counts[toolPhase(t)]++
	}
	best, bestCount := p.current, -1
	for ph, c := range counts {
		if c > bestCount || (c == bestCount && phaseOrder[ph] > phaseOrder[best]) {
			best, bestCount = ph, c
		}
	}

	if phaseOrder[best] > p.highWater {
		p.highWater = phaseOrder[best]
		p.heldSince = p.iterations
	}
	p.current = best
}

// Tick advances the tracker's iteration counter; call once per kernel
// iteration to measure how long the phase has been held.
func (p *PhaseTracker) Tick() StallReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.iterations++

	held := p.iterations - p.heldSince
	if held >= p.cfg.StallIterations {
		return StallReport{
			Stalled:        true,
			CurrentPhase:   p.current,
			IterationsHeld: held,
			Nudge:          nudgeFor(p.current),
		}
	}
	return StallReport{CurrentPhase: p.current}
}

func nudgeFor(p Phase) string {
	switch p {
	case PhaseExploring:
		return "exploration has continued without a plan; consider summarizing findings and proposing a plan"
	case PhasePlanning:
		return "planning has continued without implementation; consider committing to a concrete first step"
	case PhaseImplementing:
		return "implementation has continued without verification; consider running tests or reviewing the diff"
	case PhaseVerifying:
		return "verification has continued without resolution; consider reporting status or asking for guidance"
	default:
		return ""
	}
}

// Current returns the dominant phase over the current window.
func (p *PhaseTracker) Current() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
