package economics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
)

// ToolCallObservation is one entry in the doom-loop detector's sliding
// window.
type ToolCallObservation struct {
	ToolName string
	Args     map[string]any
	FilePath string
	Output   string
}

// DoomLoopConfig configures the sliding-window doom-loop detector (spec §4.2).
type DoomLoopConfig struct {
	// HistorySize is how many recent tool calls are retained (N).
	HistorySize int
	// WindowSize is how many of the most recent calls are compared for
	// exact repetition (W).
	WindowSize int
	// Threshold is how many of the window's calls must share a signature
	// before the loop is reported.
	Threshold int
}

func (c DoomLoopConfig) withDefaults() DoomLoopConfig {
	if c.HistorySize <= 0 {
		c.HistorySize = 50
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 5
	}
	if c.Threshold <= 0 {
		c.Threshold = c.WindowSize
	}
	return c
}

// DoomLoopReport describes a detected doom loop.
type DoomLoopReport struct {
	Detected   bool
	Signature  string
	Kind       string // "identical_calls" | "noop_edit" | "oscillating_rw"
	Suggestion string
}

// DoomLoopDetector maintains a bounded history of recent tool calls and
// trips when the most recent window is suspiciously repetitive.
type DoomLoopDetector struct {
	cfg DoomLoopConfig

	mu      sync.Mutex
	history []ToolCallObservation
}

// NewDoomLoopDetector constructs a detector with the given config (zero
// value uses spec-reasonable defaults).
func NewDoomLoopDetector(cfg DoomLoopConfig) *DoomLoopDetector {
	return &DoomLoopDetector{cfg: cfg.withDefaults()}
}

// Observe appends a tool call to the rolling history, evicting the oldest
// entry once HistorySize is exceeded.
func (d *DoomLoopDetector) Observe(obs ToolCallObservation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, obs)
	if len(d.history) > d.cfg.HistorySize {
		d.history = d.history[len(d.history)-d.cfg.HistorySize:]
	}
}

// Check inspects the current window and reports a doom loop if one is found.
func (d *DoomLoopDetector) Check() DoomLoopReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.history)
	if n < d.cfg.WindowSize {
		return DoomLoopReport{}
	}
	window := d.history[n-d.cfg.WindowSize:]

	if sig, ok := repeatedSignature(window, d.cfg.Threshold); ok {
		return DoomLoopReport{
			Detected:   true,
			Signature:  sig,
			Kind:       "identical_calls",
			Suggestion: "the last calls are identical; try a different tool or ask the user for guidance",
		}
	}

	if sig, ok := repeatedNoopEdit(window, d.cfg.Threshold); ok {
		return DoomLoopReport{
			Detected:   true,
			Signature:  sig,
			Kind:       "noop_edit",
			Suggestion: "repeated edits to the same file are producing no change; verify the edit actually applies",
		}
	}

	if sig, ok := oscillatingReadWrite(window); ok {
		return DoomLoopReport{
			Detected:   true,
			Signature:  sig,
			Kind:       "oscillating_rw",
			Suggestion: "alternating reads/writes on the same path with no progress; consider stopping to re-plan",
		}
	}

	return DoomLoopReport{}
}

func signatureOf(toolName string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	normalized := make(map[string]any, len(args))
	for _, k := range keys {
		normalized[k] = args[k]
	}
	b, _ := json.Marshal(struct {
		Tool string
		Args map[string]any
	}{Tool: toolName, Args: normalized})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func repeatedSignature(window []ToolCallObservation, threshold int) (string, bool) {
	counts := map[string]int{}
	for _, o := range window {
		sig := signatureOf(o.ToolName, o.Args)
		counts[sig]++
		if counts[sig] >= threshold {
			return sig, true
		}
	}
	return "", false
}

func repeatedNoopEdit(window []ToolCallObservation, threshold int) (string, bool) {
	counts := map[string]int{}
	for _, o := range window {
		if o.FilePath == "" || !isWriteTool(o.ToolName) {
			continue
		}
		key := o.FilePath + "\x00" + o.Output
		counts[key]++
		if counts[key] >= threshold {
			sum := sha256.Sum256([]byte(key))
			return hex.EncodeToString(sum[:]), true
		}
	}
	return "", false
}

func oscillatingReadWrite(window []ToolCallObservation) (string, bool) {
	if len(window) < 4 {
		return "", false
	}
	byPath := map[string][]string{}
	for _, o := range window {
		if o.FilePath == "" {
			continue
		}
		op := "read"
		if isWriteTool(o.ToolName) {
			op = "write"
		}
		byPath[o.FilePath] = append(byPath[o.FilePath], op)
	}
	for path, ops := range byPath {
		if len(ops) < 4 {
			continue
		}
		alternating := true
		for i := 1; i < len(ops); i++ {
			if ops[i] == ops[i-1] {
				alternating = false
				break
			}
		}
		if alternating {
			sum := sha256.Sum256([]byte(path))
			return hex.EncodeToString(sum[:]), true
		}
	}
	return "", false
}

func isWriteTool(name string) bool {
	switch name {
	case "write_file", "edit_file", "create_file", "delete_file":
		return true
	default:
		return false
	}
}
