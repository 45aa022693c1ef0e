package swarm

import (
	"sort"
	"time"
)

// SwarmTaskResult is what a worker returns for one completed subtask.
type SwarmTaskResult struct {
	SubtaskID    string
	WorkerID     string
	FilesChanged []string
	TextOutput   string
	SubFindings  []string
	Err          error
	CompletedAt  time.Time
}

// ConflictPolicy chooses how the synthesizer resolves two siblings editing
// the same file.
type ConflictPolicy string

const (
	// PolicyLatestWins prefers the result that completed later.
	PolicyLatestWins ConflictPolicy = "latest_wins"
	// PolicyHighestComplexityWins prefers the subtask with higher
	// declared complexity, tie-broken by latest completion.
	PolicyHighestComplexityWins ConflictPolicy = "highest_complexity_wins"
	// PolicyLLMMerge flags the conflict for an external LLM-mediated
	// merge instead of picking a winner; Synthesize never resolves these
	// itself, it only reports them.
	PolicyLLMMerge ConflictPolicy = "llm_merge"
)

// FileConflict records two siblings that both touched the same file.
type FileConflict struct {
	Path    string
	Winner  string // subtask id, empty when Policy is PolicyLLMMerge
	Losers  []string
	Policy  ConflictPolicy
}

// SynthesisResult is the merged view of a completed swarm wave set.
type SynthesisResult struct {
	Results        []SwarmTaskResult
	FilesChanged   []string
	Conflicts      []FileConflict
	NeedsLLMMerge  []FileConflict
}

type complexityLookup func(subtaskID string) int

// Synthesize merges worker results, resolving same-file collisions per
// policy. complexity is consulted only under PolicyHighestComplexityWins.
func Synthesize(results []SwarmTaskResult, policy ConflictPolicy, complexity complexityLookup) SynthesisResult {
	byFile := map[string][]SwarmTaskResult{}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, f := range r.FilesChanged {
			byFile[f] = append(byFile[f], r)
		}
	}

	out := SynthesisResult{Results: results}
	seenFiles := map[string]bool{}
	for file, writers := range byFile {
		if !seenFiles[file] {
			out.FilesChanged = append(out.FilesChanged, file)
			seenFiles[file] = true
		}
		if len(writers) < 2 {
			continue
		}
		conflict := resolveFileConflict(file, writers, policy, complexity)
		if policy == PolicyLLMMerge {
			out.NeedsLLMMerge = append(out.NeedsLLMMerge, conflict)
		} else {
			out.Conflicts = append(out.Conflicts, conflict)
		}
	}
	sort.Strings(out.FilesChanged)
	return out
}

func resolveFileConflict(file string, writers []SwarmTaskResult, policy ConflictPolicy, complexity complexityLookup) FileConflict {
	c := FileConflict{Path: file, Policy: policy}
	switch policy {
	case PolicyHighestComplexityWins:
		sort.SliceStable(writers, func(i, j int) bool {
			ci, cj := 0, 0
			if complexity != nil {
				ci, cj = complexity(writers[i].SubtaskID), complexity(writers[j].SubtaskID)
			}
			if ci != cj {
				return ci > cj
			}
			return writers[i].CompletedAt.After(writers[j].CompletedAt)
		})
	case PolicyLLMMerge:
		// No winner chosen here; the caller's LLM merge step decides.
	default: // PolicyLatestWins
		sort.SliceStable(writers, func(i, j int) bool {
			return writers[i].CompletedAt.After(writers[j].CompletedAt)
		})
	}

	if policy != PolicyLLMMerge {
		c.Winner = writers[0].SubtaskID
		for _, w := range writers[1:] {
			c.Losers = append(c.Losers, w.SubtaskID)
		}
	} else {
		for _, w := range writers {
			c.Losers = append(c.Losers, w.SubtaskID)
		}
	}
	return c
}
