package decompose

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentcore/agentcore/agentmodel"
	"github.com/agentcore/agentcore/telemetry"
)

// FileExistsFunc reports whether a relevant-file path is known to exist,
// used to downgrade (never error) missing-file references into warnings.
type FileExistsFunc func(path string) bool

// Decomposer turns a raw task description into a validated Decomposition,
// calling out to an LLM provider and tolerantly parsing whatever comes
// back, per spec §4.6.
type Decomposer struct {
	provider  agentmodel.Provider
	model     string
	fileCheck FileExistsFunc
	tel       telemetry.Bundle
}

// New constructs a Decomposer. fileCheck may be nil, in which case
// relevant-file existence is never checked.
func New(provider agentmodel.Provider, model string, fileCheck FileExistsFunc, tel telemetry.Bundle) *Decomposer {
	return &Decomposer{provider: provider, model: model, fileCheck: fileCheck, tel: tel}
}

const decomposePrompt = `Break the following task into an ordered list of ` +
	`subtasks as a JSON object: {"subtasks":[{"id":...,"description":...,` +
	`"type":...,"complexity":1-10,"dependencies":[...],"relevantFiles":[...]}]}.

Task:
%s`

// Decompose runs the LLM call, tolerantly parses its output, normalizes
// fields, resolves dependency references, builds the dependency graph,
// selects a strategy, detects conflicts, and validates the result. On a
// zero-subtask or error outcome it retries the LLM call exactly once
// before falling back to a heuristic decomposition of the raw task text.
func (d *Decomposer) Decompose(ctx context.Context, taskText string) (Decomposition, error) {
	attempt, reasoning, err := d.callLLM(ctx, taskText)
	if err != nil || len(attempt) == 0 {
		d.tel.Logger.Warn(ctx, "decompose: first LLM attempt failed, retrying", "error", err)
		reasoning = append(reasoning, "llm.fallback: first attempt produced zero subtasks, retrying once")
		attempt, retryReasoning, retryErr := d.callLLM(ctx, taskText)
		reasoning = append(reasoning, retryReasoning...)
		if retryErr != nil || len(attempt) == 0 {
			d.tel.Logger.Warn(ctx, "decompose: retry failed, falling back to heuristic decomposition", "error", retryErr)
			reasoning = append(reasoning, "llm.fallback: retry also failed, using heuristic decomposition")
			attempt = heuristicDecompose(taskText)
		}
		return d.finish(attempt, reasoning), nil
	}
	return d.finish(attempt, reasoning), nil
}

func (d *Decomposer) callLLM(ctx context.Context, taskText string) ([]Subtask, []string, error) {
	if d.provider == nil {
		return nil, nil, fmt.Errorf("decompose: no provider configured")
	}
	resp, err := d.provider.Chat(ctx, []agentmodel.Message{
		{Role: agentmodel.RoleUser, Content: []agentmodel.Part{
			agentmodel.TextPart{Text: fmt.Sprintf(decomposePrompt, taskText)},
		}},
	}, agentmodel.ChatOptions{Model: d.model})
	if err != nil {
		return nil, nil, err
	}

	var text strings.Builder
	for _, p := range resp.Content {
		if tp, ok := p.(agentmodel.TextPart); ok {
			text.WriteString(tp.Text)
		}
	}

	rd, reasoning := parseTolerant(text.String())
	return normalize(rd.subtasks), reasoning, nil
}

// heuristicDecompose is the last-resort layer 5 fallback when both LLM
// attempts fail outright: a single mega-task covering the whole request.
func heuristicDecompose(taskText string) []Subtask {
	return normalize([]map[string]any{{"description": strings.TrimSpace(taskText)}})
}

func (d *Decomposer) finish(subtasks []Subtask, reasoning []string) Decomposition {
	resolveDependencies(subtasks)
	g := buildGraph(subtasks)
	strat := selectStrategy(subtasks, g)
	conflicts := detectConflicts(subtasks, g)
	issues, valid := validate(subtasks, g)
	issues = append(issues, d.checkMissingFiles(subtasks)...)

	return Decomposition{
		Subtasks:  subtasks,
		Graph:     g,
		Strategy:  strat,
		Conflicts: conflicts,
		Issues:    issues,
		Reasoning: reasoning,
		Valid:     valid,
	}
}

func (d *Decomposer) checkMissingFiles(subtasks []Subtask) []ValidationIssue {
	if d.fileCheck == nil {
		return nil
	}
	var issues []ValidationIssue
	for _, s := range subtasks {
		for _, f := range s.RelevantFiles {
			if !d.fileCheck(f) {
				issues = append(issues, ValidationIssue{
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("subtask %s: relevant file %q not found", s.ID, f),
				})
			}
		}
	}
	return issues
}
