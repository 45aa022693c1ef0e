package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/agentcore/agentcore/decompose"
	"github.com/agentcore/agentcore/telemetry"
)

func echoExec(_ context.Context, w *Worker, s decompose.Subtask) SwarmTaskResult {
	return SwarmTaskResult{SubtaskID: s.ID, WorkerID: w.Spec.WorkerID, FilesChanged: s.Modifies, CompletedAt: time.Now()}
}

func TestDispatchOrderSortsByComplexityThenPriority(t *testing.T) {
	tasks := []decompose.Subtask{
		{ID: "low", Complexity: 2},
		{ID: "high-crit", Complexity: 8, Priority: "critical"},
		{ID: "high-normal", Complexity: 8},
	}
	ordered := dispatchOrder(tasks)
	if ordered[0].ID != "high-crit" {
		t.Fatalf("expected high-crit first, got %s", ordered[0].ID)
	}
	if ordered[1].ID != "high-normal" {
		t.Fatalf("expected high-normal second, got %s", ordered[1].ID)
	}
	if ordered[2].ID != "low" {
		t.Fatalf("expected low last, got %s", ordered[2].ID)
	}
}

func TestRunGraphExecutesAllSubtasksAcrossWaves(t *testing.T) {
	subtasks := []decompose.Subtask{
		{ID: "research-1", Type: decompose.TypeResearch, Complexity: 3},
		{ID: "research-2", Type: decompose.TypeResearch, Complexity: 3},
		{ID: "implement", Type: decompose.TypeImplement, Complexity: 5, Dependencies: []string{"research-1", "research-2"}},
	}
	g := decompose.DependencyGraph{
		Dependencies:   map[string][]string{"research-1": nil, "research-2": nil, "implement": {"research-1", "research-2"}},
		ParallelGroups: [][]string{{"research-1", "research-2"}, {"implement"}},
	}

	specs := []Spec{{WorkerID: "w1"}, {WorkerID: "w2"}}
	pool, err := NewPool(specs, nil, nil, echoExec, telemetry.Noop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := pool.RunGraph(context.Background(), g, subtasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
}

func TestRunGraphQueuesOverflowWhenMoreTasksThanWorkers(t *testing.T) {
	subtasks := []decompose.Subtask{
		{ID: "a", Complexity: 1},
		{ID: "b", Complexity: 1},
		{ID: "c", Complexity: 1},
	}
	g := decompose.DependencyGraph{ParallelGroups: [][]string{{"a", "b", "c"}}}

	specs := []Spec{{WorkerID: "solo"}}
	pool, err := NewPool(specs, nil, nil, echoExec, telemetry.Noop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := pool.RunGraph(context.Background(), g, subtasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected all 3 overflowed tasks to eventually run, got %d", len(results))
	}
}

func TestRunGraphReportsUnassignableSubtasksWhenNoWorkerCapable(t *testing.T) {
	subtasks := []decompose.Subtask{{ID: "a", Type: decompose.TypeDeploy}}
	g := decompose.DependencyGraph{ParallelGroups: [][]string{{"a"}}}

	specs := []Spec{{WorkerID: "w1", Capabilities: Capabilities{decompose.TypeResearch}}}
	pool, err := NewPool(specs, nil, nil, echoExec, telemetry.Noop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = pool.RunGraph(context.Background(), g, subtasks)
	if err == nil {
		t.Fatal("expected an error when no worker can handle the subtask")
	}
}

func TestSynthesizeLatestWinsPicksMostRecentCompletion(t *testing.T) {
	now := time.Now()
	results := []SwarmTaskResult{
		{SubtaskID: "a", FilesChanged: []string{"shared.go"}, CompletedAt: now},
		{SubtaskID: "b", FilesChanged: []string{"shared.go"}, CompletedAt: now.Add(time.Second)},
	}
	synth := Synthesize(results, PolicyLatestWins, nil)
	if len(synth.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(synth.Conflicts))
	}
	if synth.Conflicts[0].Winner != "b" {
		t.Fatalf("expected b (later completion) to win, got %s", synth.Conflicts[0].Winner)
	}
}

func TestSynthesizeHighestComplexityWinsOverridesRecency(t *testing.T) {
	now := time.Now()
	results := []SwarmTaskResult{
		{SubtaskID: "a", FilesChanged: []string{"shared.go"}, CompletedAt: now.Add(time.Second)},
		{SubtaskID: "b", FilesChanged: []string{"shared.go"}, CompletedAt: now},
	}
	complexity := map[string]int{"a": 2, "b": 9}
	synth := Synthesize(results, PolicyHighestComplexityWins, func(id string) int { return complexity[id] })
	if synth.Conflicts[0].Winner != "b" {
		t.Fatalf("expected b (higher complexity) to win despite completing earlier, got %s", synth.Conflicts[0].Winner)
	}
}

func TestSynthesizeLLMMergeFlagsConflictWithoutPickingWinner(t *testing.T) {
	now := time.Now()
	results := []SwarmTaskResult{
		{SubtaskID: "a", FilesChanged: []string{"shared.go"}, CompletedAt: now},
		{SubtaskID: "b", FilesChanged: []string{"shared.go"}, CompletedAt: now.Add(time.Second)},
	}
	synth := Synthesize(results, PolicyLLMMerge, nil)
	if len(synth.Conflicts) != 0 {
		t.Fatalf("expected no auto-resolved conflicts under LLM merge policy, got %d", len(synth.Conflicts))
	}
	if len(synth.NeedsLLMMerge) != 1 {
		t.Fatalf("expected 1 flagged merge, got %d", len(synth.NeedsLLMMerge))
	}
	if synth.NeedsLLMMerge[0].Winner != "" {
		t.Fatalf("expected no winner under LLM merge policy, got %q", synth.NeedsLLMMerge[0].Winner)
	}
}

func TestErrorsInExecutorDoNotBlockOtherWorkers(t *testing.T) {
	subtasks := []decompose.Subtask{{ID: "a"}, {ID: "b"}}
	g := decompose.DependencyGraph{ParallelGroups: [][]string{{"a", "b"}}}

	exec := func(_ context.Context, w *Worker, s decompose.Subtask) SwarmTaskResult {
		if s.ID == "a" {
			return SwarmTaskResult{SubtaskID: s.ID, WorkerID: w.Spec.WorkerID, Err: context.DeadlineExceeded}
		}
		return echoExec(context.Background(), w, s)
	}
	specs := []Spec{{WorkerID: "w1"}, {WorkerID: "w2"}}
	pool, err := NewPool(specs, nil, nil, exec, telemetry.Noop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := pool.RunGraph(context.Background(), g, subtasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both results (one success, one error) to be collected, got %d", len(results))
	}
}
