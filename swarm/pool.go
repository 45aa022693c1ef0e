package swarm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentcore/agentcore/decompose"
	"github.com/agentcore/agentcore/economics"
	"github.com/agentcore/agentcore/telemetry"
)

// Executor runs one subtask on one worker. Supplied by the kernel: a
// worker's own economics.Tracker and throttle are already bound to it by
// the time Executor is called.
type Executor func(ctx context.Context, w *Worker, s decompose.Subtask) SwarmTaskResult

// Pool dispatches a decomposition's parallel waves across a fixed set of
// workers, per spec §4.7.
type Pool struct {
	workers []*Worker
	exec    Executor
	tel     telemetry.Bundle
}

// NewPool constructs a Pool. Each spec gets its own economics.Tracker
// seeded from budget's dynamic reservation for that worker id.
func NewPool(specs []Spec, econCfg func(workerID string) economics.Config, budget *BudgetPool, exec Executor, tel telemetry.Bundle) (*Pool, error) {
	workers := make([]*Worker, 0, len(specs))
	for _, spec := range specs {
		allocated := spec.TokenBudget
		if budget != nil {
			reserved, err := budget.ReserveDynamic(spec.WorkerID, PriorityNormal)
			if err != nil {
				return nil, err
			}
			allocated = reserved
		}
		cfg := economics.Config{MaxTokens: allocated}
		if econCfg != nil {
			cfg = econCfg(spec.WorkerID)
			cfg.MaxTokens = allocated
		}
		tracker := economics.New(cfg, tel)
		workers = append(workers, newWorker(spec, tracker))
	}
	return &Pool{workers: workers, exec: exec, tel: tel}, nil
}

// priorityRank turns a Subtask.Priority string into a sortable weight;
// higher sorts first.
func priorityRank(p string) int {
	switch p {
	case "critical":
		return 2
	case "high":
		return 1
	default:
		return 0
	}
}

// dispatchOrder sorts ready subtasks by (complexity desc, explicit
// priority) per spec §4.7.
func dispatchOrder(subtasks []decompose.Subtask) []decompose.Subtask {
	ordered := append([]decompose.Subtask{}, subtasks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Complexity != ordered[j].Complexity {
			return ordered[i].Complexity > ordered[j].Complexity
		}
		return priorityRank(ordered[i].Priority) > priorityRank(ordered[j].Priority)
	})
	return ordered
}

// RunGraph executes every wave of the graph in order, running subtasks
// within a wave concurrently across idle workers. A wave is a barrier:
// the next wave starts only once every subtask in the current one has
// settled, since later waves may depend on earlier ones by construction.
// Overflow (more ready subtasks than idle workers) queues and is drained
// as workers free up within the wave.
func (p *Pool) RunGraph(ctx context.Context, g decompose.DependencyGraph, subtasks []decompose.Subtask) ([]SwarmTaskResult, error) {
	byID := make(map[string]decompose.Subtask, len(subtasks))
	for _, s := range subtasks {
		byID[s.ID] = s
	}

	var all []SwarmTaskResult
	for _, wave := range g.ParallelGroups {
		waveTasks := make([]decompose.Subtask, 0, len(wave))
		for _, id := range wave {
			waveTasks = append(waveTasks, byID[id])
		}
		results, err := p.runWave(ctx, dispatchOrder(waveTasks))
		if err != nil {
			return all, err
		}
		all = append(all, results...)
	}
	return all, nil
}

// runWave assigns ready subtasks to idle workers respecting capabilities.
// When ready subtasks outnumber idle capable workers, the excess queues in
// dispatchOrder and is pulled as workers free up, all within this wave.
func (p *Pool) runWave(ctx context.Context, tasks []decompose.Subtask) ([]SwarmTaskResult, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	pending := append([]decompose.Subtask{}, tasks...)

	// claimNext pops the first pending subtask worker w is capable of
	// running, preserving dispatchOrder among the rest.
	claimNext := func(w *Worker) (decompose.Subtask, bool) {
		mu.Lock()
		defer mu.Unlock()
		for i, t := range pending {
			if w.Spec.Capabilities.Can(t.Type) {
				pending = append(pending[:i], pending[i+1:]...)
				return t, true
			}
		}
		return decompose.Subtask{}, false
	}

	results := make(chan SwarmTaskResult, len(tasks))
	var wg sync.WaitGroup

	for _, w := range p.workers {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				t, ok := claimNext(w)
				if !ok {
					return
				}
				mu.Lock()
				w.idle = false
				mu.Unlock()

				if w.Spec.Throttle != nil {
					if err := w.Spec.Throttle.Wait(ctx, estimateSubtaskTokens(t)); err != nil {
						results <- SwarmTaskResult{SubtaskID: t.ID, WorkerID: w.Spec.WorkerID, Err: err}
						mu.Lock()
						w.idle = true
						mu.Unlock()
						continue
					}
				}
				r := p.exec(ctx, w, t)
				results <- r
				mu.Lock()
				w.idle = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	close(results)

	out := make([]SwarmTaskResult, 0, len(tasks))
	for r := range results {
		out = append(out, r)
	}

	mu.Lock()
	unassigned := len(pending)
	mu.Unlock()
	if unassigned > 0 {
		return out, fmt.Errorf("swarm: %d subtask(s) had no capable worker in this wave", unassigned)
	}
	return out, nil
}

func estimateSubtaskTokens(t decompose.Subtask) int {
	base := len(t.Description) / 4
	return base + t.Complexity*500
}
