package decompose

import "sort"

// buildGraph constructs the DependencyGraph from a subtask list's resolved
// Dependencies, detecting cycles via DFS (reporting each full cycle path
// found) and computing a topological order and parallel execution waves.
func buildGraph(subtasks []Subtask) DependencyGraph {
	g := DependencyGraph{
		Dependencies: make(map[string][]string, len(subtasks)),
		Dependents:   make(map[string][]string, len(subtasks)),
	}
	order := make([]string, 0, len(subtasks))
	for _, s := range subtasks {
		g.Dependencies[s.ID] = append([]string{}, s.Dependencies...)
		order = append(order, s.ID)
		if _, ok := g.Dependents[s.ID]; !ok {
			g.Dependents[s.ID] = nil
		}
	}
	for _, s := range subtasks {
		for _, dep := range s.Dependencies {
			g.Dependents[dep] = append(g.Dependents[dep], s.ID)
		}
	}

	g.Cycles = detectCycles(order, g.Dependencies)
	g.ExecutionOrder = topologicalOrder(order, g.Dependencies)
	g.ParallelGroups = parallelWaves(order, g.Dependencies)
	return g
}

// detectCycles runs a DFS from every node, tracking the current recursion
// stack as an ordered path so a detected back-edge can be reported as the
// full cycle, not just the offending pair.
func detectCycles(order []string, deps map[string][]string) [][]string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(order))
	var cycles [][]string
	var path []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		path = append(path, id)
		for _, dep := range deps[id] {
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				cycles = append(cycles, extractCycle(path, dep))
			}
		}
		path = path[:len(path)-1]
		color[id] = black
	}

	for _, id := range order {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}

func extractCycle(path []string, closesAt string) []string {
	for i, id := range path {
		if id == closesAt {
			cycle := append([]string{}, path[i:]...)
			return append(cycle, closesAt)
		}
	}
	return []string{closesAt}
}

// topologicalOrder returns a DFS post-order topological sort. Nodes that
// sit inside a cycle are still included (in the order their DFS visit
// finished) so downstream consumers always get a total order to iterate,
// even when Cycles is non-empty.
func topologicalOrder(order []string, deps map[string][]string) []string {
	visited := make(map[string]bool, len(order))
	inStack := make(map[string]bool, len(order))
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] || inStack[id] {
			return
		}
		inStack[id] = true
		for _, dep := range deps[id] {
			visit(dep)
		}
		inStack[id] = false
		visited[id] = true
		result = append(result, id)
	}
	for _, id := range order {
		visit(id)
	}
	return result
}

// parallelWaves groups subtasks into waves where every dependency of a
// node in wave N has already appeared in an earlier wave, via repeated
// ready-node extraction (Kahn's algorithm). Nodes that never become ready
// because they sit in a cycle are appended as trailing singleton waves, in
// id order, so every subtask still appears exactly once.
func parallelWaves(order []string, deps map[string][]string) [][]string {
	remaining := make(map[string]bool, len(order))
	for _, id := range order {
		remaining[id] = true
	}

	var waves [][]string
	for len(remaining) > 0 {
		var ready []string
		for id := range remaining {
			isReady := true
			for _, dep := range deps[id] {
				if remaining[dep] {
					isReady = false
					break
				}
			}
			if isReady {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			// Residue: every remaining node depends (directly or
			// transitively) on another remaining node, i.e. a cycle.
			// Fall back to single-node waves in stable id order so the
			// caller still gets a usable schedule.
			var residue []string
			for id := range remaining {
				residue = append(residue, id)
			}
			sort.Strings(residue)
			for _, id := range residue {
				waves = append(waves, []string{id})
				delete(remaining, id)
			}
			break
		}
		sort.Strings(ready)
		waves = append(waves, ready)
		for _, id := range ready {
			delete(remaining, id)
		}
	}
	return waves
}
