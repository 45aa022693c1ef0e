package decompose

// selectStrategy chooses an execution strategy for the decomposition.
// Adaptive is the default; a single dependency chain (every subtask has at
// most one dependent and at most one dependency, forming one straight
// line) degrades to sequential since there's no parallelism to exploit.
func selectStrategy(subtasks []Subtask, g DependencyGraph) Strategy {
	if len(subtasks) <= 1 {
		return StrategySequential
	}
	if isSingleChain(subtasks, g) {
		return StrategySequential
	}
	return StrategyAdaptive
}

func isSingleChain(subtasks []Subtask, g DependencyGraph) bool {
	edges := 0
	for _, s := range subtasks {
		if len(g.Dependencies[s.ID]) > 1 || len(g.Dependents[s.ID]) > 1 {
			return false
		}
		edges += len(g.Dependencies[s.ID])
	}
	return edges == len(subtasks)-1
}
