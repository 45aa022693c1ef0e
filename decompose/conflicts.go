package decompose

// detectConflicts finds write-write and read-write collisions between
// subtask pairs that can execute in the same wave (no direct dependency
// edge between them either way) per spec §4.6. Only a *direct* edge
// suppresses a pair: two subtasks ordered solely through a transitive chain
// of dependencies are still reported.
func detectConflicts(subtasks []Subtask, g DependencyGraph) []Conflict {
	directEdge := make(map[[2]string]bool)
	for id, deps := range g.Dependencies {
		for _, dep := range deps {
			directEdge[[2]string{id, dep}] = true
			directEdge[[2]string{dep, id}] = true
		}
	}

	var conflicts []Conflict
	for i := 0; i < len(subtasks); i++ {
		for j := i + 1; j < len(subtasks); j++ {
			a, b := subtasks[i], subtasks[j]
			if directEdge[[2]string{a.ID, b.ID}] {
				continue
			}
			conflicts = append(conflicts, pairConflicts(a, b)...)
		}
	}
	return conflicts
}

func pairConflicts(a, b Subtask) []Conflict {
	var out []Conflict
	bMod := toSet(b.Modifies)
	aMod := toSet(a.Modifies)
	bRead := toSet(b.Reads)
	aRead := toSet(a.Reads)

	for _, p := range a.Modifies {
		if bMod[p] {
			out = append(out, Conflict{Kind: "write-write", Severity: SeverityError, PathA: p, TaskA: a.ID, TaskB: b.ID})
		} else if bRead[p] {
			out = append(out, Conflict{Kind: "read-write", Severity: SeverityWarning, PathA: p, TaskA: a.ID, TaskB: b.ID})
		}
	}
	for _, p := range b.Modifies {
		if aMod[p] {
			continue // already reported from the a.Modifies pass
		}
		if aRead[p] {
			out = append(out, Conflict{Kind: "read-write", Severity: SeverityWarning, PathA: p, TaskA: b.ID, TaskB: a.ID})
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}
