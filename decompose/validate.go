package decompose

import (
	"fmt"
	"strings"
)

// validate checks spec §4.6's structural rules and returns the issue list
// plus whether the decomposition is usable (no error-severity issue).
func validate(subtasks []Subtask, g DependencyGraph) ([]ValidationIssue, bool) {
	var issues []ValidationIssue
	valid := true

	fail := func(format string, args ...any) {
		issues = append(issues, ValidationIssue{Severity: SeverityError, Message: fmt.Sprintf(format, args...)})
		valid = false
	}
	warn := func(format string, args ...any) {
		issues = append(issues, ValidationIssue{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)})
	}

	if len(subtasks) < 2 {
		fail("decomposition has fewer than 2 subtasks")
	}

	if len(g.Cycles) > 0 {
		for _, c := range g.Cycles {
			fail("dependency cycle detected: %s", strings.Join(c, " -> "))
		}
	}

	byID := make(map[string]bool, len(subtasks))
	for _, s := range subtasks {
		byID[s.ID] = true
	}

	for _, s := range subtasks {
		if strings.TrimSpace(s.Description) == "" || len(strings.TrimSpace(s.Description)) < 5 {
			fail("subtask %s: description too short", s.ID)
		}
		for _, dep := range s.Dependencies {
			if dep == s.ID {
				fail("subtask %s: depends on itself", s.ID)
				continue
			}
			if !byID[dep] {
				fail("subtask %s: dangling dependency %q", s.ID, dep)
			}
		}
		if s.Complexity > 7 {
			warn("subtask %s: complexity %d exceeds granularity guidance, consider splitting", s.ID, s.Complexity)
		}
	}

	return issues, valid
}
