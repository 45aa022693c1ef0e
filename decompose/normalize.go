package decompose

import (
	"regexp"
	"strconv"
	"strings"
)

// field-alias tables per spec §4.6's "dynamic duck-typed LLM fields"
// redesign note. An LLM will call the same concept by any of these names.
var (
	typeAliases = []string{"type", "task_type", "category"}
	complexityAliases = []string{"complexity", "difficulty"}
	depAliases = []string{"dependencies", "deps", "depends_on"}
	parallelAliases = []string{"parallelizable", "parallel"}
	filesAliases = []string{"relevantFiles", "relevant_files", "files"}
	roleAliases = []string{"suggestedRole", "role"}
	readsAliases = []string{"reads"}
	modifiesAliases = []string{"modifies"}
	priorityAliases = []string{"priority"}
	descriptionAliases = []string{"description", "desc", "title", "name"}
	idAliases = []string{"id", "taskId", "task_id"}
)

func firstString(m map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case string:
				if strings.TrimSpace(t) != "" {
					return t, true
				}
			case float64:
				return strconv.FormatFloat(t, 'f', -1, 64), true
			}
		}
	}
	return "", false
}

func firstStringList(m map[string]any, keys []string) ([]string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if arr, ok := v.([]any); ok {
				out := make([]string, 0, len(arr))
				for _, it := range arr {
					switch t := it.(type) {
					case string:
						if strings.TrimSpace(t) != "" {
							out = append(out, t)
						}
					case float64:
						out = append(out, strconv.FormatFloat(t, 'f', -1, 64))
					}
				}
				return out, true
			}
		}
	}
	return nil, false
}

func firstInt(m map[string]any, keys []string, def int) int {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case string:
				if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
					return n
				}
			}
		}
	}
	return def
}

func firstBool(m map[string]any, keys []string, def bool) bool {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	return def
}

var taskNRefRE = regexp.MustCompile(`(?i)^(?:task|subtask|st)-?(\d+)$`)

// normalize converts a raw layer's loosely-typed maps into typed Subtasks,
// applying alias resolution and spec §4.6's field defaults. Dependency
// values are left as raw reference strings here; resolveDependencies
// converts them to concrete subtask IDs once every subtask's ID is known.
func normalize(raw []map[string]any) []Subtask {
	subtasks := make([]Subtask, 0, len(raw))
	for i, m := range raw {
		id, ok := firstString(m, idAliases)
		if !ok {
			id = "task-" + strconv.Itoa(i+1)
		}
		desc, _ := firstString(m, descriptionAliases)

		typeStr, _ := firstString(m, typeAliases)
		st := SubtaskType(strings.ToLower(strings.TrimSpace(typeStr)))
		if !validTypes[st] {
			st = TypeImplement
		}

		complexity := firstInt(m, complexityAliases, 3)
		if complexity < 1 {
			complexity = 1
		}
		if complexity > 10 {
			complexity = 10
		}

		deps, _ := firstStringList(m, depAliases)
		parallelizable := firstBool(m, parallelAliases, true)
		files, hasFiles := firstStringList(m, filesAliases)
		reads, hasReads := firstStringList(m, readsAliases)
		modifies, hasModifies := firstStringList(m, modifiesAliases)
		role, _ := firstString(m, roleAliases)
		priority, _ := firstString(m, priorityAliases)

		if !hasReads && hasFiles {
			reads = files
		}
		if !hasModifies {
			switch st {
			case TypeImplement, TypeRefactor, TypeTest, TypeDocument:
				if hasFiles {
					modifies = files
				}
			}
		}

		subtasks = append(subtasks, Subtask{
			ID:             id,
			Description:    desc,
			Type:           st,
			Complexity:     complexity,
			Dependencies:   deps,
			Parallelizable: parallelizable,
			Status:         StatusPending,
			Reads:          reads,
			Modifies:       modifies,
			RelevantFiles:  files,
			SuggestedRole:  role,
			Priority:       priority,
		})
	}
	return subtasks
}

// resolveDependencies rewrites each subtask's raw dependency references
// into confirmed subtask IDs, trying in order: an exact ID match, a 1-based
// positional index, a "task-N"/"subtask-N"/"st-N" pattern, and finally a
// case-insensitive description substring match. Self-references and
// references that resolve to nothing are silently dropped, never errored,
// per spec §4.6 ("LLMs hallucinate reference formats constantly").
func resolveDependencies(subtasks []Subtask) {
	byID := make(map[string]int, len(subtasks))
	for i, s := range subtasks {
		byID[s.ID] = i
	}

	for i := range subtasks {
		resolved := make([]string, 0, len(subtasks[i].Dependencies))
		seen := map[string]bool{}
		for _, ref := range subtasks[i].Dependencies {
			target, ok := resolveOneDependency(ref, subtasks, byID)
			if !ok || target == subtasks[i].ID || seen[target] {
				continue
			}
			seen[target] = true
			resolved = append(resolved, target)
		}
		subtasks[i].Dependencies = resolved
	}
}

func resolveOneDependency(ref string, subtasks []Subtask, byID map[string]int) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if idx, ok := byID[ref]; ok {
		return subtasks[idx].ID, true
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(subtasks) {
			return subtasks[n-1].ID, true
		}
		if n >= 0 && n < len(subtasks) {
			return subtasks[n].ID, true
		}
	}
	if m := taskNRefRE.FindStringSubmatch(ref); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n >= 1 && n <= len(subtasks) {
			return subtasks[n-1].ID, true
		}
	}
	lowerRef := strings.ToLower(ref)
	for _, s := range subtasks {
		if strings.Contains(strings.ToLower(s.Description), lowerRef) {
			return s.ID, true
		}
	}
	return "", false
}
