package decompose

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// rawDecomposition is the loosely-typed shape a parser layer extracts
// before normalize.go converts it into typed Subtasks.
type rawDecomposition struct {
	subtasks []map[string]any
	layer    string
	detail   string
}

var fencedBlockRE = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// parseTolerant runs the spec §4.6 five-layer tolerant parser in order,
// returning the first layer that produces at least one subtask along with
// a reasoning trail of every layer attempted.
func parseTolerant(raw string) (rawDecomposition, []string) {
	var reasoning []string

	if rd, ok := tryExtractJSON(raw); ok {
		reasoning = append(reasoning, "layer1_json_extraction: succeeded")
		return withLayer(rd, "json_extraction"), reasoning
	}
	reasoning = append(reasoning, "layer1_json_extraction: no parseable JSON found")

	if rd, ok := tryRepairedJSON(raw); ok {
		reasoning = append(reasoning, "layer2_json_repair: succeeded")
		return withLayer(rd, "json_repair"), reasoning
	}
	reasoning = append(reasoning, "layer2_json_repair: repair did not yield valid JSON")

	if rd, ok := tryTruncationRecovery(raw); ok {
		reasoning = append(reasoning, "layer3_truncation_recovery: succeeded")
		return withLayer(rd, "truncation_recovery"), reasoning
	}
	reasoning = append(reasoning, "layer3_truncation_recovery: could not recover a complete subtask object")

	if rd, ok := tryNaturalLanguage(raw); ok {
		reasoning = append(reasoning, "layer4_nl_extraction: succeeded")
		return withLayer(rd, "nl_extraction"), reasoning
	}
	reasoning = append(reasoning, "layer4_nl_extraction: no list-like structure found")

	reasoning = append(reasoning, "layer5_mega_task: falling back to a single task")
	return rawDecomposition{
		subtasks: []map[string]any{{"description": strings.TrimSpace(raw)}},
		layer:    "mega_task",
	}, reasoning
}

func withLayer(rd rawDecomposition, layer string) rawDecomposition {
	rd.layer = layer
	return rd
}

// tryExtractJSON looks for a fenced ```json block first, then falls back to
// the first balanced {...} or [...] span in the text.
func tryExtractJSON(raw string) (rawDecomposition, bool) {
	candidates := []string{}
	if m := fencedBlockRE.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if span := extractBalancedSpan(raw); span != "" {
		candidates = append(candidates, span)
	}
	for _, c := range candidates {
		if list, ok := decodeSubtaskList(c); ok {
			return rawDecomposition{subtasks: list}, true
		}
	}
	return rawDecomposition{}, false
}

// extractBalancedSpan returns the first top-level balanced {..} or [..]
// substring, tracking string/quote state so braces inside string literals
// don't confuse the scan.
func extractBalancedSpan(s string) string {
	start := -1
	var stack []byte
	inString := false
	escaped := false
	for i, r := range s {
		c := byte(r)
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			if start == -1 {
				start = i
			}
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
				if len(stack) == 0 && start != -1 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

func decodeSubtaskList(jsonText string) ([]map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(jsonText), &v); err != nil {
		return nil, false
	}
	return extractListField(v)
}

// extractListField finds the subtasks array, accepting either a bare array
// at the top level or an object keyed by one of the known aliases.
func extractListField(v any) ([]map[string]any, bool) {
	switch t := v.(type) {
	case []any:
		return toMapList(t), len(t) > 0
	case map[string]any:
		for _, key := range []string{"subtasks", "tasks", "steps", "task_list", "decomposition"} {
			if arr, ok := t[key].([]any); ok {
				return toMapList(arr), len(arr) > 0
			}
		}
	}
	return nil, false
}

func toMapList(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// tryRepairedJSON fixes common JSON sins (trailing commas, single quotes,
// unquoted keys, comments) before re-parsing.
func tryRepairedJSON(raw string) (rawDecomposition, bool) {
	span := extractBalancedSpan(raw)
	if span == "" {
		span = raw
	}
	repaired := repairJSON(span)
	if list, ok := decodeSubtaskList(repaired); ok {
		return rawDecomposition{subtasks: list}, true
	}
	return rawDecomposition{}, false
}

var (
	lineCommentRE  = regexp.MustCompile(`//[^\n]*`)
	blockCommentRE = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingCommaRE = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRE  = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

func repairJSON(s string) string {
	s = blockCommentRE.ReplaceAllString(s, "")
	s = lineCommentRE.ReplaceAllString(s, "")
	s = trailingCommaRE.ReplaceAllString(s, "$1")
	s = unquotedKeyRE.ReplaceAllString(s, `$1"$2":`)
	s = strings.ReplaceAll(s, "'", `"`)
	return s
}

// tryTruncationRecovery walks the string counting balanced quotes/braces/
// brackets, trims to the last complete subtask object it can find, then
// re-closes the outer structure.
func tryTruncationRecovery(raw string) (rawDecomposition, bool) {
	span := extractBalancedSpan(raw)
	if span == "" {
		span = raw
	}
	repaired := repairJSON(span)

	inString := false
	escaped := false
	lastCompleteObjEnd := -1
	var lastCompleteObjStack []byte
	openerStack := []byte{}

	for i := 0; i < len(repaired); i++ {
		c := repaired[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			openerStack = append(openerStack, c)
		case '}', ']':
			if len(openerStack) > 0 {
				opener := openerStack[len(openerStack)-1]
				openerStack = openerStack[:len(openerStack)-1]
				// A '{' that closes directly inside an array is a
				// complete array element, i.e. a full subtask object,
				// regardless of how deeply the array itself is nested.
				if opener == '{' && c == '}' && len(openerStack) > 0 && openerStack[len(openerStack)-1] == '[' {
					lastCompleteObjEnd = i
					lastCompleteObjStack = append([]byte{}, openerStack...)
				}
			}
		}
	}

	if lastCompleteObjEnd == -1 {
		return rawDecomposition{}, false
	}

	trimmed := repaired[:lastCompleteObjEnd+1]
	// Re-close whatever containers were still open at that point.
	for i := len(lastCompleteObjStack) - 1; i >= 0; i-- {
		if lastCompleteObjStack[i] == '{' {
			trimmed += "}"
		} else {
			trimmed += "]"
		}
	}
	if !strings.HasPrefix(strings.TrimSpace(trimmed), "{") && !strings.HasPrefix(strings.TrimSpace(trimmed), "[") {
		return rawDecomposition{}, false
	}
	if list, ok := decodeSubtaskList(trimmed); ok && len(list) > 0 {
		return rawDecomposition{subtasks: list}, true
	}
	return rawDecomposition{}, false
}

var (
	checklistRE = regexp.MustCompile(`(?m)^\s*[-*]\s*\[([ xX])\]\s*(.+)$`)
	numberedRE  = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+(.+)$`)
	bulletRE    = regexp.MustCompile(`(?m)^\s*[-*]\s+(.+)$`)
	taskHeaderRE = regexp.MustCompile(`(?mi)^\s*Task\s+\d+\s*:\s*(.+)$`)
	subheadRE   = regexp.MustCompile(`(?m)^#{2,3}\s+(.+)$`)
)

var genericSubheads = map[string]bool{
	"overview": true, "summary": true, "notes": true, "background": true,
	"introduction": true, "conclusion": true,
}

// tryNaturalLanguage extracts markdown task lists, numbered/bulleted
// lists, "Task N:" headers, and non-generic subheadings as subtask
// descriptions.
func tryNaturalLanguage(raw string) (rawDecomposition, bool) {
	var descriptions []string

	if matches := checklistRE.FindAllStringSubmatch(raw, -1); len(matches) > 0 {
		for _, m := range matches {
			descriptions = append(descriptions, strings.TrimSpace(m[2]))
		}
	} else if matches := taskHeaderRE.FindAllStringSubmatch(raw, -1); len(matches) > 0 {
		for _, m := range matches {
			descriptions = append(descriptions, strings.TrimSpace(m[1]))
		}
	} else if matches := numberedRE.FindAllStringSubmatch(raw, -1); len(matches) > 0 {
		for _, m := range matches {
			descriptions = append(descriptions, strings.TrimSpace(m[1]))
		}
	} else if matches := bulletRE.FindAllStringSubmatch(raw, -1); len(matches) > 0 {
		for _, m := range matches {
			descriptions = append(descriptions, strings.TrimSpace(m[1]))
		}
	} else if matches := subheadRE.FindAllStringSubmatch(raw, -1); len(matches) > 0 {
		for _, m := range matches {
			title := strings.TrimSpace(m[1])
			if !genericSubheads[strings.ToLower(title)] {
				descriptions = append(descriptions, title)
			}
		}
	}

	if len(descriptions) < 1 {
		return rawDecomposition{}, false
	}
	list := make([]map[string]any, 0, len(descriptions))
	for i, d := range descriptions {
		list = append(list, map[string]any{
			"id":          "task-" + strconv.Itoa(i+1),
			"description": d,
		})
	}
	return rawDecomposition{subtasks: list}, true
}
