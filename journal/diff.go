package journal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// unifiedDiff renders a line-based unified diff from before to after with
// three lines of context, using go-difflib (already present in the pack's
// dependency graph via testify) rather than hand-rolling an LCS diff.
func unifiedDiff(before, after string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}

// hunkHeader matches "@@ -l,s +l,s @@" (s omitted means 1).
type hunkHeader struct {
	oldStart, oldLines int
	newStart, newLines int
}

func parseHunkHeader(line string) (hunkHeader, error) {
	var h hunkHeader
	inner := strings.TrimPrefix(strings.TrimSuffix(strings.TrimSpace(line), " @@"), "@@ ")
	parts := strings.Fields(inner)
	if len(parts) < 2 {
		return h, fmt.Errorf("journal: malformed hunk header %q", line)
	}
	old, err := parseRange(parts[0], '-')
	if err != nil {
		return h, err
	}
	new, err := parseRange(parts[1], '+')
	if err != nil {
		return h, err
	}
	h.oldStart, h.oldLines = old[0], old[1]
	h.newStart, h.newLines = new[0], new[1]
	return h, nil
}

func parseRange(s string, sign byte) ([2]int, error) {
	if len(s) == 0 || s[0] != sign {
		return [2]int{}, fmt.Errorf("journal: malformed range %q", s)
	}
	s = s[1:]
	start, countStr, hasComma := strings.Cut(s, ",")
	n, err := strconv.Atoi(start)
	if err != nil {
		return [2]int{}, fmt.Errorf("journal: malformed range start %q: %w", s, err)
	}
	count := 1
	if hasComma {
		count, err = strconv.Atoi(countStr)
		if err != nil {
			return [2]int{}, fmt.Errorf("journal: malformed range count %q: %w", s, err)
		}
	}
	return [2]int{n, count}, nil
}

// reverseApply walks a unified diff produced by unifiedDiff and applies it
// backwards against after, reconstructing before. Per spec §4.4: for each
// hunk, walking context/remove/add markers, '+' lines are deleted at the
// current line index, '-' lines are re-inserted, and ' ' lines advance the
// cursor. Line numbers in hunk headers are 1-based; this parser does not
// special-case a trailing "\ No newline at end of file" marker (preserved
// limitation, see DESIGN.md).
func reverseApply(diff, after string) (string, error) {
	if strings.TrimSpace(diff) == "" {
		return after, nil
	}
	lines := strings.Split(diff, "\n")
	afterLines := difflib.SplitLines(after)

	var result []string
	cursor := 0 // index into afterLines, 0-based
	i := 0
	for i < len(lines) {
		line := lines[i]
		if strings.HasPrefix(line, "@@") {
			h, err := parseHunkHeader(line)
			if err != nil {
				return "", err
			}
			// Copy unchanged lines from the cursor up to the hunk's
			// new-file start (0-based).
			hunkStart := h.newStart - 1
			if hunkStart > cursor {
				result = append(result, afterLines[cursor:hunkStart]...)
				cursor = hunkStart
			}
			i++
			for i < len(lines) && !strings.HasPrefix(lines[i], "@@") && !strings.HasPrefix(lines[i], "---") {
				hl := lines[i]
				if hl == "" {
					i++
					continue
				}
				switch hl[0] {
				case ' ':
					if cursor < len(afterLines) {
						result = append(result, afterLines[cursor])
						cursor++
					}
				case '+':
					// Present in 'after' but not 'before': drop it and
					// advance past it in afterLines.
					cursor++
				case '-':
					// Present in 'before' but not 'after': re-insert it.
					result = append(result, hl[1:]+"\n")
				}
				i++
			}
			continue
		}
		i++
	}
	if cursor < len(afterLines) {
		result = append(result, afterLines[cursor:]...)
	}
	return strings.Join(normalizeTrailingNewlines(result), ""), nil
}

// normalizeTrailingNewlines ensures split lines retain their original
// newline characters; difflib.SplitLines already keeps them, and our
// manually re-inserted '-' lines above append one. The last line of a file
// without a trailing newline is left as-is.
func normalizeTrailingNewlines(lines []string) []string {
	return lines
}
