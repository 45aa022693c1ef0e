package plan

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// EditKind names the recognized natural-language edit templates from
// spec §4.8.
type EditKind string

const (
	EditSkip      EditKind = "skip"
	EditUnskip    EditKind = "unskip"
	EditRemove    EditKind = "remove"
	EditAddBefore EditKind = "add_before"
	EditAddAfter  EditKind = "add_after"
	EditMove      EditKind = "move"
	EditUpdate    EditKind = "update"
)

// Edit is a parsed natural-language plan edit.
type Edit struct {
	Kind       EditKind
	StepNumber int
	TargetStep int // for move: the destination
	Text       string // for add/update: the new step description
}

var (
	reSkip      = regexp.MustCompile(`(?i)^\s*skip\s+step\s+(\d+)\s*$`)
	reUnskip    = regexp.MustCompile(`(?i)^\s*unskip\s+step\s+(\d+)\s*$`)
	reRemove    = regexp.MustCompile(`(?i)^\s*remove\s+step\s+(\d+)\s*$`)
	reAddBefore = regexp.MustCompile(`(?i)^\s*add\s+(.+?)\s+before\s+step\s+(\d+)\s*$`)
	reAddAfter  = regexp.MustCompile(`(?i)^\s*add\s+(.+?)\s+after\s+step\s+(\d+)\s*$`)
	reMove      = regexp.MustCompile(`(?i)^\s*move\s+step\s+(\d+)\s+to\s+(\d+)\s*$`)
	reUpdate    = regexp.MustCompile(`(?i)^\s*update\s+step\s+(\d+)\s+to\s+(.+?)\s*$`)
)

// ParseEditRegex tries each spec §4.8 regex template in turn. ok is false
// when none match, signaling the caller should fall back to an LLM parse.
func ParseEditRegex(text string) (Edit, bool) {
	text = strings.TrimSpace(text)

	if m := reSkip.FindStringSubmatch(text); m != nil {
		return Edit{Kind: EditSkip, StepNumber: atoi(m[1])}, true
	}
	if m := reUnskip.FindStringSubmatch(text); m != nil {
		return Edit{Kind: EditUnskip, StepNumber: atoi(m[1])}, true
	}
	if m := reRemove.FindStringSubmatch(text); m != nil {
		return Edit{Kind: EditRemove, StepNumber: atoi(m[1])}, true
	}
	if m := reAddBefore.FindStringSubmatch(text); m != nil {
		return Edit{Kind: EditAddBefore, StepNumber: atoi(m[2]), Text: m[1]}, true
	}
	if m := reAddAfter.FindStringSubmatch(text); m != nil {
		return Edit{Kind: EditAddAfter, StepNumber: atoi(m[2]), Text: m[1]}, true
	}
	if m := reMove.FindStringSubmatch(text); m != nil {
		return Edit{Kind: EditMove, StepNumber: atoi(m[1]), TargetStep: atoi(m[2])}, true
	}
	if m := reUpdate.FindStringSubmatch(text); m != nil {
		return Edit{Kind: EditUpdate, StepNumber: atoi(m[1]), Text: m[2]}, true
	}
	return Edit{}, false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// LLMEditParser delegates ambiguous edit text to an LLM, which must
// respond with a parsed Edit plus a confidence score.
type LLMEditParser func(ctx context.Context, text string) (Edit, float64, error)

// ConfidenceThreshold is the lowest llmParse confidence ParseEdit accepts.
// ParseEdit runs the regex templates first and calls llmParse only when
// none matches (a regex match carries no confidence score); an LLM parse
// below the threshold is rejected with an error.
const ConfidenceThreshold = 0.7

func ParseEdit(ctx context.Context, text string, llmParse LLMEditParser) (Edit, error) {
	if e, ok := ParseEditRegex(text); ok {
		return e, nil
	}
	if llmParse == nil {
		return Edit{}, fmt.Errorf("plan: could not parse edit %q and no LLM fallback configured", text)
	}
	e, confidence, err := llmParse(ctx, text)
	if err != nil {
		return Edit{}, err
	}
	if confidence < ConfidenceThreshold {
		return Edit{}, fmt.Errorf("plan: LLM parse confidence %.2f below threshold for edit %q", confidence, text)
	}
	return e, nil
}
