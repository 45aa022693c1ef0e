package plan

import (
	"fmt"
	"regexp"
	"strings"
)

// InteractivePlan is a draft-produced, editable, steppable plan per
// spec §4.8.
type InteractivePlan struct {
	Steps  []PlanStep
	Status InteractivePlanStatus
}

var numberedStepRE = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+(.+)$`)

// ParseDraft parses an LLM's free-form draft into steps by extracting its
// numbered lines ("1. ..." or "1) ...") in order. It does not parse
// structured (JSON) drafts; a draft with no numbered lines is an error.
func ParseDraft(draft string) (*InteractivePlan, error) {
	lines := numberedStepRE.FindAllStringSubmatch(draft, -1)
	if len(lines) == 0 {
		return nil, fmt.Errorf("plan: could not extract any numbered steps from draft")
	}
	steps := make([]PlanStep, 0, len(lines))
	for i, m := range lines {
		steps = append(steps, PlanStep{
			ID:          fmt.Sprintf("step-%d", i+1),
			Number:      i + 1,
			Description: strings.TrimSpace(m[1]),
			Status:      StepPending,
		})
	}
	return &InteractivePlan{Steps: steps, Status: PlanDraft}, nil
}

// Apply applies a parsed Edit to the plan and renumbers steps contiguously
// afterward, per spec §4.8.
func (p *InteractivePlan) Apply(e Edit) error {
	switch e.Kind {
	case EditSkip:
		return p.setStatusByNumber(e.StepNumber, StepSkipped)
	case EditUnskip:
		return p.setStatusByNumber(e.StepNumber, StepPending)
	case EditRemove:
		idx, err := p.indexByNumber(e.StepNumber)
		if err != nil {
			return err
		}
		p.Steps = append(p.Steps[:idx], p.Steps[idx+1:]...)
	case EditAddBefore, EditAddAfter:
		idx, err := p.indexByNumber(e.StepNumber)
		if err != nil {
			return err
		}
		insertAt := idx
		if e.Kind == EditAddAfter {
			insertAt = idx + 1
		}
		newStep := PlanStep{ID: fmt.Sprintf("step-new-%d", len(p.Steps)+1), Description: e.Text, Status: StepPending}
		p.Steps = append(p.Steps[:insertAt], append([]PlanStep{newStep}, p.Steps[insertAt:]...)...)
	case EditMove:
		from, err := p.indexByNumber(e.StepNumber)
		if err != nil {
			return err
		}
		to := e.TargetStep - 1
		if to < 0 || to >= len(p.Steps) {
			return fmt.Errorf("plan: move target step %d out of range", e.TargetStep)
		}
		step := p.Steps[from]
		p.Steps = append(p.Steps[:from], p.Steps[from+1:]...)
		p.Steps = append(p.Steps[:to], append([]PlanStep{step}, p.Steps[to:]...)...)
	case EditUpdate:
		idx, err := p.indexByNumber(e.StepNumber)
		if err != nil {
			return err
		}
		p.Steps[idx].Description = e.Text
	default:
		return fmt.Errorf("plan: unknown edit kind %q", e.Kind)
	}
	p.renumber()
	return nil
}

func (p *InteractivePlan) indexByNumber(n int) (int, error) {
	for i, s := range p.Steps {
		if s.Number == n {
			return i, nil
		}
	}
	return 0, fmt.Errorf("plan: no step numbered %d", n)
}

func (p *InteractivePlan) setStatusByNumber(n int, status StepStatus) error {
	idx, err := p.indexByNumber(n)
	if err != nil {
		return err
	}
	p.Steps[idx].Status = status
	return nil
}

// renumber assigns contiguous 1-based Number values in slice order, per
// spec §4.8 ("after every edit, steps are renumbered contiguously").
func (p *InteractivePlan) renumber() {
	for i := range p.Steps {
		p.Steps[i].Number = i + 1
	}
}
