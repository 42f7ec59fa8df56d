// Package validate re-scores generated test steps independently of the
// generation engine. Structural violations are a hard ValidationError; only
// structurally valid step lists receive a confidence score.
package validate

import (
	"fmt"

	"github.com/kalambet/specwright/internal/contract"
)

const (
	baseConfidence = 0.9
	perStepBonus   = 0.01
	maxBonus       = 0.05
)

// Validator implements contract.StepValidator.
type Validator struct{}

// New returns a step validator.
func New() *Validator { return &Validator{} }

// Score structurally checks steps against the scope and returns a
// confidence in [0,1]. The score is monotonically non-decreasing in step
// count and capped: 0.9 + min(0.01*len, 0.05). Any violation returns a
// *contract.ValidationError and no score.
func (v *Validator) Score(scope contract.Scope, steps []contract.Step) (float64, error) {
	for i, step := range steps {
		if err := checkStep(i, step); err != nil {
			return 0, err
		}
	}

	bonus := perStepBonus * float64(len(steps))
	if bonus > maxBonus {
		bonus = maxBonus
	}
	return baseConfidence + bonus, nil
}

func checkStep(i int, step contract.Step) error {
	fail := func(format string, args ...any) error {
		return &contract.ValidationError{
			Reason: fmt.Sprintf("step %d: %s", i+1, fmt.Sprintf(format, args...)),
		}
	}

	switch step.Action {
	case contract.ActionGoto:
		if step.URL == "" {
			return fail("goto step must include 'url'")
		}
	case contract.ActionClick:
		if step.Selector == "" {
			return fail("click step must include 'selector'")
		}
	case contract.ActionFill, contract.ActionExpectText:
		if step.Selector == "" {
			return fail("%s step must include 'selector'", step.Action)
		}
		if step.Value == "" {
			return fail("%s step must include 'value'", step.Action)
		}
	default:
		return fail("unsupported action: %q", step.Action)
	}
	return nil
}
