// Package generate provides the generation engines behind the generation
// contract: a deterministic rule-based engine and an LLM-backed engine that
// degrades to the rule-based one.
package generate

import (
	"context"
	"strings"

	"github.com/kalambet/specwright/internal/contract"
	"github.com/kalambet/specwright/internal/profile"
	"github.com/kalambet/specwright/internal/semantic"
)

// FormatPlaywrightJSON tags the step format emitted by both engines.
const FormatPlaywrightJSON = "playwright-json"

// Static is a deterministic rule-based generation engine: the same semantic
// model always yields the same test. When the model carries the full login
// role set it emits a happy-path login scenario; otherwise it falls back to
// a bare page visit.
type Static struct {
	profile profile.Profile
}

// NewStatic returns a Static engine parameterized by a test profile.
func NewStatic(p profile.Profile) *Static {
	if p.EntryPath == "" {
		p.EntryPath = "/"
	}
	return &Static{profile: p}
}

// Generate implements contract.GenerationEngine.
func (g *Static) Generate(ctx context.Context, jobID string, model contract.SemanticModel) (contract.GeneratedTest, error) {
	username := findRole(model.Elements, semantic.RoleUsernameInput)
	password := findRole(model.Elements, semantic.RolePasswordInput)
	login := findRole(model.Elements, semantic.RoleLoginButton)

	steps := []contract.Step{contract.Goto(g.profile.EntryPath)}
	confidence := 0.6

	haveLoginForm := username != nil && password != nil && login != nil
	if haveLoginForm {
		steps = append(steps,
			contract.Fill(username.Selector, g.profile.Username),
			contract.Fill(password.Selector, g.profile.Password),
			contract.Click(login.Selector),
			contract.ExpectText(g.profile.ExpectSelector, g.profile.ExpectText),
		)
		confidence = 0.95
	}

	return contract.GeneratedTest{
		TestID:     "t_1",
		JobID:      jobID,
		Steps:      steps,
		Confidence: confidence,
		Format:     FormatPlaywrightJSON,
		Gherkin:    gherkin(haveLoginForm, g.profile.ExpectText),
	}, nil
}

func findRole(elements []contract.SemanticElement, role string) *contract.SemanticElement {
	for i := range elements {
		if elements[i].Role == role {
			return &elements[i]
		}
	}
	return nil
}

func gherkin(haveLoginForm bool, expectText string) string {
	lines := []string{
		"Feature: Target app smoke test",
		"  Scenario: Happy path",
		"    Given I open the entry page",
	}
	if haveLoginForm {
		lines = append(lines,
			"    When I fill in username and password with demo credentials",
			"    And I click the login button",
		)
	}
	lines = append(lines, `    Then I should see "`+expectText+`" on the page`)
	return strings.Join(lines, "\n")
}
