package generate

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/kalambet/specwright/internal/contract"
	"github.com/kalambet/specwright/internal/profile"
	"github.com/kalambet/specwright/internal/semantic"
)

func loginModel() contract.SemanticModel {
	return contract.SemanticModel{
		JobID: "job_1",
		Elements: []contract.SemanticElement{
			{ID: "el_1", Selector: "#login", Role: semantic.RoleLoginButton, Label: "Login", Confidence: 0.95},
			{ID: "el_2", Selector: "#username", Role: semantic.RoleUsernameInput, Label: "Username", Confidence: 0.95},
			{ID: "el_3", Selector: "#password", Role: semantic.RolePasswordInput, Label: "Password", Confidence: 0.95},
		},
		Flows:      []contract.Flow{{ID: "flow_login"}},
		Confidence: 0.95,
	}
}

func TestStatic_LoginScenario(t *testing.T) {
	gen := NewStatic(profile.Default())

	test, err := gen.Generate(context.Background(), "job_1", loginModel())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if test.TestID != "t_1" || test.JobID != "job_1" || test.Format != FormatPlaywrightJSON {
		t.Errorf("test metadata = %+v", test)
	}
	if test.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", test.Confidence)
	}

	actions := make([]contract.Action, len(test.Steps))
	for i, s := range test.Steps {
		actions[i] = s.Action
	}
	want := []contract.Action{
		contract.ActionGoto,
		contract.ActionFill,
		contract.ActionFill,
		contract.ActionClick,
		contract.ActionExpectText,
	}
	if !reflect.DeepEqual(actions, want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}

	if test.Steps[1].Selector != "#username" || test.Steps[2].Selector != "#password" {
		t.Errorf("credential fills target %q, %q", test.Steps[1].Selector, test.Steps[2].Selector)
	}
	if test.Steps[3].Selector != "#login" {
		t.Errorf("click targets %q, want #login", test.Steps[3].Selector)
	}
	if test.Steps[4].Selector != "h2" || test.Steps[4].Value != "Welcome" {
		t.Errorf("assertion = %+v", test.Steps[4])
	}

	if !strings.Contains(test.Gherkin, "login button") {
		t.Errorf("gherkin missing login narration:\n%s", test.Gherkin)
	}
}

func TestStatic_EmptyModelFallsBackToVisit(t *testing.T) {
	gen := NewStatic(profile.Default())

	test, err := gen.Generate(context.Background(), "job_2", contract.SemanticModel{JobID: "job_2"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(test.Steps) != 1 || test.Steps[0].Action != contract.ActionGoto {
		t.Fatalf("steps = %+v, want a single goto", test.Steps)
	}
	if test.Confidence != 0.6 {
		t.Errorf("confidence = %v, want 0.6", test.Confidence)
	}
}

func TestStatic_Deterministic(t *testing.T) {
	gen := NewStatic(profile.Default())
	ctx := context.Background()

	first, err := gen.Generate(ctx, "job_1", loginModel())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		next, err := gen.Generate(ctx, "job_1", loginModel())
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, next) {
			t.Fatalf("run %d diverged: %+v != %+v", i, next, first)
		}
	}
}

func TestStatic_ProfileParameters(t *testing.T) {
	gen := NewStatic(profile.Profile{
		Name: "shop", EntryPath: "/shop/login",
		Username: "buyer", Password: "secret",
		ExpectSelector: "h1", ExpectText: "Orders",
	})

	test, err := gen.Generate(context.Background(), "job_3", loginModel())
	if err != nil {
		t.Fatal(err)
	}
	if test.Steps[0].URL != "/shop/login" {
		t.Errorf("goto url = %q", test.Steps[0].URL)
	}
	if test.Steps[1].Value != "buyer" || test.Steps[2].Value != "secret" {
		t.Errorf("credentials = %q, %q", test.Steps[1].Value, test.Steps[2].Value)
	}
	if test.Steps[4].Selector != "h1" || test.Steps[4].Value != "Orders" {
		t.Errorf("assertion = %+v", test.Steps[4])
	}
}
