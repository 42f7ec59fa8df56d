package generate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/specwright/internal/contract"
	"github.com/kalambet/specwright/internal/profile"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLLM_ParsesStrictJSON(t *testing.T) {
	srv := chatServer(t, `{"testId":"t_9","steps":[{"action":"goto","url":"/"},{"action":"click","selector":"#go"}]}`)
	gen := NewLLM(srv.URL, "test-model", NewStatic(profile.Default()))

	test, err := gen.Generate(context.Background(), "job_1", loginModel())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if test.TestID != "t_9" || len(test.Steps) != 2 {
		t.Errorf("test = %+v", test)
	}
	if test.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", test.Confidence)
	}
}

func TestLLM_FallsBackOnGarbage(t *testing.T) {
	srv := chatServer(t, "Sure! Here are your steps: ...")
	gen := NewLLM(srv.URL, "test-model", NewStatic(profile.Default()))

	test, err := gen.Generate(context.Background(), "job_1", loginModel())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// Static engine output: full login scenario at 0.95.
	if len(test.Steps) != 5 || test.Confidence != 0.95 {
		t.Errorf("fallback test = %+v", test)
	}
}

func TestLLM_FallsBackWhenUnreachable(t *testing.T) {
	gen := NewLLM("http://127.0.0.1:1", "test-model", NewStatic(profile.Default()))

	test, err := gen.Generate(context.Background(), "job_1", contract.SemanticModel{JobID: "job_1"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(test.Steps) != 1 || test.Steps[0].Action != contract.ActionGoto {
		t.Errorf("fallback steps = %+v", test.Steps)
	}
}
