package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kalambet/specwright/internal/contract"
)

func TestRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			JobID          string          `json:"job_id"`
			TestID         string          `json:"test_id"`
			Steps          []contract.Step `json:"steps"`
			TimeoutSeconds int             `json:"timeout_seconds"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.JobID != "job_1" || req.TestID != "t_1" || len(req.Steps) != 2 || req.TimeoutSeconds != 30 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(contract.RunReport{
			RunID:  "run_1",
			TestID: "t_1",
			Status: contract.RunStatusPassed,
			Steps: []contract.StepResult{
				{Step: 1, Status: "passed"},
				{Step: 2, Status: "passed"},
			},
		})
	}))
	defer srv.Close()

	steps := []contract.Step{contract.Goto("/"), contract.Click("#login")}
	report, err := New(srv.URL).Run(context.Background(), "job_1", "t_1", steps, 30*time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Status != contract.RunStatusPassed || len(report.Steps) != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestRun_ErrorsAreExecutionErrors(t *testing.T) {
	cases := []struct {
		name string
		url  func() string
	}{
		{"unreachable runner", func() string { return "http://127.0.0.1:1" }},
		{"runner error status", func() string {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "session crashed", http.StatusInternalServerError)
			}))
			t.Cleanup(srv.Close)
			return srv.URL
		}},
		{"garbage response", func() string {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			}))
			t.Cleanup(srv.Close)
			return srv.URL
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.url()).Run(context.Background(), "job_1", "t_1", nil, time.Second)
			var eerr *contract.ExecutionError
			if !errors.As(err, &eerr) {
				t.Errorf("err = %v, want *contract.ExecutionError", err)
			}
		})
	}
}

func TestRun_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Held open well past the client's run timeout, released on test
		// cleanup so Close does not wait on a parked handler.
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	_, err := New(srv.URL).Run(context.Background(), "job_1", "t_1", nil, 50*time.Millisecond)
	var eerr *contract.ExecutionError
	if !errors.As(err, &eerr) {
		t.Fatalf("err = %v, want *contract.ExecutionError", err)
	}
}
