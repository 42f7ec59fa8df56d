// Package runner is the HTTP client for the external step runner that
// executes generated tests in an isolated browser session.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/specwright/internal/contract"
)

// Client communicates with the step runner daemon over HTTP. It implements
// contract.ExecutionEngine.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the runner's base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Per-run deadlines come from the request context.
		httpClient: &http.Client{Timeout: 0},
	}
}

// IsRunning returns true if the runner responds to GET /health with 200.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runRequest is the JSON body for POST /run.
type runRequest struct {
	JobID          string          `json:"job_id"`
	TestID         string          `json:"test_id"`
	Steps          []contract.Step `json:"steps"`
	TimeoutSeconds int             `json:"timeout_seconds"`
}

// Run executes the steps in the runner daemon and returns its report. The
// timeout bounds the whole run; hitting it surfaces as an ExecutionError.
func (c *Client) Run(ctx context.Context, jobID, testID string, steps []contract.Step, timeout time.Duration) (contract.RunReport, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(runRequest{
		JobID:          jobID,
		TestID:         testID,
		Steps:          steps,
		TimeoutSeconds: int(timeout / time.Second),
	})
	if err != nil {
		return contract.RunReport{}, &contract.ExecutionError{Op: "encode run request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return contract.RunReport{}, &contract.ExecutionError{Op: "create run request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contract.RunReport{}, &contract.ExecutionError{Op: "run request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return contract.RunReport{}, &contract.ExecutionError{Op: "run request", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var report contract.RunReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return contract.RunReport{}, &contract.ExecutionError{Op: "decode run report", Err: err}
	}
	return report, nil
}
