// Package browser is the HTTP client for the external browser-automation
// daemon that renders pages and captures their DOM, network trace, and
// screenshot.
package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Snapshot is one captured page: the serialized DOM, the HAR network trace,
// and a full-page screenshot.
type Snapshot struct {
	OuterHTML  string
	HAR        []byte
	Screenshot []byte
}

// Client communicates with the browser daemon over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the daemon's base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// IsRunning returns true if the daemon responds to GET /health with 200.
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

// snapshotRequest is the JSON body for POST /snapshot.
type snapshotRequest struct {
	URL string `json:"url"`
}

// snapshotResponse is the JSON returned by POST /snapshot. Binary fields
// are base64 encoded.
type snapshotResponse struct {
	OuterHTML  string          `json:"outer_html"`
	HAR        json.RawMessage `json:"har,omitempty"`
	Screenshot string          `json:"screenshot,omitempty"`
}

// Snapshot renders targetURL in the daemon and returns the captured page.
func (c *Client) Snapshot(ctx context.Context, targetURL string) (Snapshot, error) {
	body, err := json.Marshal(snapshotRequest{URL: targetURL})
	if err != nil {
		return Snapshot{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/snapshot", bytes.NewReader(body))
	if err != nil {
		return Snapshot{}, fmt.Errorf("creating snapshot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("snapshot %s: unexpected status %d", targetURL, resp.StatusCode)
	}

	var result snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot response: %w", err)
	}

	snap := Snapshot{OuterHTML: result.OuterHTML, HAR: result.HAR}
	if result.Screenshot != "" {
		shot, err := base64.StdEncoding.DecodeString(result.Screenshot)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decoding screenshot: %w", err)
		}
		snap.Screenshot = shot
	}
	return snap, nil
}
