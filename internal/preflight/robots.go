// Package preflight implements the advisory robots.txt consent gate that
// runs before a job is queued. It is deliberately not a full
// robots-exclusion parser: the check fails open, because it is an advisory
// signal, not a security boundary.
package preflight

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const fetchTimeout = 5 * time.Second

// Result is the outcome of the robots check. Fetched distinguishes
// "verified" from "could not verify" — both may be allowed, only a fetched
// wildcard disallow rejects.
type Result struct {
	Allowed bool
	Robots  string
	Fetched bool
}

// RobotsURL derives the robots-directive URL for a target: same scheme and
// host, path /robots.txt.
func RobotsURL(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	robots := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	return robots.String(), nil
}

// Check fetches and scans robots.txt for targetURL. Any fetch or parse
// problem yields allowed=true. If client is nil a bounded default client is
// used; the caller's client timeout is respected otherwise.
func Check(ctx context.Context, client *http.Client, targetURL string) Result {
	robotsURL, err := RobotsURL(targetURL)
	if err != nil {
		return Result{Allowed: true}
	}

	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return Result{Allowed: true}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Allowed: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Allowed: true}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Allowed: true}
	}

	text := string(body)
	return Result{Allowed: !disallowsRoot(text), Robots: text, Fetched: true}
}

// disallowsRoot scans robots.txt line by line. Inside a wildcard User-agent
// block, `Disallow: /` or `Disallow: /*` blocks the root. First match wins;
// no precedence across multiple wildcard blocks beyond "any line found".
func disallowsRoot(robots string) bool {
	inWildcard := false
	for _, line := range strings.Split(robots, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "user-agent:"):
			agent := strings.TrimSpace(strings.TrimPrefix(lower, "user-agent:"))
			inWildcard = agent == "*" || agent == `"*"`
		case inWildcard && strings.HasPrefix(lower, "disallow:"):
			path := strings.TrimSpace(strings.TrimPrefix(lower, "disallow:"))
			if path == "/" || path == "/*" {
				return true
			}
		}
	}
	return false
}
