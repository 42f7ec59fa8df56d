package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func robotsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRobotsURL(t *testing.T) {
	got, err := RobotsURL("https://example.com/some/deep/page?q=1")
	if err != nil {
		t.Fatalf("RobotsURL failed: %v", err)
	}
	if got != "https://example.com/robots.txt" {
		t.Errorf("RobotsURL = %q, want %q", got, "https://example.com/robots.txt")
	}
}

func TestCheck_WildcardDisallowRoot(t *testing.T) {
	srv := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /\n")

	res := Check(context.Background(), srv.Client(), srv.URL+"/login")
	if res.Allowed {
		t.Error("Allowed = true, want false for wildcard Disallow: /")
	}
	if !res.Fetched || res.Robots == "" {
		t.Error("expected robots text to be captured")
	}
}

func TestCheck_WildcardDisallowGlob(t *testing.T) {
	srv := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /*\n")

	if res := Check(context.Background(), srv.Client(), srv.URL); res.Allowed {
		t.Error("Allowed = true, want false for Disallow: /*")
	}
}

func TestCheck_SpecificAgentDisallowIgnored(t *testing.T) {
	body := "User-agent: BadBot\nDisallow: /\n\nUser-agent: *\nDisallow: /private\n"
	srv := robotsServer(t, http.StatusOK, body)

	res := Check(context.Background(), srv.Client(), srv.URL)
	if !res.Allowed {
		t.Error("Allowed = false, want true: root disallow is outside the wildcard block")
	}
}

func TestCheck_CommentsAndBlanksIgnored(t *testing.T) {
	body := "# robots\n\nUser-agent: *\n# Disallow: /\nDisallow: /tmp\n"
	srv := robotsServer(t, http.StatusOK, body)

	if res := Check(context.Background(), srv.Client(), srv.URL); !res.Allowed {
		t.Error("Allowed = false, want true: only comments and non-root disallows present")
	}
}

func TestCheck_FailOpen(t *testing.T) {
	t.Run("unreachable host", func(t *testing.T) {
		res := Check(context.Background(), nil, "http://127.0.0.1:1/app")
		if !res.Allowed {
			t.Error("Allowed = false, want true when robots.txt is unreachable")
		}
		if res.Fetched {
			t.Error("Fetched = true, want false")
		}
	})

	t.Run("404 response", func(t *testing.T) {
		srv := robotsServer(t, http.StatusNotFound, "")
		res := Check(context.Background(), srv.Client(), srv.URL)
		if !res.Allowed || res.Fetched {
			t.Errorf("got %+v, want allowed and not fetched on 404", res)
		}
	})

	t.Run("unparsable target", func(t *testing.T) {
		if res := Check(context.Background(), nil, "::not a url::"); !res.Allowed {
			t.Error("Allowed = false, want true for unparsable target URL")
		}
	})
}
