package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRateLimitedTransport_Unlimited(t *testing.T) {
	tr := NewRateLimitedTransport(nil, 0)
	if tr.Limiter != nil {
		t.Error("rps 0 should disable limiting")
	}
	if tr.Base != http.DefaultTransport {
		t.Error("nil base should default to http.DefaultTransport")
	}
}

func TestRateLimitedTransport_Paces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := &http.Client{Transport: NewRateLimitedTransport(nil, 20)}
	start := time.Now()
	for i := 0; i < 3; i++ {
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}
	// burst 1 at 20 rps: the 2nd and 3rd requests each wait ~50ms
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 requests took %v, want >= ~100ms", elapsed)
	}
}

func TestRateLimitedTransport_ContextCanceled(t *testing.T) {
	called := false
	tr := NewRateLimitedTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		called = true
		return nil, errors.New("unreachable")
	}), 0.001)
	tr.Limiter.Allow() // drain the single token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid", nil)
	if _, err := tr.RoundTrip(req); err == nil {
		t.Fatal("RoundTrip() should fail on a cancelled context")
	}
	if called {
		t.Error("base transport called despite cancelled context")
	}
}
