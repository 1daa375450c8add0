package http

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitedTransport is a RoundTripper that waits on a token bucket before
// every request. It is placed under the oauth2 transport of the Data API
// client so that sequential catalog calls never exceed the configured rate.
type RateLimitedTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

// NewRateLimitedTransport wraps base (nil = http.DefaultTransport) with a
// limiter of rps requests per second and burst 1. rps <= 0 disables limiting.
func NewRateLimitedTransport(base http.RoundTripper, rps float64) *RateLimitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &RateLimitedTransport{Base: base}
	if rps > 0 {
		t.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	return t.Base.RoundTrip(req)
}
