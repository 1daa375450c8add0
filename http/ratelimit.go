package http

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig defines rate limiting behavior.
type RateLimiterConfig struct {
	// DefaultRPS is requests per second for hosts without a specific rate.
	// Zero disables limiting for those hosts.
	DefaultRPS float64
	// Burst is the token bucket size (default: 1).
	Burst int
	// HostRates maps a host name to its requests per second.
	HostRates map[string]float64
	// MaxBackoff caps the pause imposed after a rate limit response.
	MaxBackoff time.Duration
}

// DefaultRateLimiterConfig returns defaults for the thumbnail CDN and the
// OAuth endpoints.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		DefaultRPS: 10,
		Burst:      4,
		HostRates: map[string]float64{
			"i.ytimg.com":           10,
			"oauth2.googleapis.com": 2,
		},
		MaxBackoff: 60 * time.Second,
	}
}

// RateLimiter manages per-host request rate limiting using a token bucket,
// plus a pause window after the server answered 429/503.
type RateLimiter struct {
	mu       sync.Mutex
	config   RateLimiterConfig
	limiters map[string]*rate.Limiter
	pauses   map[string]time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.HostRates == nil {
		cfg.HostRates = make(map[string]float64)
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultRateLimiterConfig().MaxBackoff
	}
	return &RateLimiter{
		config:   cfg,
		limiters: make(map[string]*rate.Limiter),
		pauses:   make(map[string]time.Time),
	}
}

// Wait blocks until both the pause window and the token bucket for the URL's
// host allow a request, or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	if rl == nil {
		return nil
	}
	host := hostOf(urlStr)

	rl.mu.Lock()
	until := rl.pauses[host]
	limiter := rl.limiterLocked(host)
	rl.mu.Unlock()

	if d := time.Until(until); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// RecordRateLimit pauses requests to the URL's host for retryAfter,
// capped at MaxBackoff.
func (rl *RateLimiter) RecordRateLimit(urlStr string, retryAfter time.Duration) {
	if rl == nil || retryAfter <= 0 {
		return
	}
	if retryAfter > rl.config.MaxBackoff {
		retryAfter = rl.config.MaxBackoff
	}

	host := hostOf(urlStr)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	until := time.Now().Add(retryAfter)
	if until.After(rl.pauses[host]) {
		rl.pauses[host] = until
	}
}

// SetHostRate overrides the rate for a host.
func (rl *RateLimiter) SetHostRate(host string, rps float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.config.HostRates[host] = rps
	delete(rl.limiters, host)
}

// Stats returns the configured rate of every host seen so far.
func (rl *RateLimiter) Stats() map[string]float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := make(map[string]float64, len(rl.limiters))
	for host := range rl.limiters {
		stats[host] = rl.rpsLocked(host)
	}
	return stats
}

func (rl *RateLimiter) limiterLocked(host string) *rate.Limiter {
	rps := rl.rpsLocked(host)
	if rps <= 0 {
		return nil
	}
	if limiter, ok := rl.limiters[host]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Limit(rps), rl.config.Burst)
	rl.limiters[host] = limiter
	return limiter
}

func (rl *RateLimiter) rpsLocked(host string) float64 {
	if rps, ok := rl.config.HostRates[host]; ok {
		return rps
	}
	return rl.config.DefaultRPS
}

// hostOf extracts the host name (without port) from a URL string.
func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}
