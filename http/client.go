// Package http provides the HTTP plumbing shared by the thumbnail cache and
// the authentication flow: a client with per-host rate limiting, retry on
// transient failures and typed errors, and a rate-limited RoundTripper for
// the Data API client.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"ytbulk/internal/retry"
)

// Client wraps an HTTP client with retry logic and rate limit handling.
type Client struct {
	base        *http.Client
	config      *Config
	rateLimiter *RateLimiter
	breaker     *Breaker
}

// Config holds HTTP client configuration including retry and rate limit settings.
type Config struct {
	// Timeout for individual HTTP requests
	Timeout time.Duration

	// Retry configuration
	Retry retry.Config

	// User agent for HTTP requests
	UserAgent string

	// MaxBodyBytes caps how much of a response body is read (0 = 32 MiB).
	MaxBodyBytes int64

	// Rate limiter configuration
	RateLimiter RateLimiterConfig

	// Breaker enables per-host fail-fast after repeated failures (nil = off).
	Breaker *BreakerConfig
}

const defaultMaxBodyBytes = 32 << 20

// DefaultConfig returns sensible defaults for HTTP client configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		Retry:        retry.DefaultConfig(),
		UserAgent:    "ytbulk/1.0",
		MaxBodyBytes: defaultMaxBodyBytes,
		RateLimiter:  DefaultRateLimiterConfig(),
		Breaker:      &BreakerConfig{Threshold: 5, Cooldown: 30 * time.Second},
	}
}

// New creates a new HTTP client with the given configuration.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	c := &Client{
		base: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config:      cfg,
		rateLimiter: NewRateLimiter(cfg.RateLimiter),
	}
	if cfg.Breaker != nil {
		c.breaker = NewBreaker(*cfg.Breaker)
	}
	return c
}

// Response represents an HTTP response with status code and body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get performs a GET request with retry logic.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, nil)
}

// Do performs an HTTP request with rate limiting and retries. 429/503 and
// 5xx responses are retried; other non-2xx responses fail immediately with
// *HTTPError. While the host's breaker is open Do returns ErrCircuitOpen
// without sending anything.
func (c *Client) Do(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) (*Response, error) {
	host := hostOf(urlStr)
	if err := c.breaker.Allow(host); err != nil {
		return nil, err
	}
	out, err := c.do(ctx, method, urlStr, body, headers)
	if ctx.Err() == nil {
		c.breaker.Record(host, err)
	}
	return out, err
}

// Breaker returns the client's breaker, or nil when disabled.
func (c *Client) Breaker() *Breaker { return c.breaker }

func (c *Client) do(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) (*Response, error) {
	var out *Response

	err := retry.Do(ctx, c.config.Retry, isRetryableHTTPError, func(ctx context.Context) error {
		if err := c.rateLimiter.Wait(ctx, urlStr); err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.base.Do(req)
		if err != nil {
			return fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			retryAfter := parseRetryAfter(resp.Header)
			c.rateLimiter.RecordRateLimit(urlStr, retryAfter)
			return &RateLimitError{StatusCode: resp.StatusCode, RetryAfter: retryAfter}
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &HTTPError{StatusCode: resp.StatusCode, URL: urlStr, Body: respBody}
		}

		out = &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       respBody,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// isRetryableHTTPError determines if an HTTP error is retryable.
func isRetryableHTTPError(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return IsServerError(httpErr.StatusCode)
	}
	return true
}

// parseRetryAfter extracts the Retry-After header value.
func parseRetryAfter(header http.Header) time.Duration {
	retryAfter := header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		return time.Until(t)
	}
	return 0
}

// HTTPClient exposes the underlying *http.Client, e.g. for oauth2's
// context-carried client.
func (c *Client) HTTPClient() *http.Client {
	return c.base
}

// Close closes idle connections.
func (c *Client) Close() error {
	c.base.CloseIdleConnections()
	return nil
}
