package http

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without a request while a host's breaker is open.
var ErrCircuitOpen = errors.New("http: circuit open")

// CircuitState is the state of one host's breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive transient failures that opens
	// a host's circuit (default: 5).
	Threshold int
	// Cooldown is how long a circuit stays open before one probe request
	// is let through (default: 30s).
	Cooldown time.Duration
}

type circuit struct {
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// Breaker fails requests fast for hosts that keep failing, so a listing
// with hundreds of thumbnails does not hammer a CDN that is down. Only
// transient failures (network errors, 5xx, 429) count.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	circuits map[string]*circuit
	now      func() time.Time
}

// NewBreaker creates a breaker with defaults applied to cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, circuits: make(map[string]*circuit), now: time.Now}
}

// Allow reports whether a request to host may proceed. After the cooldown
// a single probe is admitted; its outcome closes or reopens the circuit.
func (b *Breaker) Allow(host string) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(host)
	switch c.state {
	case CircuitOpen:
		if b.now().Sub(c.openedAt) < b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		c.state = CircuitHalfOpen
		c.probing = true
		return nil
	case CircuitHalfOpen:
		if c.probing {
			return ErrCircuitOpen
		}
		c.probing = true
	}
	return nil
}

// Record updates host's circuit with the outcome of a request.
func (b *Breaker) Record(host string, err error) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(host)
	c.probing = false
	if err == nil || !isTransientFailure(err) {
		c.state = CircuitClosed
		c.failures = 0
		return
	}
	c.failures++
	if c.state == CircuitHalfOpen || c.failures >= b.cfg.Threshold {
		c.state = CircuitOpen
		c.openedAt = b.now()
	}
}

// State returns host's current state.
func (b *Breaker) State(host string) CircuitState {
	if b == nil {
		return CircuitClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.circuits[host]
	if !ok {
		return CircuitClosed
	}
	if c.state == CircuitOpen && b.now().Sub(c.openedAt) >= b.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return c.state
}

func (b *Breaker) get(host string) *circuit {
	c, ok := b.circuits[host]
	if !ok {
		c = &circuit{}
		b.circuits[host] = c
	}
	return c
}

// isTransientFailure treats rate limits, 5xx and transport errors as
// transient; other HTTP statuses say nothing about the host's health.
func isTransientFailure(err error) bool {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return IsServerError(httpErr.StatusCode)
	}
	return !errors.Is(err, ErrCircuitOpen)
}
