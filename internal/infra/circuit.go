// Package infra holds small cross-cutting runtime primitives shared by
// components that need more than the standard library alone: currently
// just the circuit breaker used by the LLM Adapter (§4.A).
package infra

import (
	"errors"
	"sync"
	"time"
)

// Circuit breaker states (§3 "Circuit-Breaker State").
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// ErrCircuitOpen is returned by Allow when the breaker is tripped.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a breaker's thresholds.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive retryable failures
	// that trip closed -> open. Default 5.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before probing via
	// half-open. Default 30s.
	ResetTimeout time.Duration
}

// CircuitBreaker implements the closed -> open -> half-open -> {closed,
// open} state machine from spec §3/§4.A. One instance guards calls to a
// single upstream (here, one LLM provider).
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     string
	failures  int
	openedAt  time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call may proceed, transitioning open -> half-open
// once ResetTimeout has elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.cfg.ResetTimeout {
			cb.state = StateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess reports a successful call. From half-open this closes the
// breaker; from closed it resets the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = StateClosed
}

// RecordFailure reports a retryable failure. From half-open this reopens
// immediately; from closed it trips once FailureThreshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.failures = 0
	default:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = time.Now()
			cb.failures = 0
		}
	}
}

// State returns the current state name.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Registry holds one CircuitBreaker per named upstream (here, per LLM
// provider), matching the "per-provider singleton" shape from §3.
type Registry struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates an empty registry using cfg as the default for any
// breaker created via Get.
func NewRegistry(cfg CircuitBreakerConfig) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := NewCircuitBreaker(r.cfg)
	r.breakers[name] = cb
	return cb
}

// States returns a snapshot of every known breaker's state, keyed by name.
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.State()
	}
	return out
}
