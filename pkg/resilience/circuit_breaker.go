package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState represents the current state of the circuit breaker
type CircuitState int

const (
	// StateClosed - Circuit is closed, requests flow normally
	StateClosed CircuitState = iota
	// StateOpen - Circuit is open, requests fail immediately
	StateOpen
	// StateHalfOpen - Circuit is testing if the upstream recovered
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when too many requests in half-open state
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	// IsFailure decides whether an error counts against the upstream.
	// nil counts every non-nil error.
	IsFailure func(error) bool
	// Timeout is how long to wait before transitioning from open to half-open
	Timeout time.Duration
	// MaxFailures is the number of consecutive failures before opening circuit
	MaxFailures uint32
	// MaxRequestsHalfOpen is max concurrent requests allowed in half-open state
	MaxRequestsHalfOpen uint32
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	mu                  sync.RWMutex
	lastStateChangeTime time.Time
	now                 func() time.Time
	config              CircuitBreakerConfig
	state               CircuitState
	failures            uint32
	successes           uint32
	requestsHalfOpen    uint32
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		state:               StateClosed,
		lastStateChangeTime: time.Now(),
		now:                 time.Now,
		config:              config,
	}
}

// Call executes fn if the circuit allows it. A cancelled context is not
// counted as an upstream failure.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)

	cb.afterCall(ctx, err)

	return err
}

// beforeCall checks if circuit allows the request
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if cb.now().Sub(cb.lastStateChangeTime) > cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.requestsHalfOpen++
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if cb.requestsHalfOpen >= cb.config.MaxRequestsHalfOpen {
			return ErrTooManyRequests
		}
		cb.requestsHalfOpen++
		return nil

	default:
		return ErrCircuitOpen
	}
}

// afterCall records the result and updates circuit state
func (cb *CircuitBreaker) afterCall(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.countsAsFailure(ctx, err) {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) countsAsFailure(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return false
	}
	if cb.config.IsFailure != nil {
		return cb.config.IsFailure(err)
	}
	return true
}

// onFailure handles a failed request
func (cb *CircuitBreaker) onFailure() {
	cb.failures++

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.setState(StateOpen)
		}

	case StateHalfOpen:
		// Any failure in half-open goes back to open
		cb.setState(StateOpen)
	}
}

// onSuccess handles a successful request
func (cb *CircuitBreaker) onSuccess() {
	cb.successes++

	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateClosed)

	case StateClosed:
		cb.failures = 0
	}
}

// setState transitions to a new state
func (cb *CircuitBreaker) setState(newState CircuitState) {
	if cb.state == newState {
		return
	}

	cb.state = newState
	cb.lastStateChangeTime = cb.now()

	// Reset counters on state change
	switch newState {
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
		cb.requestsHalfOpen = 0

	case StateOpen:
		cb.requestsHalfOpen = 0

	case StateHalfOpen:
		cb.failures = 0
		cb.successes = 0
		cb.requestsHalfOpen = 0
	}
}

// State returns the current circuit state (thread-safe)
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Failures returns the current failure count (thread-safe)
func (cb *CircuitBreaker) Failures() uint32 {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.requestsHalfOpen = 0
	cb.lastStateChangeTime = cb.now()
}
