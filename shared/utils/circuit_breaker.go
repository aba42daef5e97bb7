package utils

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CircuitState represents the state of the circuit breaker
type CircuitState string

const (
	// StateClosed allows calls to pass through
	StateClosed CircuitState = "closed"
	// StateOpen rejects calls until the reset timeout elapses
	StateOpen CircuitState = "open"
	// StateHalfOpen lets one trial call through to test if the dependency recovered
	StateHalfOpen CircuitState = "half-open"
)

// ErrCircuitOpen is returned instead of calling a dependency that keeps failing.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to an optional dependency such as the cache.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	log          logrus.FieldLogger
	now          func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker returns a closed breaker that opens after maxFailures
// consecutive failures.
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration, log logrus.FieldLogger) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		log:          log,
		now:          time.Now,
		state:        StateClosed,
	}
}

// Call runs fn unless the circuit is open.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		cb.probing = false
		if cb.state != StateClosed {
			cb.transition(StateClosed)
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.probing = false
		cb.openedAt = cb.now()
		if cb.state != StateOpen {
			cb.transition(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	cb.log.WithFields(logrus.Fields{
		"breaker": cb.name,
		"from":    cb.state,
		"to":      to,
	}).Warn("Circuit breaker state changed")
	cb.state = to
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.probing = false
}
