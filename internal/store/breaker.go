// Package store holds helpers shared by the table backends.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"xau-signal/internal/model"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // calls pass through
	StateOpen     State = 1 // calls rejected immediately
	StateHalfOpen State = 2 // one probe call allowed
)

func (s State) String() string {
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

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker opens after maxFailures consecutive failures and rejects
// calls for resetTimeout. After the timeout one probe call is let through:
// success closes the breaker, failure reopens it.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time

	// OnStateChange is called on transitions, with the breaker lock held.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Execute runs fn through the circuit breaker.
// Context cancellation is not counted as a backend failure.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.transition(StateHalfOpen)
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, model.ErrSheetNotFound) {
		cb.failures++
		cb.lastFailure = time.Now()

		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return err
	}

	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	return err
}

// CurrentState returns the current circuit breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}

// GuardedTable routes every call to an inner table through a breaker, so an
// unreachable store fails fast instead of stalling each poll cycle.
type GuardedTable struct {
	inner model.Table
	cb    *CircuitBreaker
}

// Guard wraps table with cb.
func Guard(table model.Table, cb *CircuitBreaker) *GuardedTable {
	return &GuardedTable{inner: table, cb: cb}
}

// Breaker returns the wrapped circuit breaker.
func (g *GuardedTable) Breaker() *CircuitBreaker { return g.cb }

func (g *GuardedTable) ReadAll(ctx context.Context) ([][]string, error) {
	var records [][]string
	err := g.cb.Execute(func() error {
		var err error
		records, err = g.inner.ReadAll(ctx)
		return err
	})
	return records, err
}

func (g *GuardedTable) Overwrite(ctx context.Context, records [][]string) error {
	return g.cb.Execute(func() error {
		return g.inner.Overwrite(ctx, records)
	})
}
