// Package breaker isolates failing dependencies. Each named operation gets
// its own breaker: CLOSED passes calls through, OPEN rejects them without
// calling, and after the reset timeout a single HALF_OPEN probe decides
// whether to close again.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// State names as exposed to readers
const (
	StateClosed   = "CLOSED"
	StateOpen     = "OPEN"
	StateHalfOpen = "HALF_OPEN"
)

// Config tunes every breaker in a registry
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Snapshot is a point-in-time copy of one breaker's state
type Snapshot struct {
	Name          string     `json:"name"`
	State         string     `json:"state"`
	Failures      int        `json:"failures"`
	LastFailure   *time.Time `json:"last_failure,omitempty"`
	LastSuccess   *time.Time `json:"last_success,omitempty"`
	TotalRequests uint64     `json:"total_requests"`
	Successes     uint64     `json:"successes"`
	Rejected      uint64     `json:"rejected"`
}

// StateObserver is notified on every state transition
type StateObserver func(name, from, to string)

// Breaker wraps a gobreaker.CircuitBreaker with the counters readers need
type Breaker struct {
	name     string
	cfg      Config
	observer StateObserver

	mu            sync.Mutex
	cb            *gobreaker.CircuitBreaker
	failures      int
	totalRequests uint64
	successes     uint64
	rejected      uint64
	lastFailure   time.Time
	lastSuccess   time.Time
}

// New creates a closed breaker
func New(name string, cfg Config, observer StateObserver) *Breaker {
	b := &Breaker{name: name, cfg: cfg, observer: observer}
	b.cb = b.newCircuit()
	return b
}

func (b *Breaker) newCircuit() *gobreaker.CircuitBreaker {
	threshold := uint32(b.cfg.FailureThreshold)
	st := gobreaker.Settings{
		Name:        b.name,
		MaxRequests: 1, // single-flight half-open probe
		Interval:    0,
		Timeout:     b.cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// a caller giving up says nothing about the upstream
		IsSuccessful: func(err error) bool {
			return err == nil || isContextErr(err)
		},
	}
	if b.observer != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			b.observer(name, stateName(from), stateName(to))
		}
	}
	return gobreaker.NewCircuitBreaker(st)
}

// Name returns the operation name
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs fn unless the breaker is open. While open, or while a
// half-open probe is in flight, it returns an error wrapping
// models.ErrCircuitOpen without calling fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	b.totalRequests++
	cb := b.cb
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb != b.cb {
		// reset while the call was in flight; the new circuit starts clean
		return err
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.rejected++
		return fmt.Errorf("%s: %w", b.name, models.ErrCircuitOpen)
	case isContextErr(err):
		return err
	case err != nil:
		b.failures++
		b.lastFailure = time.Now()
		return err
	default:
		b.failures = 0
		b.successes++
		b.lastSuccess = time.Now()
		return nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// State returns CLOSED, OPEN or HALF_OPEN
func (b *Breaker) State() string {
	b.mu.Lock()
	cb := b.cb
	b.mu.Unlock()
	return stateName(cb.State())
}

// Reset forces the breaker closed and clears its failure count
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	from := stateName(b.cb.State())
	b.cb = b.newCircuit()
	b.failures = 0
	if b.observer != nil && from != StateClosed {
		b.observer(b.name, from, StateClosed)
	}
}

// Snapshot copies the breaker's current state
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		Name:          b.name,
		State:         stateName(b.cb.State()),
		Failures:      b.failures,
		TotalRequests: b.totalRequests,
		Successes:     b.successes,
		Rejected:      b.rejected,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		s.LastFailure = &t
	}
	if !b.lastSuccess.IsZero() {
		t := b.lastSuccess
		s.LastSuccess = &t
	}
	return s
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
