// Package resilience keeps flaky dependencies from failing mapping work: a
// circuit breaker for the Redis cache, a backoff schedule for remote
// catalog loads and Kafka publishes, and a deadline helper for both.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling fn while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// CircuitBreakerConfig zero values take the defaults noted per field.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit. Default 5.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before one trial is
	// let through. Default 30s.
	ResetTimeout time.Duration
	// Ignore marks errors that say nothing about the dependency's health,
	// such as a cache miss. They are returned but not counted.
	Ignore func(error) bool
	// OnStateChange runs under the breaker's lock and must not call it.
	OnStateChange func(name string, to State)
}

// Counts are totals since the breaker was created.
type Counts struct {
	Calls    int64 `json:"calls"`
	Failures int64 `json:"failures"`
	Rejected int64 `json:"rejected"`
}

// CircuitBreaker opens after consecutive failures and, once the reset
// timeout has passed, admits a single trial whose outcome closes or
// reopens it.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	trialInFlight bool
	counts        Counts
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
}

// Do runs fn unless the circuit is open. A cancelled ctx, or an error the
// config ignores, leaves the failure count alone.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trial, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(trial, cb.isFailure(err))
	return err
}

// isFailure reports whether err is a failure of the dependency itself.
func (cb *CircuitBreaker) isFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return cb.cfg.Ignore == nil || !cb.cfg.Ignore(err)
}

func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.counts.Calls++
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			cb.counts.Rejected++
			return false, fmt.Errorf("%w: %s, next trial in %v", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.setState(StateHalfOpen)
		cb.trialInFlight = true
		return true, nil
	case StateHalfOpen:
		if cb.trialInFlight {
			cb.counts.Rejected++
			return false, fmt.Errorf("%w: %s, trial in flight", ErrCircuitOpen, cb.name)
		}
		cb.trialInFlight = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(trial, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if trial {
		cb.trialInFlight = false
	}
	if !failed {
		cb.failures = 0
		if cb.state == StateHalfOpen && trial {
			cb.setState(StateClosed)
			cb.logger.Info("circuit closed, dependency recovered")
		}
		return
	}
	cb.counts.Failures++
	cb.failures++
	switch {
	case cb.state == StateHalfOpen && trial:
		cb.trip()
		cb.logger.Warn("trial failed, circuit reopened")
	case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
		cb.trip()
		cb.logger.Warn("circuit opened", "consecutive_failures", cb.failures)
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Allow reports whether Do would currently call fn. It does not claim the
// half-open trial.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		return cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
	case StateHalfOpen:
		return !cb.trialInFlight
	}
	return true
}

// Reset closes the circuit and forgets past failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.trialInFlight = false
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) setState(to State) {
	if cb.state == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
