package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
)

// Backoff is an exponential retry schedule. Zero fields fall back to
// DefaultBackoff.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
	// Jitter spreads each delay by up to this fraction either way.
	Jitter float64
	// PerAttempt bounds every call with WithTimeout. Zero leaves calls
	// bounded only by the caller's context.
	PerAttempt time.Duration
}

// DefaultBackoff suits remote catalog and corpus loads.
var DefaultBackoff = Backoff{
	Attempts: 3,
	Initial:  500 * time.Millisecond,
	Max:      5 * time.Second,
	Factor:   2,
	Jitter:   0.1,
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff
	if b.Attempts <= 0 {
		b.Attempts = d.Attempts
	}
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Factor < 1 {
		b.Factor = d.Factor
	}
	if b.Jitter <= 0 {
		b.Jitter = d.Jitter
	}
	return b
}

// Delay is the pause after the given failed attempt, counting from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.withDefaults()
	d := float64(b.Initial) * math.Pow(b.Factor, float64(attempt-1))
	d += d * b.Jitter * (2*rand.Float64() - 1)
	d = math.Min(d, float64(b.Max))
	if d <= 0 {
		return b.Initial
	}
	return time.Duration(d)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that Retry gives up on it at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// retryable is false for Permanent errors and for bad input, which fails the
// same way every time.
func retryable(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	return apperrors.ExitCode(err) != apperrors.ExitUsage
}

// Retry calls fn until it succeeds, the attempts run out, fn returns an
// error that is not worth retrying, or ctx ends.
func Retry(ctx context.Context, name string, b Backoff, fn func(ctx context.Context) error) error {
	b = b.withDefaults()
	log := slog.Default().With("component", "retry", "operation", name)

	var err error
	for attempt := 1; ; attempt++ {
		err = WithTimeout(ctx, b.PerAttempt, name, fn)
		if err == nil {
			if attempt > 1 {
				log.Info("recovered", "attempt", attempt)
			}
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		if !retryable(err) {
			return fmt.Errorf("%s: %w", name, err)
		}
		if attempt >= b.Attempts {
			return fmt.Errorf("%s: gave up after %d attempts: %w", name, attempt, err)
		}

		wait := b.Delay(attempt)
		log.Warn("attempt failed", "attempt", attempt, "of", b.Attempts, "error", err, "wait", wait)
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
	}
}
