package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("redis", cfg)
	cb.now = clock.now
	return cb, clock
}

func fail(context.Context) error { return errBoom }
func succeed(context.Context) error { return nil }

func TestCircuitBreakerTransitions(t *testing.T) {
	ctx := context.Background()
	var changes []State
	cb, clock := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange:    func(_ string, to State) { changes = append(changes, to) },
	})

	assert.ErrorIs(t, cb.Do(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Do(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	called := false
	err := cb.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	clock.advance(time.Minute)
	assert.True(t, cb.Allow())
	require.NoError(t, cb.Do(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, changes)
	assert.Equal(t, Counts{Calls: 4, Failures: 2, Rejected: 1}, cb.Counts())
}

func TestCircuitBreakerFailedTrialReopens(t *testing.T) {
	ctx := context.Background()
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	_ = cb.Do(ctx, fail)
	clock.advance(time.Second)
	_ = cb.Do(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow(), "reset timeout restarts after a failed trial call")

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestCircuitBreakerSingleTrial(t *testing.T) {
	ctx := context.Background()
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	_ = cb.Do(ctx, fail)
	clock.advance(time.Second)

	inTrial := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Do(ctx, func(context.Context) error {
			close(inTrial)
			<-release
			return nil
		})
	}()
	<-inTrial
	assert.ErrorIs(t, cb.Do(ctx, succeed), ErrCircuitOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoredErrors(t *testing.T) {
	errMiss := errors.New("redis: nil")
	cb, _ := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		Ignore:           func(err error) bool { return errors.Is(err, errMiss) },
	})
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Do(ctx, func(context.Context) error { return errMiss }), errMiss)
	}
	assert.ErrorIs(t, cb.Do(ctx, func(context.Context) error { return context.Canceled }), context.Canceled)
	assert.Equal(t, StateClosed, cb.State())

	cancel()
	called := false
	assert.ErrorIs(t, cb.Do(ctx, func(context.Context) error { called = true; return nil }), context.Canceled)
	assert.False(t, called)
	assert.Zero(t, cb.Counts().Failures)
}

func TestRetry(t *testing.T) {
	fast := Backoff{Attempts: 3, Initial: time.Millisecond}
	attempts := 0
	err := Retry(context.Background(), "flaky", fast, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = Retry(context.Background(), "always", Backoff{Attempts: 2, Initial: time.Millisecond}, func(context.Context) error {
		attempts++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "gave up after 2 attempts")
	assert.Equal(t, 2, attempts)
}

func TestRetryStopsOnPermanentErrors(t *testing.T) {
	fast := Backoff{Attempts: 5, Initial: time.Millisecond}

	attempts := 0
	err := Retry(context.Background(), "bad-catalog", fast, func(context.Context) error {
		attempts++
		return apperrors.New(apperrors.ErrInvalidRecord, "record without id")
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidRecord)
	assert.Equal(t, 1, attempts)

	attempts = 0
	err = Retry(context.Background(), "marked", fast, func(context.Context) error {
		attempts++
		return Permanent(errBoom)
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, Permanent(nil))
}

func TestRetryRetriesAttemptTimeouts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "slow-neo4j", Backoff{Attempts: 3, Initial: time.Millisecond, PerAttempt: 5 * time.Millisecond},
		func(ctx context.Context) error {
			attempts++
			if attempts == 1 {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "cancelled", Backoff{Attempts: 3, Initial: time.Hour}, func(context.Context) error { return errBoom })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond, Factor: 2, Jitter: 0.1}
	first := b.Delay(1)
	assert.InDelta(t, float64(100*time.Millisecond), float64(first), float64(10*time.Millisecond))
	assert.LessOrEqual(t, b.Delay(10), 300*time.Millisecond)
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, 503, apperrors.HTTPStatus(err))

	err = WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error { return nil })
	assert.NoError(t, err)

	err = WithTimeout(context.Background(), 0, "none", func(context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)

	parent, cancel := context.WithCancel(context.Background())
	cancel()
	err = WithTimeout(parent, time.Second, "cancelled", func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrTimeout)
}
