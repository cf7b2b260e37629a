package resilience

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
)

// WithTimeout runs fn under a context that expires after limit. When the
// deadline, not the parent, ends the call, the error is an ErrTimeout so
// the API answers 503. fn must honour its context. A zero limit runs fn
// unbounded.
func WithTimeout(ctx context.Context, limit time.Duration, name string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	err := fn(bounded)
	if err != nil && ctx.Err() == nil && errors.Is(bounded.Err(), context.DeadlineExceeded) {
		return apperrors.Newf(apperrors.ErrTimeout, "%s took longer than %v", name, limit)
	}
	return err
}
