package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ErrAttemptsExhausted is returned by CompareAndSwap when every attempt hit
// a version conflict. Callers surface this as a retryable condition.
var ErrAttemptsExhausted = errors.New("optimistic update attempts exhausted")

// CompareAndSwap runs the read-then-conditionally-mutate loop shared by all
// optimistic updates. read produces a fresh snapshot; mutate attempts the
// conditional write against that snapshot and returns ErrVersionConflict
// when the record moved underneath it. Any other error aborts immediately.
func CompareAndSwap[T any](ctx context.Context, maxAttempts int, read func(ctx context.Context) (T, error), mutate func(ctx context.Context, snapshot T) error) error {
	if maxAttempts < 1 {
		return fmt.Errorf("maxAttempts must be at least 1, got %d", maxAttempts)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		snapshot, err := read(ctx)
		if err != nil {
			return err
		}

		err = mutate(ctx, snapshot)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}

	return ErrAttemptsExhausted
}
