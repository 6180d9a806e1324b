// Package retry runs network operations with in-line exponential backoff.
//
// It serves direct calls that want an immediate answer. Deferred replay of
// user actions goes through the offline queue instead.
package retry

import (
	"context"
	"errors"
	"fmt"
)

// Do runs op until it succeeds, the retry budget is spent, ShouldRetry
// rejects the error, or ctx ends. The last error from op is returned as-is on
// exhaustion so callers can inspect it with errors.Is/As.
func Do(ctx context.Context, opts Options, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a result.
func DoValue[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	opts = opts.withDefaults()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, errors.Join(err, lastErr)
			}
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == opts.MaxAttempts || !opts.ShouldRetry(err, attempt) {
			return zero, err
		}

		delay := CalculateDelay(attempt, opts)
		if opts.OnRetry != nil {
			opts.OnRetry(err, attempt, delay)
		}
		if serr := opts.Sleep(ctx, delay); serr != nil {
			return zero, errors.Join(serr, lastErr)
		}
	}

	// MaxAttempts >= 1 after defaults, so the loop always returns.
	return zero, fmt.Errorf("retry: exhausted %d attempts: %w", opts.MaxAttempts, lastErr)
}
