package backoff

import "context"

// Retry runs fn up to attempts times, sleeping per the policy between
// failures. fn receives the 1-indexed attempt number. The first success
// wins; once attempts are exhausted the last error is returned. Context
// cancellation is checked before every attempt and during every sleep.
func Retry[T any](ctx context.Context, p Policy, attempts int, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := fn(attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt < attempts {
			if err := Sleep(ctx, p, attempt); err != nil {
				return zero, err
			}
		}
	}
	return zero, lastErr
}
