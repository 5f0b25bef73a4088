package utils

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy is the single retry knob shared by every outbound fetch.
// Attempts counts the first call, so Attempts == 1 means fail fast.
type RetryPolicy struct {
	Attempts int
	// Backoff returns the pause after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
}

// FailFast performs exactly one attempt.
func FailFast() RetryPolicy {
	return RetryPolicy{Attempts: 1}
}

// Linear waits step×attempt between attempts.
func Linear(attempts int, step time.Duration) RetryPolicy {
	return RetryPolicy{
		Attempts: attempts,
		Backoff: func(attempt int) time.Duration {
			return step * time.Duration(attempt)
		},
	}
}

// Retry runs fn until it succeeds, the policy is exhausted, or ctx ends.
// The last error is returned wrapped with the attempt count.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if p.Backoff != nil {
			timer := time.NewTimer(p.Backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("after %d attempt(s): %w", attempts, lastErr)
}
