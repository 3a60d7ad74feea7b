package usecase

import (
	"context"
	"time"
)

// DefaultMaxRetries is the number of extra attempts after the first failure.
const DefaultMaxRetries = 2

// Policy bounds a retried call.
type Policy struct {
	// MaxRetries caps extra attempts; total attempts are MaxRetries+1.
	MaxRetries int
	// Delay is the pause between attempts. Zero retries immediately.
	Delay time.Duration
}

// DefaultPolicy is two immediate retries.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries}
}

// Retry calls fn until it reports ok, the attempt budget is spent, or ctx is
// done. It returns the successful value and the number of attempts made.
func Retry[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, bool)) (T, bool, int) {
	var zero T
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	attempts := 0
	for attempts <= policy.MaxRetries {
		if ctx.Err() != nil {
			return zero, false, attempts
		}
		if attempts > 0 && policy.Delay > 0 {
			timer := time.NewTimer(policy.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, false, attempts
			case <-timer.C:
			}
		}
		attempts++
		if value, ok := fn(ctx); ok {
			return value, true, attempts
		}
	}
	return zero, false, attempts
}
