// Package retry applies a bounded retry policy to any operation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff returns the delay before the attempt that follows attempt n (1-based)
type Backoff func(attempt int) time.Duration

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how often an operation is attempted and how long to wait in between
type Policy struct {
	// MaxRetries is the number of extra attempts after the first one
	MaxRetries int
	Backoff    Backoff
	// Sleep defaults to a context-aware timer
	Sleep SleepFunc
}

// RetryAfterer is implemented by errors that carry a server-requested delay.
// A positive RetryAfter overrides the policy backoff.
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// Linear waits attempt*step between attempts
func Linear(step time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Exponential waits base, 2*base, 4*base, ...
func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base << (attempt - 1)
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a permanent error, or the policy is exhausted.
// The last error is returned on exhaustion.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := fn(ctx, attempt)
		if err == nil {
			return value, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		if err := policy.sleep(ctx, policy.delay(attempt, err)); err != nil {
			return zero, fmt.Errorf("retry aborted: %w (last error: %v)", err, lastErr)
		}
	}

	return zero, lastErr
}

func (p Policy) delay(attempt int, err error) time.Duration {
	var ra RetryAfterer
	if errors.As(err, &ra) {
		if d := ra.RetryAfter(); d > 0 {
			return d
		}
	}
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep waits for d unless ctx is cancelled first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
