// Package retry runs calls with capped exponential backoff. Only errors
// wrapped in *Error are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy defines how retries should be handled.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// Error marks a failure as transient.
type Error struct {
	Err        error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err so Do retries it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Err: err}
}

// IsRetryable checks if an error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable *Error
	return errors.As(err, &retryable)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. A RetryAfter hint replaces the computed backoff.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == policy.MaxRetries {
			break
		}

		backoff := Backoff(policy, attempt)
		var retryErr *Error
		if errors.As(err, &retryErr) && retryErr.RetryAfter > 0 {
			backoff = retryErr.RetryAfter
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if policy.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded (%d): %w", policy.MaxRetries, lastErr)
}

// Backoff computes the wait before retry number attempt+1.
func Backoff(policy Policy, attempt int) time.Duration {
	factor := policy.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	backoff := float64(policy.InitialBackoff) * math.Pow(factor, float64(attempt))
	if policy.MaxBackoff > 0 && backoff > float64(policy.MaxBackoff) {
		backoff = float64(policy.MaxBackoff)
	}

	duration := time.Duration(backoff)
	if policy.Jitter {
		// ±10%
		duration += time.Duration(float64(duration) * 0.1 * (2*rand.Float64() - 1))
	}
	return duration
}
