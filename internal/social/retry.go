package social

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines how transient upstream failures are retried.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultRetryPolicy returns a sensible default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     15 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// RetryableError wraps an error to indicate it should be retried.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// NewRetryableError creates a new retryable error.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// Retry executes a function with exponential backoff retry logic.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
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

		// Don't sleep after the last attempt
		if attempt == policy.MaxRetries {
			break
		}

		backoff := calculateBackoff(policy, attempt)

		var retryErr *RetryableError
		if errors.As(err, &retryErr) && retryErr.RetryAfter > 0 {
			backoff = retryErr.RetryAfter
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("max retries exceeded (%d): %w", policy.MaxRetries, lastErr)
}

func calculateBackoff(policy RetryPolicy, attempt int) time.Duration {
	backoff := float64(policy.InitialBackoff) * math.Pow(policy.BackoffFactor, float64(attempt))

	if backoff > float64(policy.MaxBackoff) {
		backoff = float64(policy.MaxBackoff)
	}

	duration := time.Duration(backoff)

	// Jitter prevents synchronized retries against the same upstream
	if policy.Jitter {
		jitter := time.Duration(float64(duration) * 0.1 * (2*rand.Float64() - 1))
		duration += jitter
	}

	return duration
}
