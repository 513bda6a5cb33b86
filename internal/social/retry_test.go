package social

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestRetrySuccessFirstAttempt(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetrySuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return NewRetryableError(errors.New("temporary error"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("bad credentials")
	attempts := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		attempts++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt for non-retryable error, got %d", attempts)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		attempts++
		return NewRetryableError(errors.New("still down"))
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 4 {
		t.Errorf("expected 4 attempts (1 + 3 retries), got %d", attempts)
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastPolicy(), func() error {
		return NewRetryableError(errors.New("down"))
	})
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation error, got %v", err)
	}
}
