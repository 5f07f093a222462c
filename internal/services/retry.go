package services

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetriesExhausted tags failures that survived every retry attempt. Callers
// escalate these to the human-notification path instead of dropping them.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Retry wraps fallible collaborator calls with kind-aware exponential backoff.
// Non-retryable kinds fail immediately; retryable ones are re-attempted with
// delay = base * 2^(attempt-1).
type Retry struct {
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(context.Context, time.Duration) error
}

// RetryOption customizes a Retry.
type RetryOption func(*Retry)

// WithSleeper overrides how backoff sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) RetryOption {
	return func(r *Retry) {
		r.sleep = func(ctx context.Context, delay time.Duration) error {
			sleeper(delay)
			return nil
		}
	}
}

// NewRetry constructs a retry policy. Attempts below one are clamped to one.
func NewRetry(maxAttempts int, baseDelay time.Duration, opts ...RetryOption) *Retry {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	r := &Retry{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn until it succeeds, fails with a non-retryable kind, or exhausts
// the attempt budget. Exhaustion is tagged with ErrRetriesExhausted.
func (r *Retry) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if kind := ClassifyError(err); !Retryable(kind) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if attempt == r.maxAttempts {
			break
		}

		delay := r.baseDelay << (attempt - 1)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRetriesExhausted, lastErr)
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
