package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy describes exponential backoff between attempts. The delay before
// attempt n is min(MaxDelay, BaseDelay * Factor^(n-1)).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// DefaultPolicy mirrors the collection defaults: 3 attempts, 2s base,
// 30s cap, doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Factor:      2.0,
	}
}

// Delay returns the backoff delay before the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
	}
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && d > max {
		d = max
	}
	return time.Duration(d)
}

// transientError marks an error as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so that Do will retry it. Wrapping nil returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (anywhere in its chain) is marked transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Do runs op, retrying transient failures up to p.MaxAttempts times with
// exponential backoff. Non-transient errors propagate immediately. When
// attempts are exhausted, the last transient error is returned wrapped as a
// final failure; it remains transient-classified for callers inspecting the
// chain.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoWithAttempts(ctx, p, op)
	return err
}

// DoWithAttempts is Do, additionally reporting how many attempts ran.
func DoWithAttempts(ctx context.Context, p Policy, op func(ctx context.Context) error) (int, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(p.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt - 1, ctx.Err()
			case <-timer.C:
			}
		}

		err := op(ctx)
		if err == nil {
			return attempt, nil
		}
		if !IsTransient(err) {
			return attempt, err
		}
		lastErr = err
	}

	return p.MaxAttempts, fmt.Errorf("retries exhausted after %d attempts: %w", p.MaxAttempts, lastErr)
}
