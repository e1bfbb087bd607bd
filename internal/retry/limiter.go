// Package retry provides outbound rate limiting and exponential-backoff retry.
package retry

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum delay between calls. Each Acquire blocks until
// at least 1/rate seconds have elapsed since the previous Acquire returned.
// One limiter is held per source client; jobs are serialized, so there is no
// process-global throttle.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewLimiter creates a limiter allowing rate calls per second.
func NewLimiter(rate float64) *Limiter {
	if rate <= 0 {
		rate = 1
	}
	return &Limiter{
		interval: time.Duration(float64(time.Second) / rate),
	}
}

// Acquire blocks until the limiter's window has elapsed or ctx is done.
// time.Since uses the monotonic clock, so wall-clock jumps do not shorten
// the window.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	var wait time.Duration
	if !l.last.IsZero() {
		if elapsed := time.Since(l.last); elapsed < l.interval {
			wait = l.interval - elapsed
		}
	}
	if wait == 0 {
		l.last = time.Now()
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	l.mu.Lock()
	l.last = time.Now()
	l.mu.Unlock()
	return nil
}
