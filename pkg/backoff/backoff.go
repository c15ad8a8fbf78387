// Package backoff computes jittered exponential retry delays.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

const maxShift = 30

// Exponential returns base * 2^attempt, capped at limit when limit > 0.
func Exponential(base, limit time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}
	delay := base << attempt
	if delay <= 0 || (limit > 0 && delay > limit) {
		return limit
	}
	return delay
}

// FullJitter returns a random duration in [0, delay).
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(delay)))
}

// Delay combines Exponential and FullJitter.
func Delay(base, limit time.Duration, attempt int) time.Duration {
	return FullJitter(Exponential(base, limit, attempt))
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
