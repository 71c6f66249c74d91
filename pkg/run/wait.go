package run

import (
	"context"
	"math"
	"time"
)

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
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

// pollDelay returns the wait before poll n (from 1). Without backoff every poll waits PollInterval.
func (c Config) pollDelay(n int) time.Duration {
	if c.BackoffFactor <= 1 || n <= 1 {
		return c.PollInterval
	}
	limit := c.MaxPollInterval
	if limit <= 0 {
		limit = DefaultMaxPollInterval
	}
	d := float64(c.PollInterval) * math.Pow(c.BackoffFactor, float64(n-1))
	if d > float64(limit) {
		return limit
	}
	return time.Duration(d)
}
