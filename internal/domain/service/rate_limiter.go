package service

import (
	"context"
	"time"
)

// RateDecision is the outcome of a RateLimiter check.
type RateDecision struct {
	Allowed bool
	Count   int       // requests seen in the current window, including this one
	ResetAt time.Time // when the current window ends
}

// RetryAfter returns how long the caller should wait at now before the window resets.
func (d *RateDecision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}

	return d.ResetAt.Sub(now)
}

// RateLimiter counts requests per key inside fixed windows that restart once they elapse.
type RateLimiter interface {
	// Check records one request for key and reports whether it is within max for window.
	Check(ctx context.Context, key string, window time.Duration, max int) (*RateDecision, error)
}
