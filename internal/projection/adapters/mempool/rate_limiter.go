package mempool

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket that starts full, so up to maxRequests calls
// proceed at once and the rest are spread over interval.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows maxRequests per interval.
func NewRateLimiter(maxRequests int, interval time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if interval <= 0 {
		interval = time.Minute
	}
	every := rate.Every(interval / time.Duration(maxRequests))
	return &RateLimiter{limiter: rate.NewLimiter(every, maxRequests)}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// TryAcquire takes a token without blocking.
func (rl *RateLimiter) TryAcquire() bool {
	return rl.limiter.Allow()
}
