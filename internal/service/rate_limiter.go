package service

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter limits how often a single actor may submit manual jobs
type RateLimiter struct {
	mu sync.Mutex

	maxSubmissionsPerMinute int
	limiters                map[string]*rate.Limiter
}

// NewRateLimiter creates a new rate limiter. A non-positive limit disables it.
func NewRateLimiter(maxSubmissionsPerMinute int) *RateLimiter {
	return &RateLimiter{
		maxSubmissionsPerMinute: maxSubmissionsPerMinute,
		limiters:                make(map[string]*rate.Limiter),
	}
}

// CheckSubmissionRate checks if an actor can submit another job
func (rl *RateLimiter) CheckSubmissionRate(ctx context.Context, actor string) error {
	if rl == nil || rl.maxSubmissionsPerMinute <= 0 {
		return nil
	}

	rl.mu.Lock()
	limiter, ok := rl.limiters[actor]
	if !ok {
		perSecond := rate.Limit(float64(rl.maxSubmissionsPerMinute) / 60)
		limiter = rate.NewLimiter(perSecond, rl.maxSubmissionsPerMinute)
		rl.limiters[actor] = limiter
	}
	rl.mu.Unlock()

	if !limiter.Allow() {
		return ErrRateLimitExceeded
	}
	return nil
}
