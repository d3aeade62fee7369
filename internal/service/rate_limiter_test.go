package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_CheckSubmissionRate_WithinLimit(t *testing.T) {
	rl := NewRateLimiter(10)

	err := rl.CheckSubmissionRate(context.Background(), "admin-1")
	assert.NoError(t, err)
}

func TestRateLimiter_CheckSubmissionRate_ExceedsLimit(t *testing.T) {
	rl := NewRateLimiter(2)

	for i := 0; i < 2; i++ {
		assert.NoError(t, rl.CheckSubmissionRate(context.Background(), "admin-1"), "submission %d", i+1)
	}

	err := rl.CheckSubmissionRate(context.Background(), "admin-1")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
}

func TestRateLimiter_CheckSubmissionRate_PerActor(t *testing.T) {
	rl := NewRateLimiter(1)

	assert.NoError(t, rl.CheckSubmissionRate(context.Background(), "admin-1"))
	assert.ErrorIs(t, rl.CheckSubmissionRate(context.Background(), "admin-1"), ErrRateLimitExceeded)
	assert.NoError(t, rl.CheckSubmissionRate(context.Background(), "admin-2"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		assert.NoError(t, rl.CheckSubmissionRate(context.Background(), "admin-1"))
	}

	var nilLimiter *RateLimiter
	assert.NoError(t, nilLimiter.CheckSubmissionRate(context.Background(), "admin-1"))
}
