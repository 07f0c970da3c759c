// rate_limiter.go - Rate limiting to stay under provider request quotas

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens         int
	maxTokens      int
	refillRate     time.Duration
	lastRefillTime time.Time
	pollInterval   time.Duration
	mu             sync.Mutex
}

// NewRateLimiter creates a new rate limiter
// maxTokens: burst size
// refillRate: time between token refills
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &RateLimiter{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
		pollInterval:   100 * time.Millisecond,
	}
}

// NewPerMinute allows rpm requests per minute with a burst of rpm.
// rpm <= 0 disables limiting.
func NewPerMinute(rpm int) *RateLimiter {
	if rpm <= 0 {
		return nil
	}
	return NewRateLimiter(rpm, time.Minute/time.Duration(rpm))
}

// Wait blocks until a token is available or ctx is done. A nil limiter
// never blocks.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	rl.refill()

	for rl.tokens <= 0 {
		rl.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.pollInterval):
		}
		rl.mu.Lock()
		rl.refill()
	}

	// Consume one token
	rl.tokens--
	rl.mu.Unlock()
	return nil
}

// refill adds tokens for the time elapsed; callers hold mu.
func (rl *RateLimiter) refill() {
	now := time.Now()
	tokensToAdd := int(now.Sub(rl.lastRefillTime) / rl.refillRate)
	if tokensToAdd > 0 {
		rl.tokens += tokensToAdd
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefillTime = rl.lastRefillTime.Add(time.Duration(tokensToAdd) * rl.refillRate)
	}
}

// Available returns the number of tokens left right now.
func (rl *RateLimiter) Available() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}
