// Package server implements a token bucket rate limiter for per-connection
// throttling that protects the hub from abuse.
package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket sized from RateLimitConfig: the bucket starts
// full at Burst tokens and refills back to Burst over one RefillInterval.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	perSecond  float64
	lastRefill time.Time
}

// newRateLimiter builds a limiter from the configured burst and refill
// interval. Non-positive values fall back to a one-token, one-second bucket.
func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	capacity := float64(burst)
	return &rateLimiter{
		tokens:     capacity,
		capacity:   capacity,
		perSecond:  capacity / interval.Seconds(),
		lastRefill: time.Now(),
	}
}

// allow refills the bucket for the elapsed time and consumes one token,
// reporting whether the event may proceed.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.lastRefill).Seconds(); elapsed > 0 {
		rl.tokens = min(rl.tokens+elapsed*rl.perSecond, rl.capacity)
	}
	rl.lastRefill = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
