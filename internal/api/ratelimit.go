package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter keeps a token bucket per client.
type RateLimiter struct {
	mu                sync.Mutex
	limiters          map[string]*rate.Limiter
	requestsPerSecond float64
	burstSize         int
}

func NewRateLimiter(requestsPerSecond float64, burstSize int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 20
	}
	if burstSize <= 0 {
		burstSize = 40
	}
	return &RateLimiter{
		limiters:          make(map[string]*rate.Limiter),
		requestsPerSecond: requestsPerSecond,
		burstSize:         burstSize,
	}
}

func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Cap the map so a scan of spoofed clients cannot grow it forever.
	if len(rl.limiters) >= 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}

	limiter, exists := rl.limiters[client]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(rl.requestsPerSecond), rl.burstSize)
		rl.limiters[client] = limiter
	}

	return limiter.Allow()
}
