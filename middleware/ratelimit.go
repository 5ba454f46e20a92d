package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// RateLimiter is a sliding-window, in-memory limiter keyed by client.
type RateLimiter struct {
	requests map[string][]time.Time
	mutex    sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if a request from the given key should be allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	valid := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) < rl.limit {
		rl.requests[key] = append(valid, now)
		return true
	}
	rl.requests[key] = valid
	return false
}

// Sweep drops keys with no requests inside the window.
func (rl *RateLimiter) Sweep() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := rl.now().Add(-rl.window)
	for key, times := range rl.requests {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(rl.requests, key)
		}
	}
}

// RateLimitMiddleware limits requests per client IP. limit <= 0 disables it.
func RateLimitMiddleware(limit int, window time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return rateLimit(NewRateLimiter(limit, window))
}

func rateLimit(limiter *RateLimiter) gin.HandlerFunc {
	var sweeps int
	var sweepMu sync.Mutex

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !limiter.Allow(clientIP) {
			log.Warnf("Rate limit exceeded for IP: %s", clientIP)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too Many Requests",
				"details": gin.H{
					"retry_after_seconds": int(limiter.window.Seconds()),
				},
			})
			return
		}

		sweepMu.Lock()
		sweeps++
		sweep := sweeps%1024 == 0
		sweepMu.Unlock()
		if sweep {
			limiter.Sweep()
		}

		c.Next()
	}
}
