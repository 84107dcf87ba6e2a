package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterEntry pairs a key's token bucket with the last time it was
// touched, so the janitor can evict keys that have gone quiet instead of
// resetting the whole map at an arbitrary size.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter implements per-key rate limiting using a token bucket per
// key (client IP for the global middleware, user id for Allow).
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
	maxAge   time.Duration
}

// NewRateLimiter creates a limiter allowing requestsPerSecond per key, with
// bursts up to burst. A background janitor runs every CleanupInterval and
// evicts any key idle past CleanupThreshold, bounding memory under a churn
// of distinct keys without resetting live buckets.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		cleanup:  CleanupInterval,
		maxAge:   CleanupThreshold,
	}
	go rl.cleanupRoutine()
	return rl
}

// NewDefaultRateLimiter builds a RateLimiter sized for bounding repeated
// attempts at a sensitive, per-user action: DefaultMaxAttempts over
// DefaultRateLimitWindow, with bursts up to DefaultMaxAttempts.
func NewDefaultRateLimiter() *RateLimiter {
	perSecond := float64(DefaultMaxAttempts) / DefaultRateLimitWindow.Seconds()
	return NewRateLimiter(perSecond, DefaultMaxAttempts)
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.RLock()
	entry, exists := rl.limiters[key]
	rl.mu.RUnlock()
	if exists {
		rl.mu.Lock()
		entry.lastUsed = now
		rl.mu.Unlock()
		return entry.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if entry, exists = rl.limiters[key]; exists {
		entry.lastUsed = now
		return entry.limiter
	}
	entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst), lastUsed: now}
	rl.limiters[key] = entry
	return entry.limiter
}

func (rl *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-rl.maxAge)
		rl.mu.Lock()
		for key, entry := range rl.limiters {
			if entry.lastUsed.Before(cutoff) {
				delete(rl.limiters, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware rate limits requests by client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.getLimiter(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "too many requests, try again later",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Allow reports whether a request identified by key (e.g. a user id, for the
// chat stream's per-user limit in internal/httpapi) may proceed right now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}
