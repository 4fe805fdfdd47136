package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter applies per-client token bucket rate limiting.
// Tokens refill at a fixed rate; each request consumes one. Burst
// bounds the bucket so idle clients cannot bank unlimited credit.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rate  float64
	burst int
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter with the given refill rate
// (requests per second) and burst capacity.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
	}
}

// Allow reports whether a request from key may proceed, and how many
// tokens remain afterwards.
func (r *RateLimiter) Allow(key string) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(r.burst), lastRefill: now}
		r.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastRefill).Seconds() * r.rate
	if b.tokens > float64(r.burst) {
		b.tokens = float64(r.burst)
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false, 0
	}
	b.tokens--
	return true, int(b.tokens)
}

// Middleware returns the gin handler enforcing the limit. Authenticated
// requests are keyed by user id, anonymous ones by client IP.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/metrics" {
			c.Next()
			return
		}

		key := "ip:" + c.ClientIP()
		if id, ok := GetUserID(c); ok {
			key = "user:" + strconv.FormatInt(id, 10)
		}

		allowed, remaining := r.Allow(key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(r.burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "too many requests, please retry later",
			})
			return
		}
		c.Next()
	}
}
