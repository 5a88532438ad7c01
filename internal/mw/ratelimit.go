package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	limiterTableSize = 10000
	limiterIdleTTL   = 10 * time.Minute
)

// IPRateLimiter stores a rate limiter for each client IP. Entries idle for
// longer than the TTL, or beyond the table size, are evicted.
type IPRateLimiter struct {
	ips *expirable.LRU[string, *rate.Limiter]
	mu  sync.Mutex
	r   rate.Limit
	b   int
}

// NewIPRateLimiter creates a new IPRateLimiter.
func NewIPRateLimiter(r rate.Limit, b int, size int, ttl time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		ips: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
		r:   r,
		b:   b,
	}
}

// GetLimiter returns the rate limiter for an IP address, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	if limiter, ok := i.ips.Get(ip); ok {
		// Re-adding refreshes the idle TTL.
		i.ips.Add(ip, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(i.r, i.b)
	i.ips.Add(ip, limiter)
	return limiter
}

// Len reports how many clients are tracked.
func (i *IPRateLimiter) Len() int {
	return i.ips.Len()
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	return RateLimiterWith(NewIPRateLimiter(r, b, limiterTableSize, limiterIdleTTL))
}

// RateLimiterWith limits requests through an existing limiter table.
func RateLimiterWith(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
