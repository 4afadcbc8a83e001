package middleware

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/fasalrakshak-api/internal/domain/repository"
)

// RateLimitConfig holds the settings for one limiter window.
type RateLimitConfig struct {
	// MaxRequests is the number of requests allowed per Window.
	MaxRequests int
	// Window is the counting window.
	Window time.Duration
	// KeyPrefix namespaces the counter keys in the store.
	KeyPrefix string
}

// SignupRateLimitConfig bounds signup and resend attempts per client origin.
func SignupRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 10,
		Window:      1 * time.Hour,
		KeyPrefix:   "rl:signup",
	}
}

// RateLimiter builds fixed-window limiting middleware on top of the injected
// key-value store, so multi-process deployments share counters through Redis
// while tests use an in-memory store.
type RateLimiter struct {
	store repository.CacheRepository
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(store repository.CacheRepository) *RateLimiter {
	return &RateLimiter{store: store}
}

// LimitByIP caps requests per client IP. On store errors the request is
// allowed through (fail-open) but logged.
func (rl *RateLimiter) LimitByIP(cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		key := fmt.Sprintf("%s:%s", cfg.KeyPrefix, clientIP)

		count, err := rl.store.Increment(key)
		if err != nil {
			log.Printf("[RateLimiter] Store error for key %s: %v. Allowing request (fail-open).", key, err)
			c.Next()
			return
		}

		// First request in the window sets the TTL.
		if count == 1 {
			if err := rl.store.Expire(key, cfg.Window); err != nil {
				log.Printf("[RateLimiter] Failed to set TTL for key %s: %v", key, err)
			}
		}

		remaining := cfg.MaxRequests - int(count)
		if remaining < 0 {
			remaining = 0
		}

		ttl, _ := rl.store.TTL(key)
		retryAfter := int(ttl.Seconds())
		if retryAfter < 0 {
			retryAfter = int(cfg.Window.Seconds())
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", retryAfter))

		if int(count) > cfg.MaxRequests {
			log.Printf("[RateLimiter] Rate limit exceeded for IP=%s prefix=%s. Count=%d, Limit=%d",
				clientIP, cfg.KeyPrefix, count, cfg.MaxRequests)

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests. Please try again later.",
				"error_type":  "rate_limited",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
