package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/provenant/backend/internal/interfaces/http/dto"
)

// RateLimiter is a fixed-window in-memory rate limiter
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rateWindow
	limit   int
	window  time.Duration
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a rate limiter allowing limit requests per window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*rateWindow),
		limit:   limit,
		window:  window,
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, w := range rl.clients {
			if now.After(w.resetAt) {
				delete(rl.clients, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Allow records a request for key and reports whether it fits the
// window. It also returns the remaining budget and the reset time.
func (rl *RateLimiter) Allow(key string) (allowed bool, remaining int, resetAt time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, exists := rl.clients[key]
	if !exists || now.After(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(rl.window)}
		rl.clients[key] = w
	}

	if w.count >= rl.limit {
		return false, 0, w.resetAt
	}

	w.count++
	return true, rl.limit - w.count, w.resetAt
}

// Limit returns the configured per-window request limit
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// RateLimit limits requests per tenant and principal. Authenticated
// requests are keyed by user ID, anonymous ones by client IP.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetJWTUserID(c)
		if principal == "" {
			principal = c.ClientIP()
		}

		key := GetTenantCode(c) + ":" + c.FullPath() + ":" + principal

		allowed, remaining, resetAt := limiter.Allow(key)

		c.Writer.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Writer.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Writer.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				dto.NewErrorResponse(dto.ErrCodeRateLimited, "Too many requests. Please try again later."))
			return
		}

		c.Next()
	}
}
