package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllow(t *testing.T) {
	t.Run("allows requests within limit", func(t *testing.T) {
		limiter := NewRateLimiter(5, time.Minute)

		for i := 0; i < 5; i++ {
			allowed, _, _ := limiter.Allow("client1")
			assert.True(t, allowed, "request %d should be allowed", i+1)
		}
	})

	t.Run("blocks requests exceeding limit", func(t *testing.T) {
		limiter := NewRateLimiter(3, time.Minute)

		for i := 0; i < 3; i++ {
			allowed, _, _ := limiter.Allow("client2")
			assert.True(t, allowed)
		}

		allowed, remaining, _ := limiter.Allow("client2")
		assert.False(t, allowed)
		assert.Equal(t, 0, remaining)
	})

	t.Run("separate budgets per key", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Minute)

		limiter.Allow("clientA")
		limiter.Allow("clientA")
		allowed, _, _ := limiter.Allow("clientA")
		assert.False(t, allowed)

		allowed, _, _ = limiter.Allow("clientB")
		assert.True(t, allowed)
	})

	t.Run("resets after window", func(t *testing.T) {
		limiter := NewRateLimiter(2, 50*time.Millisecond)

		limiter.Allow("client3")
		limiter.Allow("client3")
		allowed, _, _ := limiter.Allow("client3")
		assert.False(t, allowed)

		time.Sleep(60 * time.Millisecond)

		allowed, remaining, _ := limiter.Allow("client3")
		assert.True(t, allowed)
		assert.Equal(t, 1, remaining)
	})

	t.Run("concurrent access is safe", func(t *testing.T) {
		limiter := NewRateLimiter(100, time.Minute)
		var wg sync.WaitGroup
		var mu sync.Mutex
		allowedCount := 0

		for i := 0; i < 150; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				allowed, _, _ := limiter.Allow("shared")
				mu.Lock()
				if allowed {
					allowedCount++
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, 100, allowedCount)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newEngine := func(limiter *RateLimiter, pre ...gin.HandlerFunc) *gin.Engine {
		engine := gin.New()
		engine.Use(pre...)
		engine.Use(RateLimit(limiter))
		engine.GET("/api/v1/catalog/products", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		return engine
	}

	t.Run("sets rate limit headers", func(t *testing.T) {
		engine := newEngine(NewRateLimiter(10, time.Minute))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("returns 429 when exhausted", func(t *testing.T) {
		engine := newEngine(NewRateLimiter(2, time.Minute))

		var w *httptest.ResponseRecorder
		for i := 0; i < 3; i++ {
			w = httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil)
			engine.ServeHTTP(w, req)
		}

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	})

	t.Run("keys by tenant so stores do not share budgets", func(t *testing.T) {
		limiter := NewRateLimiter(1, time.Minute)
		setTenant := func(code string) gin.HandlerFunc {
			return func(c *gin.Context) {
				c.Set(TenantCodeKey, code)
				c.Next()
			}
		}

		acme := newEngine(limiter, setTenant("acme"))
		w := httptest.NewRecorder()
		acme.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		acme.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)

		globex := newEngine(limiter, setTenant("globex"))
		w = httptest.NewRecorder()
		globex.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("keys by user when authenticated", func(t *testing.T) {
		limiter := NewRateLimiter(1, time.Minute)
		asUser := func(id string) gin.HandlerFunc {
			return func(c *gin.Context) {
				c.Set(JWTUserIDKey, id)
				c.Next()
			}
		}

		alice := newEngine(limiter, asUser("user-a"))
		w := httptest.NewRecorder()
		alice.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		alice.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)

		bob := newEngine(limiter, asUser("user-b"))
		w = httptest.NewRecorder()
		bob.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
