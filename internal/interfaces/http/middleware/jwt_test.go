package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/provenant/backend/internal/infrastructure/auth"
	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService(accessTTL time.Duration) *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                 "test-secret-at-least-32-characters!!",
		AccessTokenExpiration:  accessTTL,
		RefreshTokenExpiration: 24 * time.Hour,
		Issuer:                 "provenant-test",
	})
}

func newAuthEngine(jwtService *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(JWTAuthMiddlewareWithConfig(JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths:  []string{"/api/v1/auth/login"},
	}))
	engine.POST("/api/v1/auth/login", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	engine.GET("/api/v1/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": GetJWTUserID(c),
			"role":    GetJWTRole(c),
			"tenant":  GetJWTTenantCode(c),
		})
	})
	engine.GET("/api/v1/admin", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return engine
}

func TestJWTAuthMiddleware(t *testing.T) {
	jwtService := newTestJWTService(time.Hour)
	engine := newAuthEngine(jwtService)

	issue := func(t *testing.T, role string) string {
		t.Helper()
		pair, err := jwtService.GenerateTokenPair(auth.GenerateTokenInput{
			UserID:     uuid.New(),
			Email:      "user@example.com",
			Role:       role,
			TenantCode: "acme",
		})
		require.NoError(t, err)
		return pair.AccessToken
	}

	t.Run("skip path passes without token", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/protected", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/protected", nil)
		req.Header.Set(AuthHeaderKey, "Token abc")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token exposes claims", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/protected", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+issue(t, "admin"))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"role":"admin"`)
		assert.Contains(t, w.Body.String(), `"tenant":"acme"`)
	})

	t.Run("expired token reports TOKEN_EXPIRED", func(t *testing.T) {
		expired := newTestJWTService(-time.Minute)
		pair, err := expired.GenerateTokenPair(auth.GenerateTokenInput{
			UserID: uuid.New(),
			Email:  "user@example.com",
			Role:   "customer",
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/protected", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+pair.AccessToken)
		w := httptest.NewRecorder()
		newAuthEngine(expired).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
	})

	t.Run("admin route forbids customers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+issue(t, "customer"))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin route admits admins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+issue(t, "admin"))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
