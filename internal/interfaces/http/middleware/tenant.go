package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"github.com/provenant/backend/internal/infrastructure/persistence/tenant"
)

// TenantCodeKey is the gin key the resolved tenant code is stored under
const TenantCodeKey = "tenant_code"

// TenantResolver resolves the tenant for the request and stores it in
// the request context. Resolution order: path parameter, query
// parameter, then the admin's token claim. Customer tokens never
// select a tenant; customers act on whichever store the URL names.
// Requests without a tenant fall through to the default database.
// Runs after JWT authentication.
func TenantResolver() gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("tenant")
		if code == "" {
			code = c.Query("tenant_code")
		}
		if code == "" && GetJWTRole(c) == "admin" {
			code = GetJWTTenantCode(c)
		}

		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			c.Next()
			return
		}

		c.Set(TenantCodeKey, code)

		ctx := tenant.WithCode(c.Request.Context(), code)
		ctx, _ = logger.WithTenantCode(ctx, logger.FromContext(ctx), code)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetTenantCode returns the tenant code resolved for this request, or
// an empty string
func GetTenantCode(c *gin.Context) string {
	return c.GetString(TenantCodeKey)
}
