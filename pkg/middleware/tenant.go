package middleware

import (
	"vayva-webhooks/pkg/errutil"

	"github.com/gin-gonic/gin"
)

const (
	// TenantHeader is injected by the API gateway after authenticating the caller.
	TenantHeader = "X-Tenant-ID"

	tenantKey = "tenant_id"
)

// Tenant requires the gateway-provided tenant header on every request.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(TenantHeader)
		if tenantID == "" {
			_ = c.Error(errutil.BaseError{
				Code:    errutil.StatusUnauthorized,
				Message: "missing tenant header",
			})
			c.Abort()
			return
		}

		c.Set(tenantKey, tenantID)
		c.Next()
	}
}

// TenantID returns the tenant bound to the request context.
func TenantID(c *gin.Context) string {
	return c.GetString(tenantKey)
}
