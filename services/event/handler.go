package event

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"vayva-webhooks/pkg/middleware"
)

var Gateway = fx.Module("event.gateway",
	fx.Invoke(RegisterRoutes),
)

type publishRequest struct {
	Type    string          `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// RegisterRoutes exposes the internal publish entrypoint called by the
// platform's own services (orders, payments, catalog).
func RegisterRoutes(r *gin.Engine, svc *Service) {
	g := r.Group("/events", middleware.Tenant())
	g.POST("", svc.handlePublish)
}

func (s *Service) handlePublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
		return
	}

	record, err := s.Publish(c.Request.Context(), middleware.TenantID(c), req.Type, req.Payload)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, record.ToView())
}
