package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"vayva-webhooks/pkg/middleware"
)

var Gateway = fx.Module("endpoint.gateway",
	fx.Invoke(RegisterRoutes),
)

type createRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events"`
}

type subscriptionsRequest struct {
	Events []string `json:"events"`
}

type statusRequest struct {
	Status EndpointStatus `json:"status" binding:"required"`
}

type secretResponse struct {
	*View
	Secret string `json:"secret"`
}

func RegisterRoutes(r *gin.Engine, svc *Service) {
	g := r.Group("/endpoints", middleware.Tenant())
	g.POST("", svc.handleCreate)
	g.GET("", svc.handleList)
	g.PUT("/:id/subscriptions", svc.handleUpdateSubscriptions)
	g.POST("/:id/rotate", svc.handleRotateSecret)
	g.POST("/:id/status", svc.handleSetStatus)
}

func (s *Service) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
		return
	}

	record, secret, err := s.Create(c.Request.Context(), middleware.TenantID(c), req.URL, req.Events)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// secret is present only in this response
	c.JSON(http.StatusCreated, secretResponse{View: record.ToView(), Secret: secret})
}

func (s *Service) handleList(c *gin.Context) {
	records, err := s.List(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]*View, 0, len(records))
	for _, r := range records {
		out = append(out, r.ToView())
	}

	c.JSON(http.StatusOK, out)
}

func (s *Service) handleUpdateSubscriptions(c *gin.Context) {
	var req subscriptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
		return
	}

	record, err := s.UpdateSubscriptions(c.Request.Context(), middleware.TenantID(c), c.Param("id"), req.Events)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record.ToView())
}

func (s *Service) handleRotateSecret(c *gin.Context) {
	record, secret, err := s.RotateSecret(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, secretResponse{View: record.ToView(), Secret: secret})
}

func (s *Service) handleSetStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
		return
	}

	record, err := s.SetStatus(c.Request.Context(), middleware.TenantID(c), c.Param("id"), req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record.ToView())
}
