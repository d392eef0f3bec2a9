package apikey

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"vayva-webhooks/pkg/middleware"
)

var Gateway = fx.Module("apikey.gateway",
	fx.Invoke(RegisterRoutes),
)

type issueRequest struct {
	Name   string   `json:"name" binding:"required"`
	Scopes []string `json:"scopes"`
}

type issueResponse struct {
	*View
	RawKey string `json:"rawKey"`
}

func RegisterRoutes(r *gin.Engine, svc *Service) {
	g := r.Group("/api-keys", middleware.Tenant())
	g.POST("", svc.handleIssue)
	g.GET("", svc.handleList)
	g.POST("/:id/revoke", svc.handleRevoke)
}

func (s *Service) handleIssue(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
		return
	}

	record, rawKey, err := s.Issue(c.Request.Context(), middleware.TenantID(c), req.Name, req.Scopes)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// rawKey is present only in this response
	c.JSON(http.StatusCreated, issueResponse{View: record.ToView(), RawKey: rawKey})
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

func (s *Service) handleRevoke(c *gin.Context) {
	record, err := s.Revoke(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record.ToView())
}
