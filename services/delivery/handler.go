package delivery

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"vayva-webhooks/pkg/db/pagination"
	"vayva-webhooks/pkg/middleware"
)

var Gateway = fx.Module("delivery.gateway",
	fx.Invoke(RegisterRoutes),
)

type listResponse struct {
	Data     []*View              `json:"data"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

func RegisterRoutes(r *gin.Engine, svc *Service) {
	g := r.Group("/deliveries", middleware.Tenant())
	g.GET("", svc.handleList)
	g.POST("/:id/replay", svc.handleReplay)
}

func (s *Service) handleList(c *gin.Context) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
		return
	}

	records, pageInfo, err := s.List(c.Request.Context(), middleware.TenantID(c), c.Query("endpointId"), p)
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]*View, 0, len(records))
	for _, r := range records {
		out = append(out, r.ToView())
	}

	c.JSON(http.StatusOK, listResponse{Data: out, PageInfo: pageInfo})
}

func (s *Service) handleReplay(c *gin.Context) {
	record, err := s.Replay(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "delivery": record.ToView()})
}
