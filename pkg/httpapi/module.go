package httpapi

import (
	"vayva-webhooks/pkg/config"
	"vayva-webhooks/pkg/health"
	"vayva-webhooks/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(ProvideRouter),
	fx.Invoke(registerHealthEndpoint),
)

func ProvideRouter(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Error())

	return r
}

func registerHealthEndpoint(r *gin.Engine, svc health.HealthService) {
	r.GET("/healthz", svc.Liveness)
	r.GET("/readyz", svc.Readiness)
}
