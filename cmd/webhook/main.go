package main

import (
	"log"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vayva-webhooks/pkg/config"
	"vayva-webhooks/pkg/db"
	"vayva-webhooks/pkg/health"
	"vayva-webhooks/pkg/httpapi"
	"vayva-webhooks/pkg/logger"
	"vayva-webhooks/pkg/redis"
	"vayva-webhooks/pkg/secretmanager"
	"vayva-webhooks/pkg/server"
	"vayva-webhooks/pkg/task"
	"vayva-webhooks/services/apikey"
	"vayva-webhooks/services/delivery"
	"vayva-webhooks/services/endpoint"
	"vayva-webhooks/services/event"
)

func main() {
	opts := []fx.Option{
		config.Module,
	}

	// Vault hydration of DB/Redis/AES secrets is opt-in per environment.
	if os.Getenv("VAULT_ADDR") != "" {
		opts = append(opts, secretmanager.Module)
	}

	opts = append(opts,
		logger.Module,
		db.Module,
		redis.Module,
		health.Module,
		fx.Provide(
			provideSnowflakeNode,
			provideTracerProvider,
		),
		fx.Invoke(autoMigrate),
		task.Client,
		task.Server,
		httpapi.Module,
		apikey.Module,
		apikey.Gateway,
		endpoint.Module,
		endpoint.Gateway,
		event.Module,
		event.Gateway,
		delivery.Module,
		delivery.Gateway,
		fx.Invoke(registerDeliveryHandlers),
		server.ProvideHTTPServer,
		fxLogger,
	)

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&apikey.APIKey{},
		&endpoint.Endpoint{},
		&event.Event{},
		&delivery.Attempt{},
	)
}

func registerDeliveryHandlers(mux *asynq.ServeMux, svc *delivery.Service) {
	delivery.RegisterHandlers(mux, svc)
}
