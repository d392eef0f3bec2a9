package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vayva-webhooks/pkg/errutil"
	"vayva-webhooks/pkg/repository"
	"vayva-webhooks/services/endpoint"
)

var Module = fx.Module("event",
	fx.Provide(NewService),
)

// FanOut creates and dispatches delivery attempts for a published event.
// Implemented by the delivery service; the indirection keeps the publisher
// from depending on the engine package.
type FanOut interface {
	// CreateAttempts writes one PENDING attempt per endpoint id inside tx,
	// keyed by (event id, endpoint id) so re-running fan-out is idempotent.
	CreateAttempts(ctx context.Context, tx *gorm.DB, ev *Event, endpointIDs []string) ([]string, error)
	// Dispatch enqueues the attempts for asynchronous processing. Best
	// effort: the retry scheduler sweeps anything that never got a task.
	Dispatch(ctx context.Context, attemptIDs []string)
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	repo      repository.Repository[Event]
	endpoints *endpoint.Service
	fanout    FanOut
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Endpoints *endpoint.Service
	FanOut    FanOut
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		repo:      repository.ProvideStore[Event](p.DB),
		endpoints: p.Endpoints,
		fanout:    p.FanOut,
	}
}

// Publish records the event and fans it out to every ACTIVE endpoint
// subscribed to its type. The event and its attempt rows commit in one
// transaction; zero subscribers still records the event. Delivery outcomes
// never propagate back to the caller.
func (s *Service) Publish(ctx context.Context, tenantID, eventType string, payload json.RawMessage) (*Event, error) {
	span := trace.SpanFromContext(ctx)

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("tenant_id", tenantID),
		zap.String("event_type", eventType),
	)

	if strings.TrimSpace(eventType) == "" {
		return nil, errutil.ValidationFailed("type is required", nil)
	}

	if len(payload) == 0 || !json.Valid(payload) {
		return nil, errutil.ValidationFailed("payload must be a valid json document", nil)
	}

	record := &Event{
		ID:       fmt.Sprintf("evt_%s", s.node.Generate()),
		TenantID: tenantID,
		Type:     eventType,
		Payload:  datatypes.JSON(payload),
	}

	endpointIDs, err := s.endpoints.Match(ctx, tenantID, eventType)
	if err != nil {
		zapLog.Error("failed to match endpoints", zap.Error(err))
		return nil, errutil.Internal("failed to match endpoints", err)
	}

	var attemptIDs []string
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Create(ctx, record); err != nil {
			return err
		}

		attemptIDs, err = s.fanout.CreateAttempts(ctx, tx, record, endpointIDs)
		return err
	}); err != nil {
		zapLog.Error("failed to publish event", zap.Error(err))
		return nil, errutil.Internal("failed to publish event", err)
	}

	s.fanout.Dispatch(ctx, attemptIDs)

	zapLog.Info("event published",
		zap.String("event_id", record.ID),
		zap.Int("fanout", len(attemptIDs)),
	)

	return record, nil
}
