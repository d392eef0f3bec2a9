package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vayva-webhooks/pkg/db/option"
	"vayva-webhooks/pkg/db/pagination"
	"vayva-webhooks/pkg/errutil"
	"vayva-webhooks/pkg/repository"
	"vayva-webhooks/pkg/task"
	"vayva-webhooks/services/event"
)

var Module = fx.Module("delivery",
	fx.Provide(
		NewEngine,
		NewService,
		NewScheduler,
		func(s *Service) event.FanOut { return s },
	),
	fx.Invoke(registerScheduler),
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	repo     repository.Repository[Attempt]
	engine   *Engine
	enqueuer task.Enqueuer
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Engine   *Engine
	Enqueuer task.Enqueuer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		repo:     repository.ProvideStore[Attempt](p.DB),
		engine:   p.Engine,
		enqueuer: p.Enqueuer,
	}
}

// CreateAttempts writes one PENDING attempt per endpoint inside the caller's
// transaction. The (event_id, endpoint_id) unique index makes re-running the
// fan-out a no-op for endpoints that already have a row.
func (s *Service) CreateAttempts(ctx context.Context, tx *gorm.DB, ev *event.Event, endpointIDs []string) ([]string, error) {
	if len(endpointIDs) == 0 {
		return nil, nil
	}

	now := time.Now()
	rows := make([]*Attempt, 0, len(endpointIDs))
	ids := make([]string, 0, len(endpointIDs))

	for _, endpointID := range endpointIDs {
		attempt := &Attempt{
			ID:          fmt.Sprintf("del_%s", s.node.Generate()),
			TenantID:    ev.TenantID,
			EndpointID:  endpointID,
			EventID:     ev.ID,
			EventType:   ev.Type,
			Status:      StatusPending,
			NextRetryAt: &now,
		}
		rows = append(rows, attempt)
		ids = append(ids, attempt.ID)
	}

	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "endpoint_id"}},
			DoNothing: true,
		}).
		Create(rows).Error
	if err != nil {
		return nil, fmt.Errorf("create delivery attempts: %w", err)
	}

	return ids, nil
}

// Dispatch enqueues one deliver task per attempt. Failures are logged and
// left to the retry scheduler, which sweeps any attempt still due.
func (s *Service) Dispatch(ctx context.Context, attemptIDs []string) {
	for _, id := range attemptIDs {
		attempt, err := s.repo.FindOne(ctx, &Attempt{ID: id})
		if err != nil || attempt == nil {
			zap.L().Error("failed to load attempt for dispatch", zap.String("delivery_id", id), zap.Error(err))
			continue
		}

		t, err := NewDeliverTask(attempt.ID, attempt.TenantID)
		if err != nil {
			zap.L().Error("failed to build deliver task", zap.String("delivery_id", id), zap.Error(err))
			continue
		}

		if _, err := s.enqueuer.Enqueue(t); err != nil {
			zap.L().Error("failed to enqueue deliver task", zap.String("delivery_id", id), zap.Error(err))
		}
	}
}

// List returns the tenant's delivery attempts most recent first, optionally
// narrowed to one endpoint.
func (s *Service) List(ctx context.Context, tenantID, endpointID string, p pagination.Pagination) ([]*Attempt, *pagination.PageInfo, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		func(tx *gorm.DB) *gorm.DB { return tx.Limit(limit + 1) },
	}

	if p.Cursor != "" {
		cursor, err := pagination.DecodeCursor(p.Cursor)
		if err != nil {
			return nil, nil, errutil.ValidationFailed("invalid cursor", err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.LT,
			Value:    cursor.CreatedAt,
		}))
	}

	records, err := s.repo.Find(ctx, &Attempt{TenantID: tenantID, EndpointID: endpointID}, opts...)
	if err != nil {
		zap.L().Error("failed to list deliveries", zap.Error(err), zap.String("tenant_id", tenantID))
		return nil, nil, errutil.Internal("failed to list deliveries", err)
	}

	pageInfo := pagination.BuildCursorPageInfo(records, limit, func(a *Attempt) string {
		c, _ := pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: a.CreatedAt.Format(time.RFC3339Nano),
			ID:        a.ID,
		})
		return c
	})

	if len(records) > limit {
		records = records[:limit]
	}

	return records, pageInfo, nil
}

// Replay resets an attempt and runs one delivery transition synchronously on
// the same row. The reset zeroes the counter so the replayed send lands on
// attempt 1, as if the row were fresh.
func (s *Service) Replay(ctx context.Context, tenantID, id string) (*Attempt, error) {
	span := trace.SpanFromContext(ctx)

	if strings.TrimSpace(id) == "" {
		return nil, errutil.ValidationFailed("id is required", nil)
	}

	record, err := s.repo.FindOne(ctx, &Attempt{ID: id, TenantID: tenantID})
	if err != nil {
		zap.L().Error("failed to get delivery", zap.Error(err), zap.String("delivery_id", id))
		return nil, errutil.Internal("failed to get delivery", err)
	}

	if record == nil {
		return nil, errutil.NotFound("delivery not found", nil)
	}

	now := time.Now()
	record.Status = StatusPending
	record.AttemptCount = 0
	record.NextRetryAt = &now
	record.DeliveredAt = nil

	if err := s.repo.Update(ctx, record); err != nil {
		zap.L().Error("failed to reset delivery", zap.Error(err), zap.String("delivery_id", id))
		return nil, errutil.Internal("failed to reset delivery", err)
	}

	zap.L().Info("delivery replay requested",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("tenant_id", tenantID),
		zap.String("delivery_id", id),
	)

	if err := s.engine.Process(ctx, id); err != nil {
		zap.L().Error("replay transition failed", zap.Error(err), zap.String("delivery_id", id))
		return nil, errutil.Internal("failed to replay delivery", err)
	}

	refreshed, err := s.repo.FindOne(ctx, &Attempt{ID: id, TenantID: tenantID})
	if err != nil || refreshed == nil {
		return nil, errutil.Internal("failed to reload delivery", err)
	}

	return refreshed, nil
}
