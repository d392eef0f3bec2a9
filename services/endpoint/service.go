package endpoint

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vayva-webhooks/pkg/config"
	"vayva-webhooks/pkg/db/option"
	"vayva-webhooks/pkg/errutil"
	"vayva-webhooks/pkg/repository"
	"vayva-webhooks/pkg/security"
)

var Module = fx.Module("endpoint",
	fx.Provide(NewService),
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	repo   repository.Repository[Endpoint]
	cache  *matchCache
	aesKey []byte
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		repo:   repository.ProvideStore[Endpoint](p.DB),
		cache:  newMatchCache(p.Redis),
		aesKey: security.KeyFromSecret(p.Config.SecretAES),
	}
}

func validateEvents(events []string) error {
	if len(events) == 0 {
		return errutil.ValidationFailed("events must not be empty", nil)
	}
	for _, e := range events {
		if strings.TrimSpace(e) == "" {
			return errutil.ValidationFailed("event type must not be blank", nil)
		}
	}
	return nil
}

// Create registers a delivery destination and returns the signing secret
// exactly once. At rest the secret is AES-256-GCM encrypted with the platform
// key; only the delivery engine decrypts it.
func (s *Service) Create(ctx context.Context, tenantID, rawURL string, events []string) (*Endpoint, string, error) {
	span := trace.SpanFromContext(ctx)

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("tenant_id", tenantID),
	)

	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, "", errutil.ValidationFailed("url must be an absolute http(s) url", nil)
	}

	if err := validateEvents(events); err != nil {
		return nil, "", err
	}

	secret := security.GenerateToken(32)
	secretEnc, err := security.Encrypt([]byte(secret), s.aesKey)
	if err != nil {
		zapLog.Error("failed to encrypt endpoint secret", zap.Error(err))
		return nil, "", errutil.Internal("failed to encrypt endpoint secret", err)
	}

	record := &Endpoint{
		ID:               fmt.Sprintf("ep_%s", s.node.Generate()),
		TenantID:         tenantID,
		URL:              rawURL,
		SecretEnc:        secretEnc,
		SubscribedEvents: datatypes.NewJSONSlice(events),
		Status:           EndpointStatusActive,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		zapLog.Error("failed to create endpoint", zap.Error(err))
		return nil, "", errutil.Internal("failed to create endpoint", err)
	}

	s.cache.Invalidate(ctx, tenantID)

	zapLog.Info("endpoint created", zap.String("endpoint_id", record.ID), zap.String("url", rawURL))

	return record, secret, nil
}

func (s *Service) List(ctx context.Context, tenantID string) ([]*Endpoint, error) {
	records, err := s.repo.Find(ctx, &Endpoint{TenantID: tenantID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
	)
	if err != nil {
		zap.L().Error("failed to list endpoints", zap.Error(err), zap.String("tenant_id", tenantID))
		return nil, errutil.Internal("failed to list endpoints", err)
	}

	return records, nil
}

func (s *Service) get(ctx context.Context, tenantID, id string) (*Endpoint, error) {
	record, err := s.repo.FindOne(ctx, &Endpoint{ID: id, TenantID: tenantID})
	if err != nil {
		zap.L().Error("failed to get endpoint", zap.Error(err), zap.String("endpoint_id", id))
		return nil, errutil.Internal("failed to get endpoint", err)
	}
	if record == nil {
		return nil, errutil.NotFound("endpoint not found", nil)
	}
	return record, nil
}

// UpdateSubscriptions replaces the endpoint's subscribed event types.
func (s *Service) UpdateSubscriptions(ctx context.Context, tenantID, id string, events []string) (*Endpoint, error) {
	if err := validateEvents(events); err != nil {
		return nil, err
	}

	record, err := s.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	record.SubscribedEvents = datatypes.NewJSONSlice(events)
	if err := s.repo.Update(ctx, record); err != nil {
		zap.L().Error("failed to update subscriptions", zap.Error(err), zap.String("endpoint_id", id))
		return nil, errutil.Internal("failed to update subscriptions", err)
	}

	s.cache.Invalidate(ctx, tenantID)

	return record, nil
}

// RotateSecret issues a fresh signing secret, returned once. Attempts already
// signed and in flight keep the prior signature; only future signing changes.
func (s *Service) RotateSecret(ctx context.Context, tenantID, id string) (*Endpoint, string, error) {
	record, err := s.get(ctx, tenantID, id)
	if err != nil {
		return nil, "", err
	}

	secret := security.GenerateToken(32)
	secretEnc, err := security.Encrypt([]byte(secret), s.aesKey)
	if err != nil {
		zap.L().Error("failed to encrypt endpoint secret", zap.Error(err), zap.String("endpoint_id", id))
		return nil, "", errutil.Internal("failed to encrypt endpoint secret", err)
	}

	record.SecretEnc = secretEnc
	if err := s.repo.Update(ctx, record); err != nil {
		zap.L().Error("failed to rotate secret", zap.Error(err), zap.String("endpoint_id", id))
		return nil, "", errutil.Internal("failed to rotate secret", err)
	}

	zap.L().Info("endpoint secret rotated",
		zap.String("tenant_id", tenantID),
		zap.String("endpoint_id", id),
	)

	return record, secret, nil
}

// SetStatus pauses/disables/re-activates an endpoint. Disabling only stops new
// fan-out; attempts already created keep processing.
func (s *Service) SetStatus(ctx context.Context, tenantID, id string, status EndpointStatus) (*Endpoint, error) {
	if !status.Valid() {
		return nil, errutil.ValidationFailed(fmt.Sprintf("unknown status %q", status), nil)
	}

	record, err := s.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	record.Status = status
	if err := s.repo.Update(ctx, record); err != nil {
		zap.L().Error("failed to set endpoint status", zap.Error(err), zap.String("endpoint_id", id))
		return nil, errutil.Internal("failed to set endpoint status", err)
	}

	s.cache.Invalidate(ctx, tenantID)

	return record, nil
}

// Match returns the ids of ACTIVE endpoints subscribed to eventType, serving
// the publish hot path from Redis when the cache is warm.
func (s *Service) Match(ctx context.Context, tenantID, eventType string) ([]string, error) {
	if ids, ok := s.cache.Get(ctx, tenantID, eventType); ok {
		return ids, nil
	}

	records, err := s.repo.Find(ctx, &Endpoint{TenantID: tenantID, Status: EndpointStatusActive})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for _, ep := range records {
		if ep.Subscribed(eventType) {
			ids = append(ids, ep.ID)
		}
	}

	s.cache.Set(ctx, tenantID, eventType, ids)

	return ids, nil
}
