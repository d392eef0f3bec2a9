package apikey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vayva-webhooks/pkg/db/option"
	"vayva-webhooks/pkg/errutil"
	"vayva-webhooks/pkg/repository"
	"vayva-webhooks/pkg/security"
)

const rawKeyPrefix = "vayva_"

var Module = fx.Module("apikey",
	fx.Provide(NewService),
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	repo repository.Repository[APIKey]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		repo: repository.ProvideStore[APIKey](p.DB),
	}
}

// Issue creates a credential and returns the raw key exactly once.
// Only the sha256 of the raw key is persisted.
func (s *Service) Issue(ctx context.Context, tenantID, name string, scopes []string) (*APIKey, string, error) {
	span := trace.SpanFromContext(ctx)

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("tenant_id", tenantID),
	)

	if strings.TrimSpace(name) == "" {
		return nil, "", errutil.ValidationFailed("name is required", nil)
	}

	if len(scopes) == 0 {
		return nil, "", errutil.ValidationFailed("scopes must not be empty", nil)
	}

	for _, scope := range scopes {
		if !KnownScopes[scope] {
			return nil, "", errutil.ValidationFailed(fmt.Sprintf("unknown scope %q", scope), nil)
		}
	}

	rawKey := rawKeyPrefix + security.GenerateToken(32)

	record := &APIKey{
		ID:         fmt.Sprintf("key_%s", s.node.Generate()),
		TenantID:   tenantID,
		Name:       name,
		KeyID:      rawKey[:len(rawKeyPrefix)+8],
		SecretHash: security.HashToken(rawKey),
		Scopes:     datatypes.NewJSONSlice(scopes),
		Status:     APIKeyStatusActive,
		CreatedAt:  time.Now(),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		zapLog.Error("failed to create api key", zap.Error(err))
		return nil, "", errutil.Internal("failed to create api key", err)
	}

	zapLog.Info("api key issued", zap.String("key_id", record.KeyID))

	return record, rawKey, nil
}

// List returns the tenant's credentials without any secret material.
func (s *Service) List(ctx context.Context, tenantID string) ([]*APIKey, error) {
	records, err := s.repo.Find(ctx, &APIKey{TenantID: tenantID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
	)
	if err != nil {
		zap.L().Error("failed to list api keys", zap.Error(err), zap.String("tenant_id", tenantID))
		return nil, errutil.Internal("failed to list api keys", err)
	}

	return records, nil
}

// Revoke marks a credential revoked. Revoking twice is a no-op: the record is
// returned unchanged with the original revoked-at.
func (s *Service) Revoke(ctx context.Context, tenantID, id string) (*APIKey, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errutil.ValidationFailed("id is required", nil)
	}

	record, err := s.repo.FindOne(ctx, &APIKey{ID: id, TenantID: tenantID})
	if err != nil {
		zap.L().Error("failed to get api key", zap.Error(err), zap.String("api_key_id", id))
		return nil, errutil.Internal("failed to get api key", err)
	}

	if record == nil {
		return nil, errutil.NotFound("api key not found", nil)
	}

	if record.Status == APIKeyStatusRevoked {
		return record, nil
	}

	now := time.Now()
	record.Status = APIKeyStatusRevoked
	record.RevokedAt = &now

	if err := s.repo.Update(ctx, record); err != nil {
		zap.L().Error("failed to revoke api key", zap.Error(err), zap.String("api_key_id", id))
		return nil, errutil.Internal("failed to revoke api key", err)
	}

	zap.L().Info("api key revoked",
		zap.String("tenant_id", tenantID),
		zap.String("api_key_id", id),
	)

	return record, nil
}
