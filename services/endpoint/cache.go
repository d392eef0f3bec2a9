package endpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vayva-webhooks/pkg/rediskey"
)

const matchCacheTTL = 5 * time.Minute

// matchCache keeps the ACTIVE endpoint ids subscribed to one event type in
// Redis so the publish hot path avoids a table scan per event. The cache is
// best-effort: a miss or a Redis error falls through to the database.
type matchCache struct {
	rdb *redis.Client
}

func newMatchCache(rdb *redis.Client) *matchCache {
	return &matchCache{rdb: rdb}
}

func (c *matchCache) Get(ctx context.Context, tenantID, eventType string) ([]string, bool) {
	if c.rdb == nil {
		return nil, false
	}

	key := rediskey.BuildEndpointMatchKey(tenantID, eventType)
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, false
	}

	return ids, true
}

func (c *matchCache) Set(ctx context.Context, tenantID, eventType string, ids []string) {
	if c.rdb == nil {
		return
	}

	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}

	key := rediskey.BuildEndpointMatchKey(tenantID, eventType)
	if err := c.rdb.Set(ctx, key, raw, matchCacheTTL).Err(); err != nil {
		zap.L().Warn("failed to cache endpoint match set", zap.Error(err), zap.String("key", key))
	}
}

// Invalidate drops every cached match set for the tenant. Called on any
// endpoint mutation so new fan-out sees the change immediately.
func (c *matchCache) Invalidate(ctx context.Context, tenantID string) {
	if c.rdb == nil {
		return
	}

	pattern := rediskey.BuildEndpointInvalidatePattern(tenantID)
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			zap.L().Warn("failed to invalidate endpoint cache key", zap.Error(err), zap.String("key", iter.Val()))
		}
	}
	if err := iter.Err(); err != nil {
		zap.L().Warn("endpoint cache invalidation scan failed", zap.Error(err), zap.String("tenant_id", tenantID))
	}
}
