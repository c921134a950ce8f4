package image

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mural/mural-api/internal/pkg/logger"
)

// RedisListCache keeps the active listing of a catalog in Redis.
// Errors are logged and treated as misses.
type RedisListCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisListCache creates a list cache for one catalog
func NewRedisListCache(client *redis.Client, catalog string, ttl time.Duration) *RedisListCache {
	return &RedisListCache{
		client: client,
		key:    "mural:catalog:" + catalog + ":active",
		ttl:    ttl,
	}
}

func (c *RedisListCache) Get(ctx context.Context) ([]*RecordResponse, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.FromContext(ctx).Warn().Err(err).Str("key", c.key).Msg("List cache read failed")
		}
		return nil, false
	}

	var items []*RecordResponse
	if err := json.Unmarshal(raw, &items); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("key", c.key).Msg("List cache entry is corrupt")
		return nil, false
	}
	return items, true
}

func (c *RedisListCache) Set(ctx context.Context, items []*RecordResponse) {
	if c == nil || c.client == nil {
		return
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("key", c.key).Msg("List cache write failed")
	}
}

func (c *RedisListCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("key", c.key).Msg("List cache invalidation failed")
	}
}
