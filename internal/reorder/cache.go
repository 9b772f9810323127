package reorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores low-stock listings in Redis with a short TTL. The cache
// is advisory: any Redis failure is logged and treated as a miss.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache constructs the cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func lowStockKey(businessID int64) string {
	return fmt.Sprintf("reorder:lowstock:%d", businessID)
}

// GetLowStock returns a cached listing when present.
func (c *RedisCache) GetLowStock(ctx context.Context, businessID int64) ([]Status, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, lowStockKey(businessID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("reorder cache get", slog.Any("error", err))
		}
		return nil, false
	}
	var statuses []Status
	if err := json.Unmarshal(data, &statuses); err != nil {
		c.logger.Warn("reorder cache decode", slog.Any("error", err))
		return nil, false
	}
	return statuses, true
}

// InvalidateLowStock drops the cached listing for a business. Called from the
// ledger after a movement commits.
func (c *RedisCache) InvalidateLowStock(ctx context.Context, businessID int64) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, lowStockKey(businessID)).Err(); err != nil {
		c.logger.Warn("reorder cache invalidate", slog.Any("error", err))
	}
}

// SetLowStock stores a listing, best-effort.
func (c *RedisCache) SetLowStock(ctx context.Context, businessID int64, statuses []Status) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(statuses)
	if err != nil {
		c.logger.Warn("reorder cache encode", slog.Any("error", err))
		return
	}
	if err := c.client.Set(ctx, lowStockKey(businessID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("reorder cache set", slog.Any("error", err))
	}
}
