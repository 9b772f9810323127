package reorder

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, ttl, slog.Default()), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	_, ok := cache.GetLowStock(ctx, 7)
	require.False(t, ok)

	statuses := []Status{
		{ProductID: 1, Name: "Shampoo", Quantity: 2, NeedsReorder: true, ReorderAmount: 18, Status: StatusLowStock},
	}
	cache.SetLowStock(ctx, 7, statuses)

	got, ok := cache.GetLowStock(ctx, 7)
	require.True(t, ok)
	require.Equal(t, statuses, got)

	_, ok = cache.GetLowStock(ctx, 8)
	require.False(t, ok, "listings are cached per business")
}

func TestRedisCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	cache.SetLowStock(ctx, 7, []Status{{ProductID: 1}})
	mr.FastForward(2 * time.Minute)

	_, ok := cache.GetLowStock(ctx, 7)
	require.False(t, ok)
}

func TestRedisCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	cache.SetLowStock(ctx, 7, []Status{{ProductID: 1}})
	cache.SetLowStock(ctx, 8, []Status{{ProductID: 2}})
	cache.InvalidateLowStock(ctx, 7)

	_, ok := cache.GetLowStock(ctx, 7)
	require.False(t, ok)
	_, ok = cache.GetLowStock(ctx, 8)
	require.True(t, ok, "only the invalidated business's listing is dropped")
}

func TestRedisCacheCorruptEntryIsMiss(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	require.NoError(t, mr.Set(lowStockKey(7), "not-json"))

	_, ok := cache.GetLowStock(context.Background(), 7)
	require.False(t, ok)
}
