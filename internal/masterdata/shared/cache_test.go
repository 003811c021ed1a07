package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type cachedWarehouse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	key := Key("warehouse", 1, 10)

	var got cachedWarehouse
	require.False(t, cache.Get(ctx, key, &got))

	cache.Set(ctx, key, cachedWarehouse{ID: 10, Name: "Main"})
	require.True(t, cache.Get(ctx, key, &got))
	require.Equal(t, int64(10), got.ID)
	require.Equal(t, "Main", got.Name)
}

func TestCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	key := Key("item", 1, 7)

	cache.Set(ctx, key, cachedWarehouse{ID: 7})
	require.NoError(t, cache.Invalidate(ctx, key))

	var got cachedWarehouse
	require.False(t, cache.Get(ctx, key, &got))
}

func TestCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	key := Key("unit", 1, 3)

	cache.Set(ctx, key, cachedWarehouse{ID: 3})
	mr.FastForward(2 * time.Minute)

	var got cachedWarehouse
	require.False(t, cache.Get(ctx, key, &got))
}

func TestNilCacheIsInert(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	cache.Set(ctx, "k", cachedWarehouse{})
	var got cachedWarehouse
	require.False(t, cache.Get(ctx, "k", &got))
	require.NoError(t, cache.Invalidate(ctx, "k"))
}
