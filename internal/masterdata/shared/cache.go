package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL keeps reference data fresh enough for lookups while
// absorbing the read volume of availability checks.
const DefaultCacheTTL = 5 * time.Minute

// Cache is a small JSON cache over Redis for reference data. A nil Cache is
// valid and disables caching, so services can run without Redis in tests.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache builds the cache. TTL zero means DefaultCacheTTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Key builds a tenant-scoped cache key.
func Key(entity string, companyID, id int64) string {
	return fmt.Sprintf("refdata:%s:%d:%d", entity, companyID, id)
}

// Get loads the value at key into dest, reporting whether it was present.
// Redis failures degrade to a miss; the caller falls through to the database.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if c == nil || c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

// Set stores the value at key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, raw, c.ttl)
}

// Invalidate drops keys after a write so readers never see stale records.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	err := c.client.Del(ctx, keys...).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
