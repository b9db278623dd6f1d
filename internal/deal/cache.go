package deal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache keeps recently read deals in Redis so list-heavy CRM screens do not
// hammer Postgres. Writes go through the store first; the cache is dropped on
// every mutation rather than patched.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a deal cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(id uuid.UUID) string {
	return "deal:" + id.String()
}

// Get reports whether the deal was cached and decodes it into dst.
func (c *Cache) Get(ctx context.Context, id uuid.UUID, dst *Deal) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores the deal with the configured TTL.
func (c *Cache) Set(ctx context.Context, d Deal) error {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(d.ID), data, c.ttl).Err()
}

// Invalidate removes the cached deal after a mutation.
func (c *Cache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(id)).Err()
}
