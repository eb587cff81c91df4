package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const statsCacheKey = "remitdesk:dashboard:stats"

// Cache holds the last computed Stats in Redis for a short TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Fetch returns cached stats or computes and stores them with loader.
func (c *Cache) Fetch(ctx context.Context, loader func(context.Context) (Stats, error)) (Stats, error) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return loader(ctx)
	}
	raw, err := c.client.Get(ctx, statsCacheKey).Bytes()
	if err == nil {
		var cached Stats
		if json.Unmarshal(raw, &cached) == nil {
			return cached, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return loader(ctx)
	}
	stats, err := loader(ctx)
	if err != nil {
		return stats, err
	}
	if data, err := json.Marshal(stats); err == nil {
		_ = c.client.Set(ctx, statsCacheKey, data, c.ttl).Err()
	}
	return stats, nil
}

// Invalidate drops the cached stats.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, statsCacheKey).Err()
}
