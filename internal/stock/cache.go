package stock

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// Cache holds the serialized available-stock read model in redis for preview
// endpoints. Mutating flows invalidate it after commit; correctness-critical
// reads never go through here.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached read model, or false on miss. A nil cache always
// misses.
func (c *Cache) Get(ctx context.Context) (AvailableStock, bool) {
	if c == nil || c.client == nil {
		return AvailableStock{}, false
	}
	raw, err := c.client.Get(ctx, shared.StockCacheKey).Bytes()
	if err != nil {
		return AvailableStock{}, false
	}
	var stock AvailableStock
	if err := json.Unmarshal(raw, &stock); err != nil {
		return AvailableStock{}, false
	}
	return stock, true
}

// Set stores the read model with TTL.
func (c *Cache) Set(ctx context.Context, stock AvailableStock) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(stock)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, shared.StockCacheKey, raw, c.ttl).Err()
}

// Invalidate drops the cached read model.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	err := c.client.Del(ctx, shared.StockCacheKey).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
