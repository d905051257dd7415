package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache keeps discount records in Redis as JSON. A nil Cache, or one without a client,
// behaves as an always-empty cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache. A non-positive ttl disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// DiscountKey is the cache key of a shop's discount.
func DiscountKey(shop string, id uuid.UUID) string {
	return "discount:" + shop + ":" + id.String()
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete evicts key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.enabled() || key == "" {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// GetDiscount looks up a cached record.
func (c *Cache) GetDiscount(ctx context.Context, shop string, id uuid.UUID) (Discount, bool, error) {
	var d Discount
	ok, err := c.GetJSON(ctx, DiscountKey(shop, id), &d)
	if err != nil || !ok {
		return Discount{}, false, err
	}
	return d, true, nil
}

// PutDiscount caches d under its shop and id.
func (c *Cache) PutDiscount(ctx context.Context, d Discount) error {
	return c.SetJSON(ctx, DiscountKey(d.Shop, d.ID), d)
}

// EvictDiscount drops a cached record.
func (c *Cache) EvictDiscount(ctx context.Context, shop string, id uuid.UUID) error {
	return c.Delete(ctx, DiscountKey(shop, id))
}
