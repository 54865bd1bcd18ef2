package cache

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"sales-forecast/forecast"
)

// MemoryPredictionCache holds top-products results in process memory.
// Entries never expire on their own; Sweep removes the stale ones.
type MemoryPredictionCache struct {
	mu    sync.RWMutex
	items map[forecast.TopProductsKey]*forecast.TopProductsResult
}

// NewMemoryPredictionCache creates an empty cache
func NewMemoryPredictionCache() *MemoryPredictionCache {
	return &MemoryPredictionCache{items: make(map[forecast.TopProductsKey]*forecast.TopProductsResult)}
}

func normalizeKey(key forecast.TopProductsKey) forecast.TopProductsKey {
	// Category filtering ignores case, so "Bakery" and "bakery" share an entry
	key.Category = strings.ToLower(key.Category)
	return key
}

// Get returns the stored result for key
func (c *MemoryPredictionCache) Get(ctx context.Context, key forecast.TopProductsKey) (*forecast.TopProductsResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.items[normalizeKey(key)]
	return r, ok
}

// Set overwrites the entry for key
func (c *MemoryPredictionCache) Set(ctx context.Context, key forecast.TopProductsKey, result *forecast.TopProductsResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[normalizeKey(key)] = result
	return nil
}

// InvalidateTenant removes every entry of the tenant
func (c *MemoryPredictionCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if k.TenantID == tenantID {
			delete(c.items, k)
		}
	}
	return nil
}

// Sweep removes entries computed at least ttl before now and returns how many it removed
func (c *MemoryPredictionCache) Sweep(now time.Time, ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, r := range c.items {
		if now.Sub(r.ComputedAt) >= ttl {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Len is the number of stored entries
func (c *MemoryPredictionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

const topProductsKeyPrefix = "forecast:top:"

// RedisPredictionCache stores top-products results as JSON in Redis.
// Keys expire after ttl, so no sweeping is needed.
type RedisPredictionCache struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewRedisPredictionCache creates a Redis-backed cache whose entries expire after ttl
func NewRedisPredictionCache(redis *RedisClient, ttl time.Duration) *RedisPredictionCache {
	if ttl <= 0 {
		ttl = forecast.DefaultTopProductsTTL
	}
	return &RedisPredictionCache{redis: redis, ttl: ttl}
}

func tenantPrefix(tenantID string) string {
	return topProductsKeyPrefix + forecast.EscapeTenantID(tenantID) + ":"
}

func redisKey(key forecast.TopProductsKey) string {
	return topProductsKeyPrefix + key.String()
}

// Get treats any Redis failure as a miss
func (c *RedisPredictionCache) Get(ctx context.Context, key forecast.TopProductsKey) (*forecast.TopProductsResult, bool) {
	if c.redis == nil {
		return nil, false
	}
	var result forecast.TopProductsResult
	if err := c.redis.Get(ctx, redisKey(key), &result); err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("⚠️  Failed to read top products cache for tenant %s: %v", key.TenantID, err)
		}
		return nil, false
	}
	return &result, true
}

// Set writes the entry with the cache TTL
func (c *RedisPredictionCache) Set(ctx context.Context, key forecast.TopProductsKey, result *forecast.TopProductsResult) error {
	if c.redis == nil {
		return errors.New("redis client not available")
	}
	return c.redis.Set(ctx, redisKey(key), result, c.ttl)
}

// InvalidateTenant deletes every key of the tenant
func (c *RedisPredictionCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	if c.redis == nil {
		return nil
	}
	n, err := c.redis.DeleteByPrefix(ctx, tenantPrefix(tenantID))
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("🧹 Invalidated %d cached top-products results for tenant %s", n, tenantID)
	}
	return nil
}
