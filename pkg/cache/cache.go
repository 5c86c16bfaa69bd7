package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Cache is a thread-safe in-memory cache with TTL support
type Cache struct {
	c          *gocache.Cache
	defaultTTL time.Duration
}

// NewCache creates a new cache with default TTL. A zero TTL keeps items until deleted.
func NewCache(defaultTTL time.Duration) *Cache {
	ttl := defaultTTL
	cleanup := defaultTTL / 2
	if ttl <= 0 {
		ttl = gocache.NoExpiration
		cleanup = 0
	}
	return &Cache{
		c:          gocache.New(ttl, cleanup),
		defaultTTL: ttl,
	}
}

// Get retrieves a value from cache
func (c *Cache) Get(key string) (interface{}, bool) {
	return c.c.Get(key)
}

// Set stores a value in cache with default TTL
func (c *Cache) Set(key string, value interface{}) {
	c.c.Set(key, value, gocache.DefaultExpiration)
}

// SetWithTTL stores a value in cache with custom TTL
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.c.Set(key, value, ttl)
}

// Delete removes a key from cache
func (c *Cache) Delete(key string) {
	c.c.Delete(key)
}

// Clear removes all items from cache
func (c *Cache) Clear() {
	c.c.Flush()
}

// Invalidate removes every key with the given prefix. An empty prefix only drops expired items.
func (c *Cache) Invalidate(prefix string) {
	if prefix == "" {
		c.c.DeleteExpired()
		return
	}
	for key := range c.c.Items() {
		if strings.HasPrefix(key, prefix) {
			c.c.Delete(key)
		}
	}
}

// Keys returns the live keys with the given prefix.
func (c *Cache) Keys(prefix string) []string {
	items := c.c.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Size returns the number of items in cache, expired ones included until cleanup
func (c *Cache) Size() int {
	return c.c.ItemCount()
}

// CacheWithFallback is a cache wrapper that falls back to a function if cache miss
type CacheWithFallback struct {
	cache *Cache
	group singleflight.Group
}

// NewCacheWithFallback creates a cache with fallback function support
func NewCacheWithFallback(defaultTTL time.Duration) *CacheWithFallback {
	return &CacheWithFallback{
		cache: NewCache(defaultTTL),
	}
}

// GetOrSet retrieves from cache or calls fallback function and caches result.
// Concurrent misses for the same key share one fallback call. Errors are not cached.
func (c *CacheWithFallback) GetOrSet(ctx context.Context, key string, fallback func(context.Context) (interface{}, error), ttl time.Duration) (interface{}, error) {
	if value, found := c.cache.Get(key); found {
		return value, nil
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, err := fallback(ctx)
		if err != nil {
			return nil, err
		}
		if ttl > 0 {
			c.cache.SetWithTTL(key, v, ttl)
		} else {
			c.cache.Set(key, v)
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Invalidate invalidates cache entries matching prefix
func (c *CacheWithFallback) Invalidate(prefix string) {
	c.cache.Invalidate(prefix)
}

// Size returns the number of cached entries
func (c *CacheWithFallback) Size() int {
	return c.cache.Size()
}
