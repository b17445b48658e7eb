package cache

import (
	"context"
	"time"

	"gexflow/internal/logger"
)

// FallbackCache wraps a primary (Redis) cache with an in-memory
// fallback so the analytics service keeps serving when Redis is down.
// Reads try the primary first; on error the memory copy is consulted.
// Writes go to both; a primary write failure is logged, not returned.
type FallbackCache struct {
	primary Cacher
	memory  *MemoryCache
}

// NewFallbackCache creates a fallback cache. primary may be nil, in
// which case the memory cache serves everything.
func NewFallbackCache(primary Cacher, memorySize int) *FallbackCache {
	return &FallbackCache{
		primary: primary,
		memory:  NewMemoryCache(memorySize),
	}
}

// Get retrieves a value, preferring the primary backend
func (f *FallbackCache) Get(ctx context.Context, key string) (interface{}, error) {
	if f.primary != nil {
		v, err := f.primary.Get(ctx, key)
		if err == nil {
			return v, nil
		}
		if err != ErrNotFound {
			logger.Debugf("cache primary get failed for %s, using memory: %v", key, err)
		}
	}
	return f.memory.Get(ctx, key)
}

// Set stores a value in both backends
func (f *FallbackCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if f.primary != nil {
		if err := f.primary.Set(ctx, key, value, ttl); err != nil {
			logger.Debugf("cache primary set failed for %s: %v", key, err)
		}
	}
	return f.memory.Set(ctx, key, value, ttl)
}

// Delete removes a key from both backends
func (f *FallbackCache) Delete(ctx context.Context, key string) error {
	if f.primary != nil {
		if err := f.primary.Delete(ctx, key); err != nil {
			logger.Debugf("cache primary delete failed for %s: %v", key, err)
		}
	}
	return f.memory.Delete(ctx, key)
}

// Exists checks both backends
func (f *FallbackCache) Exists(ctx context.Context, key string) (bool, error) {
	if f.primary != nil {
		if ok, err := f.primary.Exists(ctx, key); err == nil && ok {
			return true, nil
		}
	}
	return f.memory.Exists(ctx, key)
}

// Close closes both backends
func (f *FallbackCache) Close() error {
	if f.primary != nil {
		if err := f.primary.Close(); err != nil {
			logger.Warnf("cache primary close failed: %v", err)
		}
	}
	return f.memory.Close()
}
