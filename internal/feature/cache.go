package feature

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/slopewatch/evac-cli/internal/geo"
)

// quantumDeg is the cache-key grid size in degrees, roughly 1 km. Candidates
// that fall in the same grid cell share one upstream query.
const quantumDeg = 0.01

// PersistentStore is an optional on-disk layer behind the in-memory cache,
// letting repeated runs in the same area reuse feature results across
// process restarts. It is a cache, not a system of record: misses and
// errors simply fall through to the provider.
type PersistentStore interface {
	Get(ctx context.Context, key string) ([]Feature, bool, error)
	Put(ctx context.Context, key string, feats []Feature) error
}

// Cache deduplicates feature queries by quantized area. Population is
// at-most-once per key: concurrent lookups for the same cell share a single
// in-flight provider call via singleflight.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
	ttl     time.Duration
	store   PersistentStore

	nowFunc func() time.Time
}

type cacheEntry struct {
	feats   []Feature
	expires time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the entry lifetime. Default 15 minutes.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithPersistentStore adds an on-disk cache layer.
func WithPersistentStore(s PersistentStore) CacheOption {
	return func(c *Cache) { c.store = s }
}

// NewCache creates a quantized feature cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     15 * time.Minute,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the cache key for a point and radius. Coordinates snap to a
// ~1 km grid so nearby candidates in one ring share a key.
func Key(p geo.Point, radiusKm float64) string {
	lat := math.Round(p.Lat/quantumDeg) * quantumDeg
	lng := math.Round(p.Lng/quantumDeg) * quantumDeg
	return fmt.Sprintf("%.2f:%.2f:%g", lat, lng, radiusKm)
}

// GetOrQuery returns cached features for the point's grid cell, populating
// the cache via query on a miss. Concurrent misses on one key collapse into
// a single provider call.
func (c *Cache) GetOrQuery(ctx context.Context, p geo.Point, radiusKm float64, query func(ctx context.Context) ([]Feature, error)) ([]Feature, error) {
	key := Key(p, radiusKm)

	if feats, ok := c.lookup(key); ok {
		return feats, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: another caller may have populated it.
		if feats, ok := c.lookup(key); ok {
			return feats, nil
		}

		if c.store != nil {
			if feats, ok, err := c.store.Get(ctx, key); err == nil && ok {
				c.put(key, feats)
				return feats, nil
			}
		}

		feats, err := query(ctx)
		if err != nil {
			return nil, err
		}

		c.put(key, feats)
		if c.store != nil {
			_ = c.store.Put(ctx, key, feats) // best effort
		}
		return feats, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Feature), nil
}

func (c *Cache) lookup(key string) ([]Feature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.nowFunc().After(e.expires) {
		return nil, false
	}
	return e.feats, true
}

func (c *Cache) put(key string, feats []Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{feats: feats, expires: c.nowFunc().Add(c.ttl)}
}

// Len returns the number of cached cells, expired entries included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
