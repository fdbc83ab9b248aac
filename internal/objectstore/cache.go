package objectstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// CacheConfig controls the read-through latest-snapshot cache.
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// DefaultCacheConfig returns sane production defaults: short-lived,
// since a fresh Put must be visible to get_latest promptly.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 5 * time.Second, MaxEntries: 10000}
}

type cacheEntry struct {
	snapshot  Snapshot
	expiresAt time.Time
}

// Cache is an in-process read-through cache in front of Store.GetLatest,
// keyed by store id. Repeated GetLatest calls for the same store within
// the TTL are served from memory without hitting the backend.
type Cache struct {
	mu     sync.RWMutex
	logger zerolog.Logger
	config CacheConfig
	store  map[string]cacheEntry

	hits   int64
	misses int64
}

// NewCache returns a Cache with the given configuration.
func NewCache(logger zerolog.Logger, config CacheConfig) *Cache {
	return &Cache{
		logger: logger.With().Str("component", "objectstore_cache").Logger(),
		config: config,
		store:  make(map[string]cacheEntry),
	}
}

// GetLatest returns the cached latest snapshot for storeID if present and
// unexpired, else calls through to fetch and populates the cache.
func (c *Cache) GetLatest(ctx context.Context, s *Store) (Snapshot, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.store[s.StoreID()]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		atomic.AddInt64(&c.hits, 1)
		return entry.snapshot, nil
	}
	atomic.AddInt64(&c.misses, 1)

	snap, err := s.GetLatest(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	if len(c.store) >= c.config.MaxEntries {
		c.evictOldestLocked()
	}
	c.store[s.StoreID()] = cacheEntry{snapshot: snap, expiresAt: now.Add(c.config.TTL)}
	c.mu.Unlock()

	return snap, nil
}

// Invalidate drops any cached entry for storeID so the next GetLatest
// observes fresh data immediately rather than waiting out the TTL.
func (c *Cache) Invalidate(storeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, storeID)
}

// Stats reports hit/miss counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Entries: len(c.store),
	}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, v := range c.store {
		if oldestKey == "" || v.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, v.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.store, oldestKey)
	}
}
