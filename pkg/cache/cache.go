// Package cache provides a TTL-bounded LRU cache for external lookup
// responses. It is an injectable component, not a hidden singleton, so tests
// construct isolated instances.
package cache

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// Cache wraps an expirable LRU keyed by adapter-qualified query strings.
// A nil *Cache is valid and behaves as a disabled cache: every Get misses
// and Set is a no-op.
type Cache struct {
	lru    *expirable.LRU[string, []byte]
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache holding at most maxSize entries, each expiring after
// ttl. Concurrent readers and writers are safe.
func New(maxSize int, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		lru:    expirable.NewLRU[string, []byte](maxSize, nil, ttl),
		logger: logger,
	}
}

// Key builds a cache key from an adapter name and a lookup query.
func Key(adapter, query string) string {
	return adapter + ":" + strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached payload for key, if present and unexpired.
func (c *Cache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	val, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		c.logger.Debug("cache miss", zap.String("key", key))
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", zap.String("key", key))
	return val, true
}

// Set stores a payload under key.
func (c *Cache) Set(key string, value []byte) {
	if c == nil {
		return
	}
	c.lru.Add(key, value)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
	c.logger.Debug("cache purged")
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Stats reports cumulative hit and miss counts.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
