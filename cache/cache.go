// Package cache holds the last-accepted scaled price per asset with TTL and
// bounded capacity.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/stellarlend/oracle-go/models"
)

// DefaultCapacity bounds the price cache.
const DefaultCapacity = 100

type entry struct {
	price     int64
	cachedAt  time.Time
	expiresAt time.Time
}

// PriceCache maps price:<ASSET> keys to scaled prices. All methods are safe
// for concurrent use; per-asset writes overwrite.
type PriceCache struct {
	mu         sync.Mutex
	entries    map[string]entry
	capacity   int
	defaultTTL time.Duration
	hits       uint64
	misses     uint64

	now func() time.Time
}

// New builds a cache with the given default TTL and DefaultCapacity slots.
func New(defaultTTL time.Duration) *PriceCache {
	return NewWithCapacity(defaultTTL, DefaultCapacity)
}

// NewWithCapacity builds a cache with an explicit capacity bound.
func NewWithCapacity(defaultTTL time.Duration, capacity int) *PriceCache {
	if capacity < 1 {
		capacity = 1
	}
	return &PriceCache{
		entries:    make(map[string]entry),
		capacity:   capacity,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func key(asset string) string {
	return "price:" + strings.ToUpper(asset)
}

// Get returns the cached scaled price, or ok=false on miss or expiry. An
// expired entry is deleted as a side effect and counted as a miss.
func (c *PriceCache) Get(asset string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(asset)
	e, ok := c.entries[k]
	if !ok {
		c.misses++
		return 0, false
	}
	if !e.expiresAt.After(c.now()) {
		delete(c.entries, k)
		c.misses++
		return 0, false
	}
	c.hits++
	return e.price, true
}

// Set stores a scaled price under the asset key. A zero ttl means the
// cache's default TTL. At capacity the entry with the smallest cachedAt is
// evicted first.
func (c *PriceCache) Set(asset string, price int64, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	k := key(asset)
	if _, exists := c.entries[k]; !exists && len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	now := c.now()
	c.entries[k] = entry{price: price, cachedAt: now, expiresAt: now.Add(ttl)}
}

// evictOldest removes the entry with the smallest cachedAt. Caller holds mu.
func (c *PriceCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.cachedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.cachedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Has reports whether a current entry exists, with the same expiry side
// effect as Get but without touching the hit/miss counters.
func (c *PriceCache) Has(asset string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(asset)
	e, ok := c.entries[k]
	if !ok {
		return false
	}
	if !e.expiresAt.After(c.now()) {
		delete(c.entries, k)
		return false
	}
	return true
}

// Clear drops every entry and resets the counters.
func (c *PriceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.hits = 0
	c.misses = 0
}

// Cleanup purges all expired entries and returns how many were removed.
func (c *PriceCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Stats reports size and hit/miss counters.
func (c *PriceCache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := models.CacheStats{
		Size:   len(c.entries),
		Hits:   c.hits,
		Misses: c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}
