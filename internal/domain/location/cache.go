package location

import (
	"context"
	"sync"
	"time"
)

// Cache stores successful lookups keyed by IP. Implementations own the
// expiry: Get must not return an entry older than the configured TTL.
type Cache interface {
	Get(ctx context.Context, ip string) (Location, bool)
	Set(ctx context.Context, ip string, loc Location)
}

type cacheEntry struct {
	loc       Location
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache bounded by entry count.
type MemoryCache struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewMemoryCache creates a cache holding at most maxSize entries for ttl each.
// A non-positive maxSize means unbounded.
func NewMemoryCache(ttl time.Duration, maxSize int) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached location for ip if it has not expired. Expired
// entries are dropped.
func (c *MemoryCache) Get(_ context.Context, ip string) (Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ip]
	if !ok {
		return Location{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, ip)
		return Location{}, false
	}
	return e.loc, true
}

// Set stores loc for ip. When the cache is full, expired entries are evicted
// first and then the entry closest to expiry.
func (c *MemoryCache) Set(_ context.Context, ip string, loc Location) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[ip]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evict(now)
	}
	c.entries[ip] = cacheEntry{loc: loc, expiresAt: now.Add(c.ttl)}
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evict must be called with c.mu held.
func (c *MemoryCache) evict(now time.Time) {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	if len(c.entries) >= c.maxSize && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
