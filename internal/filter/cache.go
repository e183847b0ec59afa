package filter

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultCacheCapacity bounds the number of compiled filters retained.
	DefaultCacheCapacity = 1000

	// DefaultCacheTTL is how long an unused compiled filter stays cached.
	DefaultCacheTTL = 30 * time.Minute
)

// cacheEntry is one compiled filter. lastUsed is touched on every hit and
// evaluation without taking the cache write lock.
type cacheEntry struct {
	id         FilterID
	expression string
	compiled   expr
	createdAt  time.Time
	lastUsed   atomic.Int64
}

func (e *cacheEntry) touch(now time.Time) {
	e.lastUsed.Store(now.UnixNano())
}

// filterCache is a bounded LRU cache of compiled filters with TTL expiry.
// Entries are keyed by normalized expression text, so two spellings of the
// same filter share one entry and one FilterID.
type filterCache struct {
	mu       sync.RWMutex
	byExpr   map[string]*cacheEntry
	byID     map[FilterID]*cacheEntry
	capacity int
	ttl      time.Duration
}

func newFilterCache(capacity int, ttl time.Duration) *filterCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &filterCache{
		byExpr:   make(map[string]*cacheEntry),
		byID:     make(map[FilterID]*cacheEntry),
		capacity: capacity,
		ttl:      ttl,
	}
}

// lookupByExpr returns the live entry for a normalized expression, if any.
func (c *filterCache) lookupByExpr(normalized string, now time.Time) (*cacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.byExpr[normalized]
	c.mu.RUnlock()
	if !ok || c.expired(entry, now) {
		return nil, false
	}
	entry.touch(now)
	return entry, true
}

// lookupByID returns the live entry for a filter id, if any.
func (c *filterCache) lookupByID(id FilterID, now time.Time) (*cacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.byID[id]
	c.mu.RUnlock()
	if !ok || c.expired(entry, now) {
		return nil, false
	}
	entry.touch(now)
	return entry, true
}

// insert stores a freshly compiled filter, evicting expired and then
// least-recently-used entries to stay within capacity. If another goroutine
// inserted the same normalized expression first, the existing entry wins
// and is returned, keeping the expression-to-id mapping stable. The second
// return value is how many entries were evicted to make room.
func (c *filterCache) insert(entry *cacheEntry, now time.Time) (*cacheEntry, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byExpr[entry.expression]; ok && !c.expired(existing, now) {
		existing.touch(now)
		return existing, 0
	}

	evicted := c.evictExpiredLocked(now)
	for len(c.byExpr) >= c.capacity {
		c.evictOldestLocked()
		evicted++
	}

	entry.touch(now)
	c.byExpr[entry.expression] = entry
	c.byID[entry.id] = entry
	return entry, evicted
}

// remove drops a filter by id. It reports whether the filter was cached.
func (c *filterCache) remove(id FilterID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.byID[id]
	if !ok {
		return false
	}
	c.dropLocked(entry)
	return true
}

// clear drops every cached filter.
func (c *filterCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byExpr = make(map[string]*cacheEntry)
	c.byID = make(map[FilterID]*cacheEntry)
}

// size returns the number of cached filters, counting expired entries that
// have not been swept yet.
func (c *filterCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byExpr)
}

// sweep removes expired entries and returns how many were dropped.
func (c *filterCache) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictExpiredLocked(now)
}

func (c *filterCache) expired(entry *cacheEntry, now time.Time) bool {
	return now.UnixNano()-entry.lastUsed.Load() > int64(c.ttl)
}

func (c *filterCache) evictExpiredLocked(now time.Time) int {
	var dropped int
	for _, entry := range c.byExpr {
		if c.expired(entry, now) {
			c.dropLocked(entry)
			dropped++
		}
	}
	return dropped
}

func (c *filterCache) evictOldestLocked() {
	var oldest *cacheEntry
	for _, entry := range c.byExpr {
		if oldest == nil || entry.lastUsed.Load() < oldest.lastUsed.Load() {
			oldest = entry
		}
	}
	if oldest != nil {
		c.dropLocked(oldest)
	}
}

func (c *filterCache) dropLocked(entry *cacheEntry) {
	delete(c.byExpr, entry.expression)
	delete(c.byID, entry.id)
}
