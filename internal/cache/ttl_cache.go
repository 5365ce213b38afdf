// Package cache provides thread-safe caching utilities with time-based expiration.
package cache

import (
	"sync"
	"time"
)

type ttlEntry[V any] struct {
	value     V
	timestamp time.Time
}

// TTLCache is a thread-safe cache with time-based expiration.
// Each entry carries its own timestamp and goes stale once its age
// reaches the TTL. There is no size bound; the cache is meant to absorb
// bursts of identical requests, not long-term reuse.
type TTLCache[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]ttlEntry[V]
	ttl  time.Duration
	now  func() time.Time
}

// New creates a new TTLCache with the given TTL duration.
func New[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data: make(map[K]ttlEntry[V]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// WithClock replaces the time source. It is intended for tests.
func (c *TTLCache[K, V]) WithClock(now func() time.Time) *TTLCache[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Get retrieves a value from the cache.
// Returns zero value and ok=false if the key doesn't exist or the entry is stale.
// Stale entries are removed.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	fresh := ok && !c.isExpiredLocked(e)
	c.mu.RUnlock()

	if fresh {
		return e.value, true
	}
	if ok {
		c.mu.Lock()
		if cur, still := c.data[key]; still && c.isExpiredLocked(cur) {
			delete(c.data, key)
		}
		c.mu.Unlock()
	}

	var zero V
	return zero, false
}

// Set stores a value in the cache stamped with the current time.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data == nil {
		c.data = make(map[K]ttlEntry[V])
	}
	c.data[key] = ttlEntry[V]{value: value, timestamp: c.now()}
}

// Delete removes a single key.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// IsExpired reports whether key is missing or stale.
func (c *TTLCache[K, V]) IsExpired(key K) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	return !ok || c.isExpiredLocked(e)
}

// isExpiredLocked MUST be called with at least a read lock held.
func (c *TTLCache[K, V]) isExpiredLocked(e ttlEntry[V]) bool {
	return c.now().Sub(e.timestamp) >= c.ttl
}

// Invalidate clears all cached data.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[K]ttlEntry[V])
}

// Len returns the number of items currently in the cache.
// This does not check expiration - it returns the count even if stale.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
