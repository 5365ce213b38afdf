// Package cache provides a byte-size-bounded cache with per-entry expiry
// for parsed scripture corpora.
package cache

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxBytes is the default byte budget (50 MiB).
	DefaultMaxBytes int64 = 50 << 20

	// DefaultTTL is the default entry lifetime.
	DefaultTTL = 30 * time.Minute
)

// Stats contains cache statistics.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Rejections  int64
	Entries     int
	TotalBytes  int64
	MaxBytes    int64
}

// Config contains cache configuration options.
type Config struct {
	// MaxBytes is the total byte budget (0 = DefaultMaxBytes).
	MaxBytes int64

	// TTL is the time-to-live for entries (0 = DefaultTTL).
	TTL time.Duration

	// Now returns the current time. Tests override it.
	Now func() time.Time

	// OnEvict is called with the lock held whenever an entry is removed,
	// except by Clear. It must not call back into the cache.
	OnEvict func(key string, size int64)
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxBytes: DefaultMaxBytes,
		TTL:      DefaultTTL,
	}
}

// ByteSizer is implemented by values that can report their own size.
type ByteSizer interface {
	ByteSize() int64
}

// jsonMarshalFunc is a variable that holds the JSON marshal function.
// It can be overridden in tests to simulate marshal errors.
var jsonMarshalFunc = json.Marshal

// SizeOf measures a value the way the cache accounts for it.
func SizeOf(v any) int64 {
	switch x := v.(type) {
	case ByteSizer:
		return x.ByteSize()
	case string:
		return int64(len(x))
	case []byte:
		return int64(len(x))
	}
	data, err := jsonMarshalFunc(v)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// entry represents a cache entry.
type entry[V any] struct {
	data      V
	timestamp time.Time
	seq       uint64
	size      int64
}

// SizeCache is a thread-safe cache keyed by string that evicts the oldest
// entries once a byte budget is exceeded and expires entries by age.
type SizeCache[V any] struct {
	mu          sync.Mutex
	config      Config
	entries     map[string]*entry[V]
	currentSize int64
	seq         uint64
	stats       Stats
}

// New creates a new cache with the given configuration.
func New[V any](config Config) *SizeCache[V] {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &SizeCache[V]{
		config:  config,
		entries: make(map[string]*entry[V]),
	}
}

// Set stores data under key. If the new entry does not fit the budget,
// the oldest entries are evicted until it fits or the cache is empty.
// An entry larger than the whole budget is not stored.
func (c *SizeCache[V]) Set(key string, data V) {
	size := SizeOf(data)

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.currentSize -= old.size
		delete(c.entries, key)
	}

	if size > c.config.MaxBytes {
		c.stats.Rejections++
		return
	}

	if c.currentSize+size > c.config.MaxBytes {
		c.evictOldestLocked(size)
	}

	c.seq++
	c.entries[key] = &entry[V]{
		data:      data,
		timestamp: c.config.Now(),
		seq:       c.seq,
		size:      size,
	}
	c.currentSize += size
}

// evictOldestLocked removes entries in ascending timestamp order until
// incoming bytes fit. MUST be called with the lock held.
func (c *SizeCache[V]) evictOldestLocked(incoming int64) {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := c.entries[keys[i]], c.entries[keys[j]]
		if !a.timestamp.Equal(b.timestamp) {
			return a.timestamp.Before(b.timestamp)
		}
		return a.seq < b.seq
	})

	for _, k := range keys {
		if c.currentSize+incoming <= c.config.MaxBytes {
			return
		}
		c.removeLocked(k)
		c.stats.Evictions++
	}
}

// Get retrieves a value. Entries older than the TTL are removed and
// reported as absent.
func (c *SizeCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	if c.config.Now().Sub(e.timestamp) > c.config.TTL {
		c.removeLocked(key)
		c.stats.Expirations++
		c.stats.Misses++
		return zero, false
	}

	c.stats.Hits++
	return e.data, true
}

// Delete removes a value from the cache.
func (c *SizeCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.removeLocked(key)
	}
}

// Clear removes all entries and resets the size counter.
func (c *SizeCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry[V])
	c.currentSize = 0
}

// Len returns the number of entries in the cache.
func (c *SizeCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size returns the accounted byte size of all entries.
func (c *SizeCache[V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// MaxBytes returns the configured byte budget.
func (c *SizeCache[V]) MaxBytes() int64 {
	return c.config.MaxBytes
}

// Stats returns cache statistics.
func (c *SizeCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	s.TotalBytes = c.currentSize
	s.MaxBytes = c.config.MaxBytes
	return s
}

// removeLocked drops key and its size. MUST be called with the lock held.
func (c *SizeCache[V]) removeLocked(key string) {
	e := c.entries[key]
	delete(c.entries, key)
	c.currentSize -= e.size
	if c.config.OnEvict != nil {
		c.config.OnEvict(key, e.size)
	}
}
