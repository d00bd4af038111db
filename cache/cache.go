// Package cache provides the bounded response cache of the resilience layer.
//
// Entries are keyed by route, canonical query parameters and scenario
// identity, expire after a per-entry TTL and are evicted least recently used
// first when the cache is full. Expired entries are dropped lazily on read and
// eagerly by Cleanup.
//
//	c := cache.New[[]byte](cache.DefaultConfig())
//	key := cache.NewKey("/api/users?page=2", "", sc)
//	c.Set(key, body, 0) // default TTL
//	if body, ok := c.Get(key); ok {
//	    ...
//	}
//
// Stored values are not copied; callers must not mutate them if repeated
// reads are expected to be stable.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	DefaultMaxEntries = 1000
	DefaultTTL        = 5 * time.Minute
)

// Config configures a Cache.
type Config struct {
	// MaxEntries is the LRU capacity.
	MaxEntries int
	// DefaultTTL applies when Set is called without a TTL.
	DefaultTTL time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries: DefaultMaxEntries,
		DefaultTTL: DefaultTTL,
	}
}

// Option configures optional Cache behaviour.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for deterministic expiry in tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Size        int           `json:"size"`
	MaxEntries  int           `json:"max_entries"`
	DefaultTTL  time.Duration `json:"default_ttl"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Evictions   int64         `json:"evictions"`
	Expirations int64         `json:"expirations"`
	HitRate     float64       `json:"hit_rate"`
}

// Cache is a size- and time-bounded store. It is safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	lru        *simplelru.LRU[Key, *Entry[V]]
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

// New creates a cache. Non-positive settings fall back to the defaults.
func New[V any](cfg Config, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}

	return &Cache[V]{
		lru:        mustLRU[V](cfg.MaxEntries),
		maxEntries: cfg.MaxEntries,
		defaultTTL: cfg.DefaultTTL,
		now:        o.now,
	}
}

func mustLRU[V any](size int) *simplelru.LRU[Key, *Entry[V]] {
	l, err := simplelru.NewLRU[Key, *Entry[V]](size, nil)
	if err != nil {
		panic(fmt.Sprintf("cache: %v", err))
	}
	return l
}

// Get returns the data stored under key. A missing or expired entry counts as
// a miss; an expired entry is removed. A hit refreshes the entry's recency.
func (c *Cache[V]) Get(key Key) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if !ok {
		c.misses++
		return zero, false
	}

	now := c.now()
	if e.Expired(now) {
		c.lru.Remove(key)
		c.misses++
		c.expirations++
		return zero, false
	}

	c.lru.Get(key)
	e.HitCount++
	e.LastAccessAt = now
	c.hits++
	return e.Data, true
}

// Set stores data under key. A non-positive ttl uses the default TTL.
// Inserting a new key into a full cache evicts the least recently used entry.
func (c *Cache[V]) Set(key Key, data V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	entry := &Entry[V]{
		Data:         data,
		CreatedAt:    now,
		TTL:          ttl,
		LastAccessAt: now,
	}
	if c.lru.Add(key, entry) {
		c.evictions++
	}
}

// Has reports whether a live entry exists for key without touching counters
// or recency.
func (c *Cache[V]) Has(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	return ok && !e.Expired(c.now())
}

// Inspect returns a copy of the entry for key, expired or not, without
// touching counters or recency.
func (c *Cache[V]) Inspect(key Key) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if !ok {
		return Entry[V]{}, false
	}
	return *e, true
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Clear removes every entry. Counters are kept; see ResetStats.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Cleanup removes every expired entry and returns how many were removed.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if ok && e.Expired(now) {
			c.lru.Remove(key)
			removed++
		}
	}
	c.expirations += int64(removed)
	return removed
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Resize changes the capacity, evicting least recently used entries if the
// cache shrinks. It returns the number of evicted entries.
func (c *Cache[V]) Resize(maxEntries int) int {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := c.lru.Resize(maxEntries)
	c.maxEntries = maxEntries
	c.evictions += int64(evicted)
	return evicted
}

// SetDefaultTTL changes the TTL used by later Set calls without one.
// Existing entries keep their TTL.
func (c *Cache[V]) SetDefaultTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultTTL = ttl
}

// ResetStats zeroes the hit, miss, eviction and expiration counters.
func (c *Cache[V]) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses, c.evictions, c.expirations = 0, 0, 0, 0
}

// Stats returns the current counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:        c.lru.Len(),
		MaxEntries:  c.maxEntries,
		DefaultTTL:  c.defaultTTL,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
