// Package cache holds recently generated inline completions keyed by the tail
// of the text before the cursor.
package cache

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// Capacity is the maximum number of entries.
	Capacity = 100
	// FingerprintLen is the number of trailing runes that form a key.
	FingerprintLen = 100
)

// Fingerprint returns the trailing FingerprintLen runes of text. Two requests
// sharing their last FingerprintLen runes share a cache entry.
func Fingerprint(text string) string {
	r := []rune(text)
	if len(r) <= FingerprintLen {
		return text
	}
	return string(r[len(r)-FingerprintLen:])
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Len       int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache is a bounded first-in-first-out map. Reads never change eviction
// order, so once full every insertion evicts the oldest surviving entry.
// Putting an existing key replaces its value and makes it the newest entry.
type Cache struct {
	mu    sync.Mutex
	lru   *simplelru.LRU[string, string]
	stats Stats

	// onEvict is called with the evicted key while the cache lock is held.
	onEvict func(key string)
}

// Option customizes a Cache.
type Option func(*Cache)

// WithEvictHook registers a callback invoked for every capacity eviction.
func WithEvictHook(fn func(key string)) Option {
	return func(c *Cache) { c.onEvict = fn }
}

// New returns an empty cache with the given capacity; capacity <= 0 uses
// Capacity.
func New(capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = Capacity
	}
	c := &Cache{}
	for _, o := range opts {
		o(c)
	}
	l, err := simplelru.NewLRU[string, string](capacity, nil)
	if err != nil {
		// Only returned for non-positive sizes, excluded above.
		panic(err)
	}
	c.lru = l
	return c
}

// Get returns the value for key without affecting eviction order.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Peek(key)
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	return v, ok
}

// Put inserts or replaces key. When the cache is full the oldest entry is
// evicted.
func (c *Cache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru.Contains(key) {
		// Remove first so the replaced entry moves to the newest position.
		c.lru.Remove(key)
	}
	oldest, _, _ := c.lru.GetOldest()
	if c.lru.Add(key, value) {
		c.stats.Evictions++
		if c.onEvict != nil {
			c.onEvict(oldest)
		}
	}
}

// Clear drops every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns keys from oldest to newest.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Len = c.lru.Len()
	return s
}
