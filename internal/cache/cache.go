// Package cache provides the bounded read-through caches used by the
// comparison viewer for decoded images and rendered previews.
package cache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Lookup is a read-through cache. Get returns the cached value for key or
// calls load, stores its result and returns it. Load errors are not cached.
type Lookup[K comparable, V any] interface {
	Get(key K, load func(K) (V, error)) (V, error)
	Len() int
	Purge()
}

// Stats describes cache usage.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Len      int   `json:"len"`
	Capacity int   `json:"capacity"`
}

// LRU evicts the least recently used entry once Capacity entries are held.
// A capacity of 0 keeps every entry.
type LRU[K comparable, V any] struct {
	capacity int
	bounded  *lru.Cache[K, V]

	mu        sync.Mutex
	unbounded map[K]V

	hits   int64
	misses int64
}

var _ Lookup[string, int] = (*LRU[string, int])(nil)

// New returns an LRU holding at most capacity entries, or an unbounded cache
// when capacity is 0 or negative.
func New[K comparable, V any](capacity int) *LRU[K, V] {
	c := &LRU[K, V]{capacity: max(capacity, 0)}
	if c.capacity == 0 {
		c.unbounded = make(map[K]V)
		return c
	}
	bounded, err := lru.New[K, V](c.capacity)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	c.bounded = bounded
	return c
}

// Get implements Lookup. Concurrent misses for the same key may both load;
// the last stored value wins.
func (c *LRU[K, V]) Get(key K, load func(K) (V, error)) (V, error) {
	if v, ok := c.peek(key); ok {
		atomic.AddInt64(&c.hits, 1)
		return v, nil
	}
	atomic.AddInt64(&c.misses, 1)

	v, err := load(key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Add(key, v)
	return v, nil
}

// Add stores value under key, evicting the oldest entry when full.
func (c *LRU[K, V]) Add(key K, value V) {
	if c.bounded != nil {
		c.bounded.Add(key, value)
		return
	}
	c.mu.Lock()
	c.unbounded[key] = value
	c.mu.Unlock()
}

// Contains reports whether key is cached without touching recency.
func (c *LRU[K, V]) Contains(key K) bool {
	if c.bounded != nil {
		return c.bounded.Contains(key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.unbounded[key]
	return ok
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	if c.bounded != nil {
		return c.bounded.Len()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unbounded)
}

// Purge drops every entry.
func (c *LRU[K, V]) Purge() {
	if c.bounded != nil {
		c.bounded.Purge()
		return
	}
	c.mu.Lock()
	c.unbounded = make(map[K]V)
	c.mu.Unlock()
}

// Stats returns hit and miss counters.
func (c *LRU[K, V]) Stats() Stats {
	return Stats{
		Hits:     atomic.LoadInt64(&c.hits),
		Misses:   atomic.LoadInt64(&c.misses),
		Len:      c.Len(),
		Capacity: c.capacity,
	}
}

func (c *LRU[K, V]) peek(key K) (V, bool) {
	if c.bounded != nil {
		return c.bounded.Get(key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.unbounded[key]
	return v, ok
}
