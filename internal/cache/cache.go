// Package cache provides a TTL-bounded LRU cache used for provider
// responses (fundamentals, sentiment, VRP payloads).
package cache

import (
	"container/list"
	"sync"
	"time"
)

// CloneFunc produces a defensive copy of a cached value so callers can
// never mutate what other readers see. Value types may pass Identity.
type CloneFunc[V any] func(V) V

// Identity returns the value unchanged. Safe for value types only.
func Identity[V any](v V) V { return v }

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// Cache is a TTL+LRU cache. All operations are atomic under one mutex;
// critical sections never perform I/O.
type Cache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	clone   CloneFunc[V]
	items   map[string]*list.Element
	order   *list.List // front = LRU, back = MRU
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	HitRate float64 `json:"hit_rate"`
}

// New creates a cache with the given TTL and maximum size.
func New[V any](ttl time.Duration, maxSize int, clone CloneFunc[V]) *Cache[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	if clone == nil {
		clone = Identity[V]
	}
	return &Cache[V]{
		ttl:     ttl,
		maxSize: maxSize,
		clone:   clone,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the cached value for key if present and within TTL.
// A hit moves the key to the MRU end and returns a defensive copy.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	ent := elem.Value.(*entry[V])
	if c.now().Sub(ent.insertedAt) > c.ttl {
		// Expired entries are removed eagerly so size reflects live data.
		c.order.Remove(elem)
		delete(c.items, key)
		c.misses++
		return zero, false
	}

	c.order.MoveToBack(elem)
	c.hits++
	return c.clone(ent.value), true
}

// Set inserts or replaces the value for key. When the cache is full the
// LRU entry is evicted first.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = c.clone(value)
		ent.insertedAt = c.now()
		c.order.MoveToBack(elem)
		return
	}

	if len(c.items) >= c.maxSize {
		if lru := c.order.Front(); lru != nil {
			c.order.Remove(lru)
			delete(c.items, lru.Value.(*entry[V]).key)
		}
	}

	elem := c.order.PushBack(&entry[V]{key: key, value: c.clone(value), insertedAt: c.now()})
	c.items[key] = elem
}

// Age returns how long ago the key was inserted, if present.
// Expired entries still report their age; staleness checks in the
// anomaly detector use this rather than Get.
func (c *Cache[V]) Age(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return 0, false
	}
	return c.now().Sub(elem.Value.(*entry[V]).insertedAt), true
}

// Delete removes a key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
}

// Stats returns the current counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    len(c.items),
		MaxSize: c.maxSize,
		HitRate: rate,
	}
}
