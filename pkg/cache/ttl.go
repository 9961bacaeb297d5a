// Package cache provides a small bounded TTL cache used for provider
// catalog lookups (models, shields). Instances are constructor-injected
// into the components that need them; there is no global cache.
package cache

import (
	"sync"
	"time"
)

// TTL is a bounded cache whose entries expire after a fixed duration.
// It is safe for concurrent use.
type TTL[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]entry[V]

	now func() time.Time // overridable in tests
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// New creates a TTL cache. maxEntries bounds the cache size; when full,
// the oldest entry is evicted. A non-positive maxEntries defaults to 128.
func New[V any](ttl time.Duration, maxEntries int) *TTL[V] {
	if maxEntries <= 0 {
		maxEntries = 128
	}
	return &TTL[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]entry[V]),
		now:        time.Now,
	}
}

// Get returns the cached value for key if present and not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value for key, evicting expired entries and, if still at
// capacity, the oldest entry.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		for k, e := range c.entries {
			if now.Sub(e.storedAt) > c.ttl {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.maxEntries {
			var oldestKey string
			var oldestAt time.Time
			first := true
			for k, e := range c.entries {
				if first || e.storedAt.Before(oldestAt) {
					oldestKey, oldestAt = k, e.storedAt
					first = false
				}
			}
			delete(c.entries, oldestKey)
		}
	}

	c.entries[key] = entry[V]{value: value, storedAt: now}
}

// Invalidate drops the entry for key if present.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries currently stored, including entries
// that have expired but not yet been evicted.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
