// Package cache provides the time-bounded SELECT result cache.
package cache

import (
	"sync"
	"time"
)

// TTLCache is a thread-safe cache with time-based expiration.
// Entries expire individually ttl after they were stored; Invalidate drops
// everything at once. A zero or negative ttl disables the cache: Set is a
// no-op and Get always misses.
type TTLCache[K comparable, V any] struct {
	mu     sync.RWMutex
	data   map[K]item[V]
	ttl    time.Duration
	maxLen int
	now    func() time.Time

	hits, misses int64
}

type item[V any] struct {
	value  V
	stored time.Time
}

// New creates a new TTLCache with the given TTL duration.
// maxLen bounds the number of entries (0 = unlimited); when full, Set
// discards all expired entries and, if still full, starts over empty.
func New[K comparable, V any](ttl time.Duration, maxLen int) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data:   make(map[K]item[V]),
		ttl:    ttl,
		maxLen: maxLen,
		now:    time.Now,
	}
}

// Enabled reports whether the cache stores anything at all.
func (c *TTLCache[K, V]) Enabled() bool {
	return c.ttl > 0
}

// Get retrieves a value if present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.data[key]
	if !ok || c.expiredLocked(it) {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return it.value, true
}

// Set stores a value stamped with the current time.
func (c *TTLCache[K, V]) Set(key K, value V) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxLen > 0 && len(c.data) >= c.maxLen {
		c.pruneLocked()
		if len(c.data) >= c.maxLen {
			c.data = make(map[K]item[V])
		}
	}
	c.data[key] = item[V]{value: value, stored: c.now()}
}

// Invalidate clears all cached data.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.data) > 0 {
		c.data = make(map[K]item[V])
	}
}

// Len returns the number of items currently stored, expired or not.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Stats returns the hit and miss counters.
func (c *TTLCache[K, V]) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// expiredLocked MUST be called with at least a read lock held.
func (c *TTLCache[K, V]) expiredLocked(it item[V]) bool {
	return c.now().Sub(it.stored) >= c.ttl
}

func (c *TTLCache[K, V]) pruneLocked() {
	for k, it := range c.data {
		if c.expiredLocked(it) {
			delete(c.data, k)
		}
	}
}
