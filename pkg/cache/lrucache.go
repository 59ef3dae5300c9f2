package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// lruCacheItem is the internal structure stored in the linked list.
type lruCacheItem[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
	lastAccess time.Time
}

// MemoryLRU is a generic, thread-safe, in-memory cache with a fixed entry count,
// a Least Recently Used eviction policy and an optional time-to-live measured
// from insertion. Expired entries read as absent and are removed lazily.
type MemoryLRU[K comparable, V any] struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	ll    *list.List          // Front is the most recently used item.
	cache map[K]*list.Element // Used for fast key lookups.
}

// NewMemoryLRU creates a new size-limited, in-memory LRU cache.
//   - maxSize: the maximum number of items to hold. Must be > 0.
//   - ttl: how long an item stays valid after it is written; 0 disables expiry.
//   - now: clock used for expiry; nil means time.Now.
func NewMemoryLRU[K comparable, V any](maxSize int, ttl time.Duration, now func() time.Time) (*MemoryLRU[K, V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("ttl must not be negative")
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryLRU[K, V]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     now,
		ll:      list.New(),
		cache:   make(map[K]*list.Element),
	}, nil
}

// Get returns the value for key and marks it most recently used.
func (c *MemoryLRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.lookup(key)
	if !ok {
		return zero, false
	}
	item := elem.Value.(*lruCacheItem[K, V])
	item.lastAccess = c.now()
	c.ll.MoveToFront(elem)
	return item.value, true
}

// Contains reports whether a live entry exists without changing its recency.
func (c *MemoryLRU[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookup(key)
	return ok
}

// Put inserts or overwrites key. If the cache grows past its size the least
// recently used entry is evicted and returned.
func (c *MemoryLRU[K, V]) Put(key K, value V) (evicted K, didEvict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.cache[key]; ok {
		item := elem.Value.(*lruCacheItem[K, V])
		item.value = value
		item.insertedAt = now
		item.lastAccess = now
		c.ll.MoveToFront(elem)
		return evicted, false
	}

	element := c.ll.PushFront(&lruCacheItem[K, V]{key: key, value: value, insertedAt: now, lastAccess: now})
	c.cache[key] = element

	if c.ll.Len() > c.maxSize {
		return c.evict()
	}
	return evicted, false
}

// Remove deletes key and reports whether it was present.
func (c *MemoryLRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.cache[key]
	if ok {
		c.ll.Remove(elem)
		delete(c.cache, key)
	}
	return ok
}

// Clear drops every entry.
func (c *MemoryLRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.cache = make(map[K]*list.Element)
}

// Len returns the number of entries, including expired ones not yet removed.
func (c *MemoryLRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// lookup finds a live element, dropping it if it has expired.
// Must be called with the mutex held.
func (c *MemoryLRU[K, V]) lookup(key K) (*list.Element, bool) {
	elem, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	item := elem.Value.(*lruCacheItem[K, V])
	if c.ttl > 0 && c.now().Sub(item.insertedAt) >= c.ttl {
		c.ll.Remove(elem)
		delete(c.cache, key)
		return nil, false
	}
	return elem, true
}

// evict removes the least recently used item from the cache.
// This method is unexported and must be called within a locked mutex.
func (c *MemoryLRU[K, V]) evict() (K, bool) {
	var zero K
	elementToRemove := c.ll.Back()
	if elementToRemove == nil {
		return zero, false
	}
	itemToRemove := c.ll.Remove(elementToRemove).(*lruCacheItem[K, V])
	delete(c.cache, itemToRemove.key)
	return itemToRemove.key, true
}
