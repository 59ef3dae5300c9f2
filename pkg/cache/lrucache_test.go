package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-graphicfetch/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLRU_Eviction(t *testing.T) {
	// Arrange
	lru, err := cache.NewMemoryLRU[string, int](2, 0, nil)
	require.NoError(t, err)

	// Act: fill the cache, touch key1 so key2 becomes least recently used, then overflow.
	_, evicted := lru.Put("key1", 1)
	assert.False(t, evicted)
	_, evicted = lru.Put("key2", 2)
	assert.False(t, evicted)

	_, ok := lru.Get("key1")
	require.True(t, ok)

	evictedKey, evicted := lru.Put("key3", 3)

	// Assert
	assert.True(t, evicted)
	assert.Equal(t, "key2", evictedKey)
	assert.Equal(t, 2, lru.Len())
	assert.True(t, lru.Contains("key1"))
	assert.False(t, lru.Contains("key2"))
	assert.True(t, lru.Contains("key3"))
}

func TestMemoryLRU_OverwriteDoesNotEvict(t *testing.T) {
	lru, err := cache.NewMemoryLRU[string, int](2, 0, nil)
	require.NoError(t, err)

	lru.Put("a", 1)
	lru.Put("b", 2)
	_, evicted := lru.Put("a", 10)

	assert.False(t, evicted)
	v, ok := lru.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, lru.Len())
}

func TestMemoryLRU_ContainsDoesNotRefreshRecency(t *testing.T) {
	lru, err := cache.NewMemoryLRU[string, int](2, 0, nil)
	require.NoError(t, err)

	lru.Put("a", 1)
	lru.Put("b", 2)
	require.True(t, lru.Contains("a"))

	evictedKey, evicted := lru.Put("c", 3)

	assert.True(t, evicted)
	assert.Equal(t, "a", evictedKey)
}

func TestMemoryLRU_Expiry(t *testing.T) {
	// Arrange
	clock := newFakeClock()
	lru, err := cache.NewMemoryLRU[string, string](10, time.Minute, clock.Now)
	require.NoError(t, err)
	lru.Put("k", "v")

	// Act & Assert: reads do not extend the lifetime of an entry.
	clock.Advance(30 * time.Second)
	v, ok := lru.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(30 * time.Second)
	_, ok = lru.Get("k")
	assert.False(t, ok, "entry should expire a full TTL after it was written")
	assert.Equal(t, 0, lru.Len(), "expired entry should be dropped on access")
}

func TestMemoryLRU_RemoveAndClear(t *testing.T) {
	lru, err := cache.NewMemoryLRU[string, int](3, 0, nil)
	require.NoError(t, err)
	lru.Put("a", 1)
	lru.Put("b", 2)

	assert.True(t, lru.Remove("a"))
	assert.False(t, lru.Remove("a"))
	assert.Equal(t, 1, lru.Len())

	lru.Clear()
	assert.Equal(t, 0, lru.Len())
	assert.False(t, lru.Contains("b"))
}

func TestNewMemoryLRU_Validation(t *testing.T) {
	_, err := cache.NewMemoryLRU[string, int](0, 0, nil)
	assert.Error(t, err)

	_, err = cache.NewMemoryLRU[string, int](1, -time.Second, nil)
	assert.Error(t, err)
}
