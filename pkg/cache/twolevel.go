package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-graphicfetch/pkg/graphic"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// errStoreRetired is returned for store I/O attempted after retire.
var errStoreRetired = errors.New("store retired")

const (
	DefaultCapacity           = 50
	DefaultExpiration         = 30 * 24 * time.Hour
	DefaultMaxDiskConcurrency = 2
)

// Options configures a TwoLevelCache. Zero values take the package defaults.
type Options struct {
	// Name labels log lines and metrics, e.g. "graphic" or "raw".
	Name               string
	Capacity           int
	Expiration         time.Duration
	MaxDiskConcurrency int
	// Clock is used for memory-tier expiry; nil means time.Now.
	Clock   func() time.Time
	Metrics Metrics
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "cache"
	}
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.Expiration <= 0 {
		o.Expiration = DefaultExpiration
	}
	if o.MaxDiskConcurrency <= 0 {
		o.MaxDiskConcurrency = DefaultMaxDiskConcurrency
	}
	return o
}

// TwoLevelCache keeps decoded values in a MemoryLRU and their encoded form in
// a Store. Put writes through to the store before returning.
type TwoLevelCache[V any] struct {
	name    string
	memory  *MemoryLRU[string, V]
	store   Store
	codec   Codec[V]
	diskSem *semaphore.Weighted
	metrics Metrics
	logger  zerolog.Logger

	// storeMu is held shared for each store operation and exclusively by retire.
	storeMu sync.RWMutex
	retired bool
}

// NewTwoLevelCache creates a cache over store. A nil store gives a memory-only cache.
func NewTwoLevelCache[V any](opts Options, store Store, codec Codec[V], logger zerolog.Logger) (*TwoLevelCache[V], error) {
	if codec == nil {
		return nil, errors.New("codec cannot be nil")
	}
	opts = opts.withDefaults()
	memory, err := NewMemoryLRU[string, V](opts.Capacity, opts.Expiration, opts.Clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory tier: %w", err)
	}
	return &TwoLevelCache[V]{
		name:    opts.Name,
		memory:  memory,
		store:   store,
		codec:   codec,
		diskSem: semaphore.NewWeighted(int64(opts.MaxDiskConcurrency)),
		metrics: opts.Metrics,
		logger:  logger.With().Str("component", "TwoLevelCache").Str("cache", opts.Name).Logger(),
	}, nil
}

// NewGraphicCache creates a TwoLevelCache of decoded graphics.
func NewGraphicCache(opts Options, store Store, logger zerolog.Logger) (*TwoLevelCache[graphic.Graphic], error) {
	return NewTwoLevelCache[graphic.Graphic](opts, store, GraphicCodec{}, logger)
}

// NewRawByteCache creates a TwoLevelCache of undecoded payloads.
func NewRawByteCache(opts Options, store Store, logger zerolog.Logger) (*TwoLevelCache[[]byte], error) {
	return NewTwoLevelCache[[]byte](opts, store, RawCodec{}, logger)
}

// Get returns the value from memory, or loads it from the store and promotes
// it into memory. Store and decode failures read as a miss.
func (c *TwoLevelCache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	if v, ok := c.memory.Get(key); ok {
		recordHit(c.metrics, c.name, TierMemory)
		return v, true
	}
	if c.store == nil {
		recordMiss(c.metrics, c.name)
		return zero, false
	}

	data, err := c.readStore(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, errStoreRetired) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Store read failed, treating as miss.")
		}
		recordMiss(c.metrics, c.name)
		return zero, false
	}

	v, err := c.codec.Decode(data)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Stored entry could not be decoded, treating as miss.")
		recordMiss(c.metrics, c.name)
		return zero, false
	}

	c.insertMemory(key, v)
	recordHit(c.metrics, c.name, TierStore)
	c.logger.Debug().Str("key", key).Msg("Promoted entry from store to memory.")
	return v, true
}

// GetFromMemory returns the value from the memory tier, refreshing its
// recency. A miss is not counted since the caller usually falls back to Get.
func (c *TwoLevelCache[V]) GetFromMemory(key string) (V, bool) {
	v, ok := c.memory.Get(key)
	if ok {
		recordHit(c.metrics, c.name, TierMemory)
	}
	return v, ok
}

// Put inserts into memory, evicting the least recently used entry if full,
// then encodes and writes the value to the store. Write failures are logged
// and counted only.
func (c *TwoLevelCache[V]) Put(ctx context.Context, key string, value V) {
	c.insertMemory(key, value)
	if c.store == nil {
		return
	}

	data, err := c.codec.Encode(value)
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("Failed to encode value for store.")
		recordStoreWriteFailure(c.metrics, c.name)
		return
	}
	if err := c.writeStore(ctx, key, data); err != nil {
		if errors.Is(err, errStoreRetired) {
			c.logger.Debug().Str("key", key).Msg("Store retired, value kept in memory only.")
			return
		}
		c.logger.Error().Err(err).Str("key", key).Msg("Failed to write value to store.")
		recordStoreWriteFailure(c.metrics, c.name)
	}
}

// ContainsKeyInMemory reports whether key is live in the memory tier.
func (c *TwoLevelCache[V]) ContainsKeyInMemory(key string) bool {
	return c.memory.Contains(key)
}

// Remove drops key from both tiers.
func (c *TwoLevelCache[V]) Remove(ctx context.Context, key string) error {
	c.memory.Remove(key)
	if c.store == nil {
		return nil
	}
	c.storeMu.RLock()
	defer c.storeMu.RUnlock()
	if c.retired {
		return nil
	}
	if err := c.diskSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.diskSem.Release(1)
	return c.store.Remove(ctx, FileNameForKey(key))
}

// ClearMemory empties the memory tier and leaves the store untouched.
func (c *TwoLevelCache[V]) ClearMemory() {
	c.memory.Clear()
}

// MemoryLen returns the number of entries held in memory.
func (c *TwoLevelCache[V]) MemoryLen() int {
	return c.memory.Len()
}

func (c *TwoLevelCache[V]) insertMemory(key string, value V) {
	if evicted, ok := c.memory.Put(key, value); ok {
		recordEviction(c.metrics, c.name)
		c.logger.Debug().Str("evicted_key", evicted).Msg("Evicted least recently used entry.")
	}
}

func (c *TwoLevelCache[V]) readStore(ctx context.Context, key string) ([]byte, error) {
	c.storeMu.RLock()
	defer c.storeMu.RUnlock()
	if c.retired {
		return nil, errStoreRetired
	}
	if err := c.diskSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.diskSem.Release(1)
	return c.store.Read(ctx, FileNameForKey(key))
}

func (c *TwoLevelCache[V]) writeStore(ctx context.Context, key string, data []byte) error {
	c.storeMu.RLock()
	defer c.storeMu.RUnlock()
	if c.retired {
		return errStoreRetired
	}
	if err := c.diskSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.diskSem.Release(1)
	return c.store.Write(ctx, FileNameForKey(key), data)
}

// retire waits for in-flight store operations, then closes the store. Later
// operations on this cache use the memory tier only.
func (c *TwoLevelCache[V]) retire() error {
	c.storeMu.Lock()
	if c.retired {
		c.storeMu.Unlock()
		return nil
	}
	c.retired = true
	c.storeMu.Unlock()
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
