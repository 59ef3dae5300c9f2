package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// StorageMode selects where the persistent tier lives.
type StorageMode string

const (
	StorageExternal StorageMode = "external"
	StorageInternal StorageMode = "internal"
)

// ParseStorageMode validates a configured storage mode.
func ParseStorageMode(s string) (StorageMode, error) {
	switch StorageMode(s) {
	case StorageExternal, StorageInternal:
		return StorageMode(s), nil
	default:
		return "", fmt.Errorf("unknown storage mode %q", s)
	}
}

// StoreFactory opens the persistent tier for a storage mode.
type StoreFactory func(mode StorageMode) (Store, error)

// Holder owns the current TwoLevelCache instance and rebuilds it when options
// or the storage mode change. Rebuilding starts with an empty memory tier;
// entries already written to any store are left alone.
type Holder[V any] struct {
	codec   Codec[V]
	factory StoreFactory
	base    zerolog.Logger
	logger  zerolog.Logger

	mu    sync.Mutex
	opts  Options
	mode  StorageMode
	cache *TwoLevelCache[V]
}

// NewHolder creates a holder. The cache itself is built on first use.
// A nil factory gives memory-only caches.
func NewHolder[V any](opts Options, mode StorageMode, factory StoreFactory, codec Codec[V], logger zerolog.Logger) (*Holder[V], error) {
	if codec == nil {
		return nil, errors.New("codec cannot be nil")
	}
	if mode == "" {
		mode = StorageExternal
	}
	return &Holder[V]{
		codec:   codec,
		factory: factory,
		base:    logger,
		logger:  logger.With().Str("component", "CacheHolder").Str("cache", opts.Name).Logger(),
		opts:    opts,
		mode:    mode,
	}, nil
}

// Cache returns the current cache, building it if needed.
func (h *Holder[V]) Cache() Cache[V] {
	return h.current()
}

// Current is Cache with the concrete type, for callers needing Remove or ClearMemory.
func (h *Holder[V]) Current() *TwoLevelCache[V] {
	return h.current()
}

// StorageMode returns the mode the current cache was built for.
func (h *Holder[V]) StorageMode() StorageMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}

// Regenerate rebuilds the cache with new options and retires the previous one.
func (h *Holder[V]) Regenerate(opts Options) {
	h.mu.Lock()
	h.opts = opts
	old := h.swapLocked()
	h.mu.Unlock()
	h.retire(old)
}

// SetStorageMode switches the persistent tier. It returns once store
// operations already running against the previous cache have finished and
// its store is closed. Callers still holding the previous cache keep working
// from its memory tier, but their writes are no longer persisted.
func (h *Holder[V]) SetStorageMode(mode StorageMode) {
	h.mu.Lock()
	if mode == h.mode && h.cache != nil {
		h.mu.Unlock()
		return
	}
	h.mode = mode
	old := h.swapLocked()
	h.mu.Unlock()
	h.retire(old)
}

// Close retires the current cache and closes its store.
func (h *Holder[V]) Close() error {
	h.mu.Lock()
	old := h.cache
	h.cache = nil
	h.mu.Unlock()
	if old == nil {
		return nil
	}
	return old.retire()
}

func (h *Holder[V]) current() *TwoLevelCache[V] {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cache == nil {
		h.buildLocked()
	}
	return h.cache
}

// swapLocked builds a replacement cache and returns the one it replaced.
func (h *Holder[V]) swapLocked() *TwoLevelCache[V] {
	old := h.cache
	h.buildLocked()
	return old
}

func (h *Holder[V]) retire(old *TwoLevelCache[V]) {
	if old == nil {
		return
	}
	if err := old.retire(); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to close previous store.")
	}
}

// buildLocked must be called with the mutex held.
func (h *Holder[V]) buildLocked() {
	var store Store
	if h.factory != nil {
		s, err := h.factory(h.mode)
		if err != nil {
			h.logger.Error().Err(err).Str("storage_mode", string(h.mode)).Msg("Failed to open store, falling back to memory only.")
		} else {
			store = s
		}
	}

	c, err := NewTwoLevelCache[V](h.opts, store, h.codec, h.base)
	if err != nil {
		// Options are normalised by withDefaults and the codec is checked in NewHolder.
		panic(fmt.Sprintf("cache holder misconfigured: %v", err))
	}
	h.cache = c
	h.logger.Info().
		Str("storage_mode", string(h.mode)).
		Bool("persistent", store != nil).
		Msg("Cache built.")
}
