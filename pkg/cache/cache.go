// Package cache provides a two-level write-through cache: a bounded LRU memory
// tier in front of a persistent store (local files, Redis or GCS). Values are
// kept in object form in memory and in encoded form in the store.
package cache

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by a Store when a name is absent or has expired.
var ErrNotFound = errors.New("not found in store")

// Cache is the contract the loader needs from a two-level cache.
type Cache[V any] interface {
	// Get returns the value from memory, falling back to the persistent tier.
	Get(ctx context.Context, key string) (V, bool)
	// Put stores a value in memory and writes it through to the persistent tier.
	Put(ctx context.Context, key string, value V)
	// ContainsKeyInMemory tests the memory tier only and never touches the store.
	ContainsKeyInMemory(key string) bool
	// GetFromMemory returns the value only if the memory tier holds it. It
	// never touches the store, so it is safe on a caller's goroutine.
	GetFromMemory(key string) (V, bool)
}

// Store is the persistent tier. Names come from FileNameForKey.
type Store interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Remove(ctx context.Context, name string) error
	// Closer is included for implementations that manage network connections.
	io.Closer
}

// Codec converts cached values to and from their stored byte form.
type Codec[V any] interface {
	Encode(value V) ([]byte, error)
	Decode(data []byte) (V, error)
}
