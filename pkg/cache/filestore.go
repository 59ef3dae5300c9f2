package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FileStore keeps one file per cache key under a root directory.
type FileStore struct {
	root   string
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewFileStore creates the root directory if needed. Files older than ttl read
// as absent; a zero ttl disables expiry. A nil clock means time.Now.
func NewFileStore(root string, ttl time.Duration, now func() time.Time, logger zerolog.Logger) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("file store root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", root, err)
	}
	if now == nil {
		now = time.Now
	}
	return &FileStore{
		root:   root,
		ttl:    ttl,
		now:    now,
		logger: logger.With().Str("component", "FileStore").Str("root", root).Logger(),
	}, nil
}

// Root returns the directory the store writes into.
func (s *FileStore) Root() string {
	return s.root
}

// Read returns the file contents for name.
func (s *FileStore) Read(_ context.Context, name string) ([]byte, error) {
	p := filepath.Join(s.root, name)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	if s.ttl > 0 && s.now().Sub(info.ModTime()) >= s.ttl {
		s.logger.Debug().Str("name", name).Msg("Stored file expired, removing.")
		_ = os.Remove(p)
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// Write stores data atomically: it is written to a uniquely named temporary
// file first and renamed into place.
func (s *FileStore) Write(_ context.Context, name string, data []byte) error {
	p := filepath.Join(s.root, name)
	tmp := filepath.Join(s.root, fmt.Sprintf(".%s.%s.tmp", name, uuid.NewString()))

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", p, err)
	}
	return nil
}

// Remove deletes name. Removing an absent name is not an error.
func (s *FileStore) Remove(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(s.root, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
