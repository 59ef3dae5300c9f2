package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/rs/zerolog"
)

// GCSStoreConfig holds configuration specific to the GCS store.
type GCSStoreConfig struct {
	BucketName   string
	ObjectPrefix string
	CacheTTL     time.Duration
}

// GCSStore is a persistent tier that keeps one object per cache key in a bucket.
type GCSStore struct {
	client GCSClient
	config GCSStoreConfig
	now    func() time.Time
	logger zerolog.Logger
}

// NewGCSStore creates a new store configured for Google Cloud Storage.
// A nil clock means time.Now.
func NewGCSStore(gcsClient GCSClient, config GCSStoreConfig, now func() time.Time, logger zerolog.Logger) (*GCSStore, error) {
	if gcsClient == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	if now == nil {
		now = time.Now
	}
	return &GCSStore{
		client: gcsClient,
		config: config,
		now:    now,
		logger: logger.With().Str("component", "GCSStore").Str("bucket", config.BucketName).Logger(),
	}, nil
}

// WithPrefix returns a store writing to the same bucket under another object prefix.
func (s *GCSStore) WithPrefix(prefix string) *GCSStore {
	cfg := s.config
	cfg.ObjectPrefix = prefix
	return &GCSStore{client: s.client, config: cfg, now: s.now, logger: s.logger}
}

func (s *GCSStore) object(name string) GCSObjectHandle {
	return s.client.Bucket(s.config.BucketName).Object(path.Join(s.config.ObjectPrefix, name))
}

// Read downloads the object, treating objects older than the TTL as absent.
func (s *GCSStore) Read(ctx context.Context, name string) ([]byte, error) {
	r, err := s.object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open GCS object %s: %w", name, err)
	}
	defer func() { _ = r.Close() }()

	if s.config.CacheTTL > 0 && s.now().Sub(r.LastModified()) >= s.config.CacheTTL {
		s.logger.Debug().Str("name", name).Msg("Stored object expired.")
		return nil, ErrNotFound
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", name, err)
	}
	return data, nil
}

// Write uploads data; the upload is finalised when the writer is closed.
func (s *GCSStore) Write(ctx context.Context, name string, data []byte) error {
	w := s.object(name).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write GCS object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS object writer for %s: %w", name, err)
	}
	s.logger.Debug().Str("name", name).Int("bytes_written", len(data)).Msg("Stored object in GCS.")
	return nil
}

// Remove deletes the object.
func (s *GCSStore) Remove(ctx context.Context, name string) error {
	if err := s.object(name).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %s: %w", name, err)
	}
	return nil
}

// Close is a no-op as the storage client's lifecycle is managed externally.
func (s *GCSStore) Close() error {
	return nil
}
