package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-graphicfetch/pkg/cache"
	"github.com/illmade-knight/go-graphicfetch/pkg/config"
	"github.com/illmade-knight/go-graphicfetch/pkg/fetcher"
	"github.com/illmade-knight/go-graphicfetch/pkg/graphic"
	"github.com/illmade-knight/go-graphicfetch/pkg/loader"
	"github.com/illmade-knight/go-graphicfetch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Cache names double as store sub-directories and key prefixes.
const (
	graphicCacheName = "graphics"
	rawCacheName     = "raw"
)

// newLogger builds the root logger from configuration.
func newLogger(cfg config.LoggingConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// app holds everything a command needs, built once from configuration.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	fetcher  *fetcher.Fetcher
	graphics *cache.Holder[graphic.Graphic]
	raw      *cache.Holder[[]byte]
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	httpClient := &http.Client{Timeout: cfg.Fetcher.Timeout}
	a.closers = append(a.closers, func() error {
		httpClient.CloseIdleConnections()
		return nil
	})
	f, err := fetcher.New(httpClient, fetcher.Config{
		MaxPayloadBytes: cfg.Fetcher.MaxPayloadBytes,
		UserAgent:       cfg.Fetcher.UserAgent,
		Retries:         cfg.Fetcher.Retries,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.fetcher = f

	var gcsClient cache.GCSClient
	if cfg.Cache.Backend == "gcs" {
		client, err := newStorageClient(ctx, cfg.Cache.GCS)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		gcsClient = cache.NewGCSClientAdapter(client)
	}

	mode, err := cache.ParseStorageMode(cfg.Cache.StorageMode)
	if err != nil {
		return nil, err
	}
	cacheMetrics := metrics.NewCacheMetrics(a.registry)
	opts := func(name string) cache.Options {
		return cache.Options{
			Name:               name,
			Capacity:           cfg.Cache.Capacity,
			Expiration:         cfg.Cache.Expiration(),
			MaxDiskConcurrency: cfg.Cache.MaxDiskConcurrency,
			Metrics:            cacheMetrics,
		}
	}

	a.graphics, err = cache.NewHolder[graphic.Graphic](opts(graphicCacheName), mode,
		newStoreFactory(ctx, cfg.Cache, graphicCacheName, gcsClient, logger), cache.GraphicCodec{}, logger)
	if err != nil {
		return nil, err
	}
	a.raw, err = cache.NewHolder[[]byte](opts(rawCacheName), mode,
		newStoreFactory(ctx, cfg.Cache, rawCacheName, gcsClient, logger), cache.RawCodec{}, logger)
	if err != nil {
		return nil, err
	}
	// Holders close their stores before any shared client goes away.
	a.closers = append([]func() error{a.graphics.Close, a.raw.Close}, a.closers...)
	return a, nil
}

func (a *app) loaderOptions() []loader.Option {
	return []loader.Option{loader.WithMetrics(metrics.NewLoaderMetrics(a.registry))}
}

func (a *app) graphicLoader() (*loader.Loader[graphic.Graphic], error) {
	return loader.NewGraphicLoader(a.graphics, a.fetcher, loader.Config{MaxConcurrent: a.cfg.Loader.MaxConcurrentFetches}, a.logger, a.loaderOptions()...)
}

func (a *app) rawLoader() (*loader.Loader[[]byte], error) {
	return loader.NewRawLoader(a.raw, a.fetcher, loader.Config{MaxConcurrent: a.cfg.Loader.MaxConcurrentFetches}, a.logger, a.loaderOptions()...)
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newStorageClient(ctx context.Context, cfg config.GCSConfig) (*storage.Client, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return client, nil
}

// newStoreFactory returns the persistent tier for one cache. Each storage
// mode gets its own directory, key prefix or object prefix. A nil factory
// means memory only.
func newStoreFactory(ctx context.Context, cfg config.CacheConfig, name string, gcsClient cache.GCSClient, logger zerolog.Logger) cache.StoreFactory {
	ttl := cfg.Expiration()
	switch cfg.Backend {
	case "file":
		return func(mode cache.StorageMode) (cache.Store, error) {
			dir := cfg.ExternalDir
			if mode == cache.StorageInternal {
				dir = cfg.InternalDir
			}
			return cache.NewFileStore(filepath.Join(dir, name), ttl, nil, logger)
		}
	case "redis":
		return func(mode cache.StorageMode) (cache.Store, error) {
			return cache.NewRedisStore(ctx, &cache.RedisConfig{
				Addr:      cfg.Redis.Addr,
				Password:  cfg.Redis.Password,
				DB:        cfg.Redis.DB,
				KeyPrefix: fmt.Sprintf("%s%s:%s:", cfg.Redis.KeyPrefix, name, mode),
				CacheTTL:  ttl,
			}, logger)
		}
	case "gcs":
		base, err := cache.NewGCSStore(gcsClient, cache.GCSStoreConfig{BucketName: cfg.GCS.Bucket, CacheTTL: ttl}, nil, logger)
		return func(mode cache.StorageMode) (cache.Store, error) {
			if err != nil {
				return nil, err
			}
			return base.WithPrefix(path.Join(cfg.GCS.Prefix, name, string(mode))), nil
		}
	default:
		return nil
	}
}

// bootstrap loads configuration and builds the shared application state.
func bootstrap(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Logging, logOut)
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Str("backend", cfg.Cache.Backend).
		Str("storage_mode", cfg.Cache.StorageMode).
		Int("capacity", cfg.Cache.Capacity).
		Msg("Configuration loaded.")
	return newApp(ctx, cfg, logger)
}
