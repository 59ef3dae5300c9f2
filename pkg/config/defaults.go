package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultCapacity             = 50
	DefaultExpirationMinutes    = 30 * 24 * 60
	DefaultStorageMode          = "external"
	DefaultBackend              = "file"
	DefaultMaxDiskConcurrency   = 2
	DefaultMaxConcurrentFetches = 4
	DefaultMaxPayloadBytes      = 20 * 1024 * 1024
	DefaultFetchTimeout         = 30 * time.Second
	DefaultUserAgent            = "graphicfetch/1.0"
	DefaultHTTPPort             = ":8080"
	DefaultRedisKeyPrefix       = "graphicfetch:"
)

// setDefaults registers every key with viper so that environment variables
// are honoured even for keys absent from the config file.
func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("cache.capacity", d.Cache.Capacity)
	v.SetDefault("cache.expiration_minutes", d.Cache.ExpirationMinutes)
	v.SetDefault("cache.storage_mode", d.Cache.StorageMode)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.external_dir", d.Cache.ExternalDir)
	v.SetDefault("cache.internal_dir", d.Cache.InternalDir)
	v.SetDefault("cache.max_disk_concurrency", d.Cache.MaxDiskConcurrency)
	v.SetDefault("cache.redis.addr", d.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", d.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", d.Cache.Redis.DB)
	v.SetDefault("cache.redis.key_prefix", d.Cache.Redis.KeyPrefix)
	v.SetDefault("cache.gcs.bucket", d.Cache.GCS.Bucket)
	v.SetDefault("cache.gcs.prefix", d.Cache.GCS.Prefix)
	v.SetDefault("cache.gcs.endpoint", d.Cache.GCS.Endpoint)
	v.SetDefault("cache.gcs.credentials_file", d.Cache.GCS.CredentialsFile)
	v.SetDefault("loader.max_concurrent_fetches", d.Loader.MaxConcurrentFetches)
	v.SetDefault("fetcher.max_payload_bytes", d.Fetcher.MaxPayloadBytes)
	v.SetDefault("fetcher.timeout", d.Fetcher.Timeout)
	v.SetDefault("fetcher.user_agent", d.Fetcher.UserAgent)
	v.SetDefault("fetcher.retries", d.Fetcher.Retries)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
}

// GetDefaultConfig returns a fully populated default configuration.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields. Explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyCacheDefaults(&cfg.Cache)
	if cfg.Loader.MaxConcurrentFetches == 0 {
		cfg.Loader.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}
	applyFetcherDefaults(&cfg.Fetcher)
	if cfg.Server.HTTPPort == "" {
		cfg.Server.HTTPPort = DefaultHTTPPort
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	cfg.Level = strings.ToLower(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "console"
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.ExpirationMinutes == 0 {
		cfg.ExpirationMinutes = DefaultExpirationMinutes
	}
	if cfg.StorageMode == "" {
		cfg.StorageMode = DefaultStorageMode
	}
	if cfg.Backend == "" {
		cfg.Backend = DefaultBackend
	}
	if cfg.ExternalDir == "" || cfg.InternalDir == "" {
		base := defaultCacheRoot()
		if cfg.ExternalDir == "" {
			cfg.ExternalDir = filepath.Join(base, "external")
		}
		if cfg.InternalDir == "" {
			cfg.InternalDir = filepath.Join(base, "internal")
		}
	}
	if cfg.MaxDiskConcurrency == 0 {
		cfg.MaxDiskConcurrency = DefaultMaxDiskConcurrency
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
}

func applyFetcherDefaults(cfg *FetcherConfig) {
	if cfg.MaxPayloadBytes == 0 {
		cfg.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
}

// defaultCacheRoot is the user cache directory, falling back to the temp dir.
func defaultCacheRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "graphicfetch")
	}
	return filepath.Join(os.TempDir(), "graphicfetch")
}
