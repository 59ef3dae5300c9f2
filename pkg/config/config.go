// Package config loads graphicfetch settings from defaults, an optional YAML
// file, and GRAPHICFETCH_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// GRAPHICFETCH_CACHE_CAPACITY=100.
const EnvPrefix = "GRAPHICFETCH"

// Config is the complete application configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Loader  LoaderConfig  `mapstructure:"loader" yaml:"loader"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string `mapstructure:"level" validate:"required,oneof=trace debug info warn error" yaml:"level"`
	// Format is console (human readable) or json.
	Format string `mapstructure:"format" validate:"required,oneof=console json" yaml:"format"`
}

// CacheConfig mirrors the user-facing cache preferences: how many decoded
// images stay in memory, how long entries live, and where they are persisted.
type CacheConfig struct {
	Capacity          int    `mapstructure:"capacity" validate:"gt=0" yaml:"capacity"`
	ExpirationMinutes int    `mapstructure:"expiration_minutes" validate:"gt=0" yaml:"expiration_minutes"`
	StorageMode       string `mapstructure:"storage_mode" validate:"oneof=external internal" yaml:"storage_mode"`
	// Backend selects the persistent tier implementation.
	Backend            string `mapstructure:"backend" validate:"oneof=file redis gcs none" yaml:"backend"`
	ExternalDir        string `mapstructure:"external_dir" validate:"required_if=Backend file" yaml:"external_dir"`
	InternalDir        string `mapstructure:"internal_dir" validate:"required_if=Backend file" yaml:"internal_dir"`
	MaxDiskConcurrency int    `mapstructure:"max_disk_concurrency" validate:"gt=0" yaml:"max_disk_concurrency"`

	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
	GCS   GCSConfig   `mapstructure:"gcs" yaml:"gcs"`
}

// Expiration returns ExpirationMinutes as a duration.
func (c CacheConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationMinutes) * time.Minute
}

// RedisConfig configures the Redis persistent tier.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" validate:"gte=0" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// GCSConfig configures the Cloud Storage persistent tier.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	// Endpoint overrides the API endpoint, e.g. for a local emulator.
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
}

// LoaderConfig bounds network concurrency.
type LoaderConfig struct {
	MaxConcurrentFetches int `mapstructure:"max_concurrent_fetches" validate:"gt=0" yaml:"max_concurrent_fetches"`
}

// FetcherConfig controls single HTTP retrievals.
type FetcherConfig struct {
	MaxPayloadBytes int64         `mapstructure:"max_payload_bytes" validate:"gt=0" yaml:"max_payload_bytes"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0" yaml:"timeout"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	Retries         int           `mapstructure:"retries" validate:"gte=0" yaml:"retries"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	HTTPPort string `mapstructure:"http_port" validate:"required" yaml:"http_port"`
}

// Load reads configuration. An empty configPath searches for config.yaml in
// the working directory and the user config directory, and finding none is not
// an error. An explicit configPath must exist.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)
	setDefaults(v)

	if _, err := readConfigFile(v, configPath != ""); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "graphicfetch"))
	}
}

// readConfigFile reports whether a file was read. Not finding one is fine
// unless the path was given explicitly.
func readConfigFile(v *viper.Viper, explicit bool) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && (errors.As(err, &notFound) || os.IsNotExist(err)) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// Validate checks struct constraints.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	switch cfg.Cache.Backend {
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required for the redis backend")
		}
	case "gcs":
		if cfg.Cache.GCS.Bucket == "" {
			return errors.New("cache.gcs.bucket is required for the gcs backend")
		}
	}
	return nil
}
