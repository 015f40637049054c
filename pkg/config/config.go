// Package config loads the YAML configuration shared by the memocache binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/illmade-knight/go-memocache/pkg/cache"
	"github.com/illmade-knight/go-memocache/pkg/source"
	"gopkg.in/yaml.v3"
)

// Backend names accepted in cache.backend.
const (
	BackendSnapshot  = "snapshot"
	BackendGCS       = "gcs"
	BackendSQLite    = "sqlite"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Environment variables that override the file.
const (
	EnvLogLevel = "MEMOCACHE_LOG_LEVEL"
	EnvBackend  = "MEMOCACHE_BACKEND"
	EnvPath     = "MEMOCACHE_PATH"
)

// DefaultCachePath is where the snapshot lives unless configured otherwise.
const DefaultCachePath = "/tmp/app_paths.json"

// ErrUnknownBackend is returned by Validate for an unrecognised cache.backend.
var ErrUnknownBackend = errors.New("unknown cache backend")

// BaseConfig holds common configuration fields.
type BaseConfig struct {
	LogLevel        string `yaml:"log_level"`
	HTTPPort        string `yaml:"http_port"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// GCSConfig locates the snapshot object for the gcs backend.
type GCSConfig struct {
	Bucket string `yaml:"bucket"`
	Object string `yaml:"object"`
}

// CacheConfig selects and configures the store.
type CacheConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	ValueCodec string `yaml:"value_codec"`
	// LRUSize puts an in-memory front tier of this many entries over per-key backends.
	LRUSize int `yaml:"lru_size"`

	Redis     cache.RedisConfig     `yaml:"redis"`
	Firestore cache.FirestoreConfig `yaml:"firestore"`
	GCS       GCSConfig             `yaml:"gcs"`
}

// Config is the full configuration file.
type Config struct {
	BaseConfig `yaml:",inline"`

	Cache  CacheConfig          `yaml:"cache"`
	Source source.CommandConfig `yaml:"source"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		BaseConfig: BaseConfig{LogLevel: "info", HTTPPort: ":8080"},
		Cache: CacheConfig{
			Backend:    BackendSnapshot,
			Path:       DefaultCachePath,
			ValueCodec: "json",
			Firestore:  cache.FirestoreConfig{CollectionName: "memocache"},
		},
		Source: source.CommandConfig{Timeout: 10 * time.Second},
	}
}

// Load reads the YAML file at path over the defaults, then applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookupEnv func(string) (string, bool)) {
	if v, ok := lookupEnv(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookupEnv(EnvBackend); ok && v != "" {
		c.Cache.Backend = v
	}
	if v, ok := lookupEnv(EnvPath); ok && v != "" {
		c.Cache.Path = v
	}
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	if _, err := cache.CodecByName(c.Cache.ValueCodec); err != nil {
		return err
	}
	if c.Cache.LRUSize < 0 {
		return fmt.Errorf("lru_size must be >= 0, got %d", c.Cache.LRUSize)
	}
	if c.Source.Timeout < 0 {
		return fmt.Errorf("source timeout must be >= 0, got %s", c.Source.Timeout)
	}

	switch c.Cache.Backend {
	case BackendSnapshot, BackendSQLite:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the %s backend", c.Cache.Backend)
		}
	case BackendGCS:
		if c.Cache.GCS.Bucket == "" || c.Cache.GCS.Object == "" {
			return errors.New("cache.gcs.bucket and cache.gcs.object are required for the gcs backend")
		}
	case BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required for the redis backend")
		}
	case BackendFirestore:
		if c.ProjectID == "" || c.Cache.Firestore.CollectionName == "" {
			return errors.New("project_id and cache.firestore.collection are required for the firestore backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Cache.Backend)
	}
	return nil
}
