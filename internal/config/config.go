// Package config loads the YAML configuration of the service.
//
// The file is located through CONFIG_PATH or, failing that, the --config
// flag. Any value in it may be overridden by the environment variable
// named in its env tag.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Cache backends understood by Cache.Backend.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config mirrors config/local.yaml. Fields tagged env-required must be
// present or loading fails.
type Config struct {
	// Env selects the log handler: "dev", "staging" or "prod".
	Env string `yaml:"env" env:"ENV" env-required:"true"`

	// StoragePath is the SQLite database file; created on first start.
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-required:"true"`

	// Seed loads demo courses (and, when the directory is down, demo
	// students) into an empty database at startup.
	Seed bool `yaml:"seed" env:"SEED" env-default:"false"`

	HTTPServer `yaml:"http_server"`
	Remote     Remote `yaml:"remote"`
	Cache      Cache  `yaml:"cache"`
}

// HTTPServer is the http_server section.
type HTTPServer struct {
	// Addr is the listen address, e.g. "localhost:8082".
	Addr string `yaml:"address" env:"HTTP_SERVER_ADDR" env-required:"true"`
}

// Remote configures the client of the external user directory.
type Remote struct {
	// BaseURL is scheme + host (+ optional port) of the directory service.
	BaseURL string `yaml:"base_url" env:"REMOTE_BASE_URL" env-required:"true"`

	// ResourcePath is prepended to every endpoint (listar, encontrar/{id}...).
	ResourcePath string `yaml:"resource_path" env:"REMOTE_RESOURCE_PATH" env-default:"/api/usuarios"`

	// Timeout bounds a single attempt, not the whole retry sequence.
	Timeout time.Duration `yaml:"timeout" env:"REMOTE_TIMEOUT" env-default:"10s"`

	// ProbeTimeout bounds the single availability probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"REMOTE_PROBE_TIMEOUT" env-default:"5s"`

	MaxAttempts    uint          `yaml:"max_attempts" env:"REMOTE_MAX_ATTEMPTS" env-default:"3"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"REMOTE_INITIAL_BACKOFF" env-default:"1s"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"REMOTE_MAX_BACKOFF" env-default:"8s"`
}

// Cache configures the read-through result cache.
type Cache struct {
	// Backend is "memory" (per-process) or "redis" (shared).
	Backend string `yaml:"backend" env:"CACHE_BACKEND" env-default:"memory"`

	// InvalidateOnWrite clears every cached result after a successful
	// create, update or delete. Off by default: cached reads may be stale
	// right after a write until the cache is cleared.
	InvalidateOnWrite bool `yaml:"invalidate_on_write" env:"CACHE_INVALIDATE_ON_WRITE" env-default:"false"`

	Redis Redis `yaml:"redis"`
}

// Redis holds connection settings for the redis cache backend.
type Redis struct {
	Addr     string `yaml:"address" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"students-api:cache:"`
}

// MustLoad resolves the config path and loads it, exiting the process on
// any failure.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")

	// fall back to --config=config/local.yaml
	if configPath == "" {
		flags := flag.String("config", "", "Path to the configuration YAML file")
		flag.Parse()
		configPath = *flags
	}

	if configPath == "" {
		log.Fatal("config path is not set: use --config flag or CONFIG_PATH env var")
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err.Error())
	}

	return cfg
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	// yaml first, then env overrides and env-default values
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Remote.MaxAttempts == 0 {
		return errors.New("remote.max_attempts must be at least 1")
	}

	if c.Remote.Timeout <= 0 || c.Remote.ProbeTimeout <= 0 {
		return errors.New("remote timeouts must be positive")
	}

	return nil
}
