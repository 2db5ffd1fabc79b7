// Package infra handles configuration loading and infrastructure wiring.
package infra

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/tdtp-steps/pkg/adapters"
	"github.com/ruslano69/tdtp-steps/pkg/audit"
	"github.com/ruslano69/tdtp-steps/pkg/brokers"
	"github.com/ruslano69/tdtp-steps/pkg/dispatch"
	"github.com/ruslano69/tdtp-steps/pkg/mercury"
	"github.com/ruslano69/tdtp-steps/pkg/resilience"
	"github.com/ruslano69/tdtp-steps/pkg/retry"
)

// Config is the top-level configuration structure for stepsrv.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Redis      RedisConfig       `yaml:"redis"` // catalog cache and process results
	Database   adapters.Config   `yaml:"database"`
	Catalog    CatalogConfig     `yaml:"catalog"`
	Executor   ExecutorConfig    `yaml:"executor"`
	Broker     brokers.Config    `yaml:"broker"`
	Breaker    resilience.Config `yaml:"breaker"` // guards publishes to the broker
	Dispatch   dispatch.Config   `yaml:"dispatch"`
	KeyService mercury.Config    `yaml:"key_service"` // per-process envelope keys; "local" in dev
	Consumer   ConsumerConfig    `yaml:"consumer"`
	Audit      audit.Config      `yaml:"audit"` // process audit trail; off when empty
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`          // default ":3100"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default 30s
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`     // host:port
	Password string `yaml:"password"` // empty = no auth
	DB       int    `yaml:"db"`       // 0-based
}

// CatalogConfig selects the table catalog source.
type CatalogConfig struct {
	StaticFile string        `yaml:"static_file"` // YAML catalog; empty = read the database schema
	Protected  []string      `yaml:"protected"`   // primary tables that steps may not drop
	CacheTTL   time.Duration `yaml:"cache_ttl"`   // default 10m
}

// ExecutorConfig controls local step execution.
type ExecutorConfig struct {
	Retry     retry.Config  `yaml:"retry"`
	ResultTTL time.Duration `yaml:"result_ttl"` // how long a process report stays in Redis; default 24h

	// AllowUnsafeSQL disables the statement check before execution.
	AllowUnsafeSQL bool `yaml:"allow_unsafe_sql"`
}

// ConsumerConfig enables the broker consumer that runs dispatched processes.
type ConsumerConfig struct {
	Enabled bool          `yaml:"enabled"`
	Backoff time.Duration `yaml:"backoff"` // pause after a broker error; default 2s
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":3100"
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Redis.Addr = "localhost:6379"
	cfg.Catalog.CacheTTL = 10 * time.Minute
	cfg.Executor.Retry = retry.ForSQL(3, 200*time.Millisecond)
	cfg.Executor.ResultTTL = 24 * time.Hour
	cfg.Broker.Type = "memory"
	cfg.Breaker = resilience.DefaultConfig("broker")
	cfg.Consumer.Backoff = 2 * time.Second
	return cfg
}

// LoadConfig reads the YAML config at path over the defaults.
// An empty path yields the defaults. Environment variables fill secrets
// that the file leaves empty.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = os.Getenv("STEPS_DATABASE_DSN")
	}
	if cfg.Dispatch.EncryptionKey == "" {
		cfg.Dispatch.EncryptionKey = os.Getenv("STEPS_ENCRYPTION_KEY")
	}
	if cfg.KeyService.ServerSecret == "" {
		cfg.KeyService.ServerSecret = os.Getenv("STEPS_KEY_SERVICE_SECRET")
	}
	if cfg.Redis.Password == "" {
		cfg.Redis.Password = os.Getenv("STEPS_REDIS_PASSWORD")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks the sections that have their own rules.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if err := c.Executor.Retry.Validate(); err != nil {
		return fmt.Errorf("executor.retry: %w", err)
	}
	if err := c.Breaker.Validate(); err != nil {
		return fmt.Errorf("breaker: %w", err)
	}
	if c.KeyService.Enabled() && !c.KeyService.Local() {
		if u, err := url.Parse(c.KeyService.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("key_service.url %q must be an http(s) url or \"local\"", c.KeyService.URL)
		}
	}
	if _, err := audit.ParseLevel(c.Audit.Level); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}
