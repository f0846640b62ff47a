// Package config is the daemon's configuration surface: one YAML file,
// loaded with environment-variable overrides, the way the teacher's own
// config.go loads JSON with env overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oriys/txgraph/internal/engine"
	"github.com/oriys/txgraph/internal/txtypes"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// DaemonConfig holds the health/metrics HTTP listener settings.
type DaemonConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// RegistryBackend selects which registry.Store implementation to construct.
type RegistryBackend string

const (
	RegistryMemory   RegistryBackend = "memory"
	RegistryRedis    RegistryBackend = "redis"
	RegistryPostgres RegistryBackend = "postgres"
)

// RegistryConfig selects and configures the Registry/Cursor backend.
type RegistryConfig struct {
	Backend     RegistryBackend `yaml:"backend"`
	RedisAddr   string          `yaml:"redis_addr"`
	RedisDB     int             `yaml:"redis_db"`
	PostgresDSN string          `yaml:"postgres_dsn"`
	KeyPrefix   string          `yaml:"key_prefix"`
}

// ArchiveConfig enables archiving raw fetched transactions to S3-compatible
// object storage.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
}

// Config is the central configuration struct, one per tailed program id.
type Config struct {
	ProgramID                 string             `yaml:"program_id"`
	CommitmentConfig          txtypes.Commitment `yaml:"commitment"`
	IsResyncEnabled           bool               `yaml:"resync_enabled"`
	ResyncDuration            time.Duration      `yaml:"resync_duration"`
	ResyncSignaturesChunkSize int                `yaml:"resync_signatures_chunk_size"`
	ResyncOrder               string             `yaml:"resync_order"` // "newest" | "historical"
	AttemptsCount             int                `yaml:"attempts_count"`
	AttemptTimeout            time.Duration      `yaml:"attempt_timeout"`
	PubsubEndpoint            string             `yaml:"pubsub_endpoint"`
	RPCEndpoint               string             `yaml:"rpc_endpoint"`

	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Daemon   DaemonConfig   `yaml:"daemon"`
	Registry RegistryConfig `yaml:"registry"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// DefaultConfig returns a Config with sensible defaults, populated the way
// the teacher's DefaultConfig seeds nested component defaults.
func DefaultConfig() *Config {
	return &Config{
		CommitmentConfig:          txtypes.CommitmentFinalized,
		ResyncDuration:            5 * time.Second,
		ResyncSignaturesChunkSize: 0,
		ResyncOrder:               "newest",
		AttemptsCount:             3,
		AttemptTimeout:            2 * time.Second,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "txgraph",
		},
		Daemon: DaemonConfig{
			HTTPAddr: ":9090",
		},
		Registry: RegistryConfig{
			Backend:   RegistryMemory,
			KeyPrefix: "txgraph:",
		},
	}
}

// LoadFromFile loads configuration from a YAML file, overlaying it onto
// DefaultConfig's defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config, the
// same TXGRAPH_-prefixed convention the teacher used for NOVA_-prefixed
// variables.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TXGRAPH_PROGRAM_ID"); v != "" {
		cfg.ProgramID = v
	}
	if v := os.Getenv("TXGRAPH_RPC_ENDPOINT"); v != "" {
		cfg.RPCEndpoint = v
	}
	if v := os.Getenv("TXGRAPH_PUBSUB_ENDPOINT"); v != "" {
		cfg.PubsubEndpoint = v
	}
	if v := os.Getenv("TXGRAPH_COMMITMENT"); v != "" {
		cfg.CommitmentConfig = txtypes.Commitment(v)
	}
	if v := os.Getenv("TXGRAPH_RESYNC_ENABLED"); v != "" {
		cfg.IsResyncEnabled = parseBool(v)
	}
	if v := os.Getenv("TXGRAPH_RESYNC_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ResyncDuration = d
		}
	}
	if v := os.Getenv("TXGRAPH_RESYNC_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ResyncSignaturesChunkSize = n
		}
	}
	if v := os.Getenv("TXGRAPH_RESYNC_ORDER"); v != "" {
		cfg.ResyncOrder = v
	}
	if v := os.Getenv("TXGRAPH_ATTEMPTS_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AttemptsCount = n
		}
	}
	if v := os.Getenv("TXGRAPH_ATTEMPT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AttemptTimeout = d
		}
	}

	if v := os.Getenv("TXGRAPH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TXGRAPH_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TXGRAPH_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("TXGRAPH_METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}
	if v := os.Getenv("TXGRAPH_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}

	if v := os.Getenv("TXGRAPH_REGISTRY_BACKEND"); v != "" {
		cfg.Registry.Backend = RegistryBackend(v)
	}
	if v := os.Getenv("TXGRAPH_REDIS_ADDR"); v != "" {
		cfg.Registry.RedisAddr = v
	}
	if v := os.Getenv("TXGRAPH_POSTGRES_DSN"); v != "" {
		cfg.Registry.PostgresDSN = v
	}

	if v := os.Getenv("TXGRAPH_ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = parseBool(v)
	}
	if v := os.Getenv("TXGRAPH_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
}

// EngineResyncOrder translates the textual ResyncOrder config value into
// engine.ResyncOrder.
func (c *Config) EngineResyncOrder() engine.ResyncOrder {
	if strings.EqualFold(c.ResyncOrder, "historical") {
		return engine.Historical
	}
	return engine.Newest
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
