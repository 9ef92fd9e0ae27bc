// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/venlo/procflow/internal/observability"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Engine        EngineConfig        `yaml:"engine"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// DatabaseConfig describes Postgres persistence settings. When disabled the
// service runs on in-memory stores.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DSNEnv   string `yaml:"dsn_env"`
	MaxConns int32  `yaml:"max_conns"`
}

// RedisConfig describes the outbound event bridge settings.
type RedisConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// EngineConfig describes instance engine settings.
type EngineConfig struct {
	InstanceNumberPrefix string `yaml:"instance_number_prefix"`
	DefaultMaxRetries    int    `yaml:"default_max_retries"`
}

// DefinitionsConfig describes where to find definition YAML files.
type DefinitionsConfig struct {
	Directories []string `yaml:"directories"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string                      `yaml:"log_level"`
	Tracing  observability.TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig               `yaml:"metrics"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Database: DatabaseConfig{
			DSNEnv:   "PROCFLOW_DATABASE_DSN",
			MaxConns: 25,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			ChannelPrefix: "procflow",
		},
		Engine: EngineConfig{
			InstanceNumberPrefix: "WF",
			DefaultMaxRetries:    3,
		},
		Definitions: DefinitionsConfig{
			Directories: []string{"/definitions"},
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: observability.TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields. An empty path loads defaults plus
// environment overrides only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Database.Enabled && os.Getenv(c.Database.DSNEnv) == "" {
		errs = append(errs, fmt.Sprintf("database enabled but %s is not set", c.Database.DSNEnv))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis is enabled")
	}
	if c.Engine.DefaultMaxRetries < 0 {
		errs = append(errs, "engine.default_max_retries must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the Postgres connection string from the configured env var.
func (c *DatabaseConfig) DSN() string {
	return os.Getenv(c.DSNEnv)
}

// applyEnvOverrides reads PROCFLOW_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROCFLOW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PROCFLOW_DATABASE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Database.Enabled = enabled
		}
	}
	if v := os.Getenv("PROCFLOW_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("PROCFLOW_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PROCFLOW_INSTANCE_NUMBER_PREFIX"); v != "" {
		cfg.Engine.InstanceNumberPrefix = v
	}
	if v := os.Getenv("PROCFLOW_DEFINITIONS_DIRECTORIES"); v != "" {
		cfg.Definitions.Directories = strings.Split(v, ",")
	}
	if v := os.Getenv("PROCFLOW_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
