package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for propbase-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional session store backend)
	Redis RedisConfig `yaml:"redis"`

	// Parser pipeline configuration
	Parser ParserConfig `yaml:"parser"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"propbase"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"propbase_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds Redis connection settings. Leaving Host empty
// selects the in-memory session store instead.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// ParserConfig holds tunables for the ingestion pipeline.
type ParserConfig struct {
	// SessionTTLMinutes is how long an unconfirmed mapping session
	// stays retrievable before it expires.
	SessionTTLMinutes int `yaml:"session_ttl_minutes" env:"PARSER_SESSION_TTL_MINUTES" env-default:"60"`
	// SweepIntervalSeconds is how often the in-memory session store
	// evicts expired sessions.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" env:"PARSER_SWEEP_INTERVAL_SECONDS" env-default:"60"`
	// SyncParseRowLimit is the largest grid parsed inline in the
	// request; anything bigger goes through the work queue.
	SyncParseRowLimit int `yaml:"sync_parse_row_limit" env:"PARSER_SYNC_PARSE_ROW_LIMIT" env-default:"2000"`
	// MaxUploadBytes caps uploaded price-list files.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"PARSER_MAX_UPLOAD_BYTES" env-default:"20971520"`
	// WorkerCount is the number of ingestion workers draining the queue.
	WorkerCount int `yaml:"worker_count" env:"PARSER_WORKER_COUNT" env-default:"2"`
	// ExchangeRatesUSD maps a currency code to its multiplier into USD,
	// e.g. THB:0.028. Prices in a currency missing from the table are
	// stored unconverted with a run warning.
	ExchangeRatesUSD map[string]float64 `yaml:"exchange_rates_usd" env:"PARSER_EXCHANGE_RATES_USD"`
}

// SessionTTL returns the session lifetime as a duration.
func (c *ParserConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// SweepInterval returns the expiry sweep cadence as a duration.
func (c *ParserConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
