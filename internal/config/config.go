// Package config provides centralized configuration management for the
// ingestion service. Settings come from config.properties / the environment
// with sensible defaults, and are validated on startup to fail fast on
// misconfiguration.
package config

import (
	"fmt"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Load     LoadConfig
	AML      AMLConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings for the upload surface.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing a response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds the AML schema connection settings.
// The discrete DB_* variables mirror the upstream deployment environment.
type DatabaseConfig struct {
	// Host is the database server host (required)
	Host string `env:"DB_HOST" required:"true"`

	// Port is the database server port (default: 5432)
	Port int `env:"DB_PORT" default:"5432"`

	// Name is the database name (required)
	Name string `env:"DB_NAME" required:"true"`

	// User is the database user (required)
	User string `env:"DB_USER" required:"true"`

	// Password is the database password
	Password string `env:"DB_PASSWORD"`

	// ConnectTimeout is the dial timeout for new connections (default: 10s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"10s"`

	// ConnectionTimeout is the acquire timeout when the pool is exhausted (default: 30s)
	ConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT" default:"30s"`

	// MaxConns is the pool ceiling. The transaction loader sizes its worker
	// fan-out from the pool, so this must stay >= 32 (default: 32).
	MaxConns int `env:"DB_MAX_CONNS" default:"32"`

	// MinConns is the number of connections kept open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// LockTimeout is the per-session lock-wait ceiling (default: 50s)
	LockTimeout time.Duration `env:"DB_LOCK_TIMEOUT" default:"50s"`
}

// LoadConfig holds file-load processing settings.
type LoadConfig struct {
	// MaxFileSize is the maximum allowed upload size in bytes (default: 200MB)
	MaxFileSize int64 `env:"LOAD_MAX_FILE_SIZE" default:"209715200"`

	// MaxConcurrent is the maximum number of parallel file loads (default: 4)
	MaxConcurrent int `env:"LOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a load slot (default: 30s)
	MaxWaitTime time.Duration `env:"LOAD_MAX_WAIT_TIME" default:"30s"`

	// ChunkSize is the number of rows per chunk; a chunk is the unit of
	// commit and of parallel dispatch (default: 5000)
	ChunkSize int `env:"CHUNK_SIZE" default:"5000"`

	// TransactionChunkSize is the smaller chunk used by the transaction
	// loader's worker fan-out (default: 1000)
	TransactionChunkSize int `env:"TRANSACTION_CHUNK_SIZE" default:"1000"`

	// Timeout is the maximum duration for a single file load (default: 30m)
	Timeout time.Duration `env:"LOAD_TIMEOUT" default:"30m"`

	// AllowDuplicates skips the duplicate natural-key pre-check when true
	// (default: false)
	AllowDuplicates bool `env:"LOAD_ALLOW_DUPLICATES" default:"false"`

	// TouchExistingRelationships re-stamps update_date on relationships that
	// already exist when reconciling. Off by default to avoid replication
	// churn on large batches.
	TouchExistingRelationships bool `env:"LOAD_TOUCH_EXISTING_RELATIONSHIPS" default:"false"`
}

// AMLConfig controls the downstream detection-engine hook.
type AMLConfig struct {
	// RunRulesTransactor enables the post-batch AML rules invocation (default: false)
	RunRulesTransactor bool `env:"RUN_AML_RULES_TRANSACTOR" default:"false"`

	// RulesURL is the detection engine endpoint invoked after a successful
	// transaction batch
	RulesURL string `env:"AML_RULES_URL"`

	// RulesTimeout caps each hook invocation (default: 60s)
	RulesTimeout time.Duration `env:"AML_RULES_TIMEOUT" default:"60s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// Dir overrides the log directory search order when set
	Dir string `env:"LOG_DIR"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// URL renders the pgx connection string from the discrete DB_* settings.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=%d",
		c.User, c.Password, c.Host, c.Port, c.Name,
		int(c.ConnectTimeout.Seconds()),
	)
}
