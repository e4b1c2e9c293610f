// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Identity IdentityConfig
	Mail     MailConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 15m,
	// long enough for a full paced batch to complete synchronously)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"15m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// IdentityConfig holds settings for the external identity provider.
type IdentityConfig struct {
	// BaseURL is the identity provider API root (default: Clerk's v1 API)
	BaseURL string `env:"IDENTITY_BASE_URL" default:"https://api.clerk.com/v1"`

	// SecretKey is the bearer credential for the provider API (required).
	// Its absence is a startup error, never a per-row error.
	SecretKey string `env:"IDENTITY_SECRET_KEY" envAlt:"CLERK_SECRET_KEY" required:"true"`

	// Timeout bounds a single provider API call (default: 15s)
	Timeout time.Duration `env:"IDENTITY_TIMEOUT" default:"15s"`
}

// MailConfig holds SMTP transport settings.
type MailConfig struct {
	// Host is the SMTP server hostname (required)
	Host string `env:"SMTP_HOST" required:"true"`

	// Port is the SMTP server port (default: 587)
	Port int `env:"SMTP_PORT" default:"587"`

	// Username authenticates against the SMTP server
	Username string `env:"SMTP_USERNAME"`

	// Password authenticates against the SMTP server
	Password string `env:"SMTP_PASSWORD" envAlt:"PASS"`

	// From is the sender address on all outgoing mail (required)
	From string `env:"MAIL_FROM" required:"true"`

	// OperatorEmail receives the batch summary and credentials digest.
	// Defaults to From when empty.
	OperatorEmail string `env:"MAIL_OPERATOR"`

	// StakeholderEmail receives the new-accounts digest. Disabled when empty.
	StakeholderEmail string `env:"MAIL_STAKEHOLDER"`
}

// ImportConfig holds batch import processing settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed workbook size in bytes (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// PacingInterval is the number of rows processed between pacing pauses (default: 10)
	PacingInterval int `env:"IMPORT_PACING_INTERVAL" default:"10"`

	// PacingDelay is the pause inserted after each pacing interval (default: 700ms).
	// Keeps the batch under the identity provider's rate limit.
	PacingDelay time.Duration `env:"IMPORT_PACING_DELAY" default:"700ms"`

	// EmailRetryAttempts is the number of welcome-mail delivery attempts (default: 3)
	EmailRetryAttempts int `env:"IMPORT_EMAIL_RETRY_ATTEMPTS" default:"3"`

	// EmailRetryDelay is the pause between welcome-mail attempts (default: 2s)
	EmailRetryDelay time.Duration `env:"IMPORT_EMAIL_RETRY_DELAY" default:"2s"`

	// Timeout is the maximum duration for processing a single batch (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 60)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"60"`

	// ImportLimit is requests per minute for the import endpoint (default: 5)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"5"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// OperatorAddr returns the digest recipient, falling back to the sender.
func (c *MailConfig) OperatorAddr() string {
	if c.OperatorEmail != "" {
		return c.OperatorEmail
	}
	return c.From
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
