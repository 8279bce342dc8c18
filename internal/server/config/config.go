// Package config handles configuration for the server component,
// including defaults, JSON overlay, environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"golang.org/x/crypto/bcrypt"
)

// EnvProduction is the AppEnv value that turns on TLS to the database by
// default and Secure session cookies.
const EnvProduction = "production"

// Config holds runtime settings for the authkeeper server.
//
// Fields:
//   - HTTPAddr / GRPCAddr: bind addresses for the HTTP API and the gRPC health endpoint.
//   - DatabaseDSN: PostgreSQL connection string (pgx). Required.
//   - DatabaseMaxConns: upper bound of the connection pool.
//   - DatabaseRequireSSL: force TLS to the database outside production.
//   - SessionTTL: lifetime of a session issued by register/login.
//   - BcryptCost: work factor for password hashes.
//   - LogLevel / LogBackend: "debug".."error"; "zerolog" or "slog".
//   - Tracing*: OTLP/HTTP trace export.
type Config struct {
	AppEnv             string        `env:"APP_ENV"`
	HTTPAddr           string        `env:"HTTP_ADDR"`
	GRPCAddr           string        `env:"GRPC_ADDR"`
	DatabaseDSN        string        `env:"DATABASE_URL"`
	DatabaseMaxConns   int           `env:"DATABASE_MAX_CONNS"`
	DatabaseRequireSSL bool          `env:"DATABASE_REQUIRE_SSL"`
	RunMigrations      bool          `env:"RUN_MIGRATIONS"`
	SessionTTL         time.Duration `env:"SESSION_TTL"`
	BcryptCost         int           `env:"BCRYPT_COST"`
	LogLevel           string        `env:"LOG_LEVEL"`
	LogBackend         string        `env:"LOG_BACKEND"`
	TracingEnabled     bool          `env:"TRACING_ENABLED"`
	TracingEndpoint    string        `env:"TRACING_ENDPOINT"`
	TracingSampleRate  float64       `env:"TRACING_SAMPLE_RATE"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

// LoadDefaults populates Config with development defaults. The DSN is left
// empty on purpose: it must come from the environment or a config file.
func (c *Config) LoadDefaults() {
	c.AppEnv = "development"
	c.HTTPAddr = ":8080"
	c.GRPCAddr = ":50051"
	c.DatabaseMaxConns = 20
	c.RunMigrations = true
	c.SessionTTL = 7 * 24 * time.Hour
	c.BcryptCost = 12
	c.LogLevel = "info"
	c.LogBackend = logging.BackendZerolog
	c.TracingEndpoint = "localhost:4318"
	c.TracingSampleRate = 1.0
	c.ShutdownTimeout = 10 * time.Second
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment (including a .env file) and
// finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg, dotEnvFile)
	parseFlags(cfg)
	return cfg
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// DatabaseOptions maps the database settings onto adapter options.
func (c *Config) DatabaseOptions() dbx.Options {
	return dbx.Options{
		DSN:        c.DatabaseDSN,
		MaxConns:   c.DatabaseMaxConns,
		RequireSSL: c.DatabaseRequireSSL,
		Production: c.IsProduction(),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL: %w", dbx.ErrMissingDSN))
	}
	if c.DatabaseMaxConns <= 0 {
		errs = append(errs, fmt.Errorf("database max conns must be positive, got %d", c.DatabaseMaxConns))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt cost must be within [%d, %d], got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost))
	}
	if c.LogBackend != logging.BackendZerolog && c.LogBackend != logging.BackendSlog {
		errs = append(errs, fmt.Errorf("unknown log backend %q", c.LogBackend))
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing sample rate must be within [0, 1], got %v", c.TracingSampleRate))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is empty"))
	}

	return errors.Join(errs...)
}
