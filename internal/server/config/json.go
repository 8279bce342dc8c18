package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// Interval fields use timex.Duration, so both "30s" and integer nanoseconds
// are accepted. Pointers tell "absent" apart from an explicit zero value.
type JsonConfig struct {
	AppEnv             string          `json:"app_env"`
	HTTPAddr           string          `json:"http_addr"`
	GRPCAddr           string          `json:"grpc_addr"`
	DatabaseDSN        string          `json:"database_dsn"`
	DatabaseMaxConns   int             `json:"database_max_conns"`
	DatabaseRequireSSL *bool           `json:"database_require_ssl"`
	RunMigrations      *bool           `json:"run_migrations"`
	SessionTTL         *timex.Duration `json:"session_ttl"`
	BcryptCost         int             `json:"bcrypt_cost"`
	LogLevel           string          `json:"log_level"`
	LogBackend         string          `json:"log_backend"`
	TracingEnabled     *bool           `json:"tracing_enabled"`
	TracingEndpoint    string          `json:"tracing_endpoint"`
	TracingSampleRate  *float64        `json:"tracing_sample_rate"`
	ShutdownTimeout    *timex.Duration `json:"shutdown_timeout"`
}

// parseJson loads configuration values from the JSON file named by the -c
// or -config flag. Without the flag nothing is loaded. Only keys present in
// the file override the current values.
//
// If the file cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.AppEnv, c.AppEnv)
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.TracingEndpoint, c.TracingEndpoint)

	if c.DatabaseMaxConns != 0 {
		config.DatabaseMaxConns = c.DatabaseMaxConns
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.DatabaseRequireSSL != nil {
		config.DatabaseRequireSSL = *c.DatabaseRequireSSL
	}
	if c.RunMigrations != nil {
		config.RunMigrations = *c.RunMigrations
	}
	if c.TracingEnabled != nil {
		config.TracingEnabled = *c.TracingEnabled
	}
	if c.TracingSampleRate != nil {
		config.TracingSampleRate = *c.TracingSampleRate
	}
	if c.SessionTTL != nil {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
