package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("DATABASE_MAX_CONNS", "42")
	t.Setenv("DATABASE_REQUIRE_SSL", "true")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("TRACING_SAMPLE_RATE", "0.5")
	t.Setenv("RUN_MIGRATIONS", "false")

	cfg := defaults()
	parseEnv(cfg, "")

	want := defaults()
	want.DatabaseDSN = "postgres://env"
	want.DatabaseMaxConns = 42
	want.DatabaseRequireSSL = true
	want.SessionTTL = 2 * time.Hour
	want.TracingSampleRate = 0.5
	want.RunMigrations = false
	assert.Equal(t, want, cfg)
}

func TestParseEnv_DotEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_URL=postgres://dotenv\nLOG_LEVEL=debug\nAPP_ENV=production\n"), 0o600))

	cfg := defaults()
	parseEnv(cfg, path)

	assert.Equal(t, "postgres://dotenv", cfg.DatabaseDSN)
	assert.Equal(t, "warn", cfg.LogLevel, "process environment wins over the file")
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "", os.Getenv("DATABASE_URL"), "the file must not leak into the process environment")
}

func TestParseEnv_MissingDotEnvIsIgnored(t *testing.T) {
	clearEnv(t)

	cfg := defaults()
	require.NotPanics(t, func() { parseEnv(cfg, filepath.Join(t.TempDir(), ".env")) })
	assert.Equal(t, defaults(), cfg)
}

func TestParseEnv_MalformedValuePanics(t *testing.T) {
	clearEnv(t)
	t.Setenv("BCRYPT_COST", "twelve")

	require.Panics(t, func() { parseEnv(defaults(), "") })
}
