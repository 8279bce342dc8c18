package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const dotEnvFile = ".env"

// parseEnv overlays variables from the process environment and from an
// optional dotenv file. Real environment variables win over the file, and
// the file never modifies the process environment. Unset or empty variables
// leave the current values alone.
//
// Panics on an unreadable dotenv file or a malformed value.
func parseEnv(config *Config, dotEnvPath string) {
	vars := map[string]string{}

	if dotEnvPath != "" {
		fileVars, err := godotenv.Read(dotEnvPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && v != "" {
			vars[k] = v
		}
	}

	if err := env.Parse(config, env.Options{Environment: vars}); err != nil {
		panic(err)
	}
}
