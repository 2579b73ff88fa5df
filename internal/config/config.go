// Package config reads application configuration from the environment, with
// an optional .env file loaded first.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"permstat/internal/errors"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Inference InferenceConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds optional persistence settings. An empty URL disables
// persistence entirely.
type DatabaseConfig struct {
	URL string
}

// InferenceConfig holds engine defaults applied when a request leaves a
// field unset.
type InferenceConfig struct {
	NPermutations int
	Seed          int64
	TwoTailed     bool
	AccelTail     bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is merged in when present; real environment variables
// win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Inference: InferenceConfig{
			NPermutations: getEnvIntOrDefault("PERMSTAT_N_PERMUTATIONS", 1000),
			Seed:          int64(getEnvIntOrDefault("PERMSTAT_SEED", 42)),
			TwoTailed:     getEnvBoolOrDefault("PERMSTAT_TWO_TAILED", true),
			AccelTail:     getEnvBoolOrDefault("PERMSTAT_ACCEL_TAIL", true),
		},
	}

	if cfg.Inference.NPermutations <= 0 {
		return nil, errors.ConfigInvalid("PERMSTAT_N_PERMUTATIONS must be positive")
	}
	return cfg, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBoolOrDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
