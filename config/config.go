/*
Package config loads service configuration from the environment.

PURPOSE:
  One flat struct covers the server, the database, authorization, and the
  effect relay. Every field has a default, so a bare `go run ./cmd/server`
  starts a working instance with a local SQLite file.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	DBPath   string `env:"DB_PATH" envDefault:"./data/policy.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AuthzMode string `env:"AUTHZ_MODE" envDefault:"enforce"`

	RelayInterval    time.Duration `env:"RELAY_INTERVAL" envDefault:"2s"`
	RelayBatchSize   int           `env:"RELAY_BATCH" envDefault:"50"`
	RelayMaxBackoff  time.Duration `env:"RELAY_MAX_BACKOFF" envDefault:"5m"`
	RelayMaxAttempts int           `env:"RELAY_MAX_ATTEMPTS" envDefault:"10"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
