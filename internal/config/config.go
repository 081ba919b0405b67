package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime configuration of the escrow API, read from the
// environment.
type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	Env          string `env:"ENV" envDefault:"development"`
	Debug        bool   `env:"DEBUG" envDefault:"false"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"escrow.db"`
	JWTSecret    string `env:"JWT_SECRET" envDefault:"escrow-secret-key"`
}

// Parse reads the configuration from environment variables.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
