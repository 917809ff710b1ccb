package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backends selectable with CARBONDASH_BACKEND.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
)

// Env is the process configuration read from the environment.
type Env struct {
	Port          string        `env:"PORT" envDefault:"8080"`
	Backend       string        `env:"CARBONDASH_BACKEND" envDefault:"memory"`
	DataDir       string        `env:"CARBONDASH_DATA_DIR" envDefault:"./data"`
	DSN           string        `env:"CARBONDASH_DSN"`
	Relation      string        `env:"CARBONDASH_RELATION" envDefault:"CARD_CO2E_VW"`
	TopN          int           `env:"CARBONDASH_TOP_N" envDefault:"3"`
	PointsPerKG   int64         `env:"CARBONDASH_POINTS_PER_KG" envDefault:"10"`
	MaxMemoryMB   int64         `env:"CARBONDASH_MAX_MEMORY_MB" envDefault:"48"`
	MaxStorageGB  int64         `env:"CARBONDASH_MAX_STORAGE_GB" envDefault:"1"`
	WatchInterval time.Duration `env:"CARBONDASH_WATCH_INTERVAL" envDefault:"30s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Env and checks it.
func Load() (Env, error) {
	var cfg Env
	if err := ParseEnv(&cfg); err != nil {
		return Env{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Env{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (e Env) Validate() error {
	switch e.Backend {
	case BackendMemory, BackendBadger:
	case BackendSQLite, BackendMySQL:
		if e.DSN == "" {
			return fmt.Errorf("CARBONDASH_DSN is required for backend %q", e.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q (want memory, badger, sqlite or mysql)", e.Backend)
	}
	if e.TopN <= 0 {
		return fmt.Errorf("CARBONDASH_TOP_N must be positive, got %d", e.TopN)
	}
	if e.PointsPerKG <= 0 {
		return fmt.Errorf("CARBONDASH_POINTS_PER_KG must be positive, got %d", e.PointsPerKG)
	}
	if e.WatchInterval < 0 {
		return fmt.Errorf("CARBONDASH_WATCH_INTERVAL must not be negative, got %v", e.WatchInterval)
	}
	return nil
}
