package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("expected port %s, got %s", DefaultPort, cfg.Port)
	}
	if cfg.Backend != BackendMemory {
		t.Fatalf("expected memory backend, got %s", cfg.Backend)
	}
	if cfg.TopN != DefaultTopN || cfg.PointsPerKG != DefaultPointsPerKG {
		t.Fatalf("unexpected dashboard defaults: top_n=%d points=%d", cfg.TopN, cfg.PointsPerKG)
	}
	if cfg.WatchInterval != DefaultWatchInterval {
		t.Fatalf("expected watch interval %v, got %v", DefaultWatchInterval, cfg.WatchInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CARBONDASH_BACKEND", "sqlite")
	t.Setenv("CARBONDASH_DSN", "file:test.db")
	t.Setenv("CARBONDASH_TOP_N", "5")
	t.Setenv("CARBONDASH_WATCH_INTERVAL", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendSQLite || cfg.DSN != "file:test.db" {
		t.Fatalf("unexpected backend config: %+v", cfg)
	}
	if cfg.TopN != 5 {
		t.Fatalf("expected top_n 5, got %d", cfg.TopN)
	}
	if cfg.WatchInterval != 2*time.Minute {
		t.Fatalf("expected 2m, got %v", cfg.WatchInterval)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("CARBONDASH_TOP_N", "three")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Env{Backend: BackendMemory, TopN: 3, PointsPerKG: 10}

	tests := []struct {
		name    string
		mutate  func(*Env)
		wantErr string
	}{
		{"valid", func(*Env) {}, ""},
		{"unknown backend", func(e *Env) { e.Backend = "postgres" }, "unknown backend"},
		{"sql without dsn", func(e *Env) { e.Backend = BackendMySQL }, "CARBONDASH_DSN"},
		{"zero top n", func(e *Env) { e.TopN = 0 }, "CARBONDASH_TOP_N"},
		{"negative points", func(e *Env) { e.PointsPerKG = -1 }, "CARBONDASH_POINTS_PER_KG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
