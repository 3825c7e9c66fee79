package worldserver

import (
	"context"
	"flag"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("worldserver", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "data/worldcore.db" {
		t.Fatalf("db path = %q, want default", cfg.DBPath)
	}
	if cfg.TickInterval != 50*time.Millisecond {
		t.Fatalf("tick interval = %v, want 50ms", cfg.TickInterval)
	}
	if cfg.IndexMax != 65536 {
		t.Fatalf("index max = %d, want 65536", cfg.IndexMax)
	}
}

func TestParseConfig_FlagOverrides(t *testing.T) {
	fs := flag.NewFlagSet("worldserver", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{
		"-db-path", "/tmp/override.db",
		"-tick-interval", "20ms",
		"-chunk-size", "2048",
		"-grid-radius", "2",
	})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("db path = %q, want override", cfg.DBPath)
	}
	if cfg.TickInterval != 20*time.Millisecond {
		t.Fatalf("tick interval = %v, want 20ms", cfg.TickInterval)
	}
	if cfg.ChunkSize != 2048 {
		t.Fatalf("chunk size = %v, want 2048", cfg.ChunkSize)
	}
	if cfg.GridRadius != 2 {
		t.Fatalf("grid radius = %d, want 2", cfg.GridRadius)
	}
}

func TestParseConfig_EnvOverride(t *testing.T) {
	fs := flag.NewFlagSet("worldserver", flag.ContinueOnError)
	t.Setenv("WORLDCORE_DB_PATH", "/data/env.db")

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/data/env.db" {
		t.Fatalf("db path = %q, want env override", cfg.DBPath)
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	cfg := Config{
		DBPath:       filepath.Join(t.TempDir(), "worldcore.db"),
		TickInterval: 5 * time.Millisecond,
		IndexMax:     1024,
		ChunkSize:    4096,
		GridRadius:   1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := Run(ctx, cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
