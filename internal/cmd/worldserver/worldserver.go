// Package worldserver parses world server command flags and runs the
// WorldState tick loop.
package worldserver

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/riftworld/worldcore/internal/platform/clock"
	"github.com/riftworld/worldcore/internal/platform/config"
	platformotel "github.com/riftworld/worldcore/internal/platform/otel"
	"github.com/riftworld/worldcore/internal/worldstate"
	"github.com/riftworld/worldcore/internal/worldstate/save/sqlite"
)

// Config holds world server command configuration.
type Config struct {
	DBPath       string        `env:"WORLDCORE_DB_PATH" envDefault:"data/worldcore.db"`
	TickInterval time.Duration `env:"WORLDCORE_TICK_INTERVAL" envDefault:"50ms"`
	IndexMax     uint32        `env:"WORLDCORE_INDEX_MAX" envDefault:"65536"`
	ChunkSize    float64       `env:"WORLDCORE_CHUNK_SIZE" envDefault:"4096"`
	GridRadius   int           `env:"WORLDCORE_GRID_RADIUS" envDefault:"1"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The world save storage sqlite database path")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "WorldState.Tick period")
	fs.Func("index-max", "Maximum simultaneously-live dense form indices", func(s string) error {
		var v uint32
		if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
			return err
		}
		cfg.IndexMax = v
		return nil
	})
	fs.Float64Var(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Spatial grid chunk edge length")
	fs.IntVar(&cfg.GridRadius, "grid-radius", cfg.GridRadius, "Spatial grid pre-load skirt radius")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens save storage, replays persisted change forms, then drives
// WorldState.Tick on cfg.TickInterval until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := platformotel.Setup(ctx, "worldserver")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	logger := slog.Default()

	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open save storage: %w", err)
	}

	w := worldstate.New(clock.Real(), cfg.IndexMax, logger).
		WithChunkSize(float32(cfg.ChunkSize)).
		WithGridRadius(int32(cfg.GridRadius))
	w.AttachSaveStorage(store)

	changeForms, err := store.LoadAll()
	if err != nil {
		return fmt.Errorf("load persisted change forms: %w", err)
	}
	for _, cf := range changeForms {
		if err := w.LoadChangeForm(cf); err != nil {
			logger.Error("load_change_form failed during startup replay", "error", err)
		}
	}

	tracer := otel.Tracer("github.com/riftworld/worldcore/internal/cmd/worldserver")
	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return w.Close(context.Background())
		case <-ticker.C:
			_, span := tracer.Start(ctx, "WorldState.Tick")
			w.Tick()
			span.End()
		}
	}
}
