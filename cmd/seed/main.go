// Command seed loads the demo catalog and promo codes into the configured
// store.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/kirinyoku/bookit/internal/app"
	"github.com/kirinyoku/bookit/internal/config"
	"github.com/kirinyoku/bookit/internal/seed"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Storage.Driver == config.DriverMemory {
		logger.Error("seeding the in-memory store has no lasting effect; use SEED_ON_START instead")
		os.Exit(1)
	}

	cfg.SeedOnStart = false

	ctx := context.Background()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if _, err := seed.Run(ctx, application.Services(), time.Now(), logger); err != nil {
		logger.Error("seed failed", "error", err)
		application.Close()
		os.Exit(1)
	}
}
