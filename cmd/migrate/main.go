package main

// Run database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"os"

	"hsmt-backend/internal/shared/config"
	"hsmt-backend/internal/shared/storage/db"
	"hsmt-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel)
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	conn, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer conn.Close()

	version, err := db.RunMigrations(ctx, conn.DB)
	if err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	telemetry.Info("migrate.done", map[string]any{"version": version})
}
