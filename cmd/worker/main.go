package main

// Run one pipeline stage:
//   HSMT_STAGE=classify go run ./cmd/worker

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hsmt-backend/internal/bootstrap"
	"hsmt-backend/internal/shared/config"
	"hsmt-backend/internal/shared/server"
	"hsmt-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	stage, err := app.Stage(cfg.Stage)
	if err != nil {
		log.Fatalf("HSMT_STAGE: %v", err)
	}

	srv := &http.Server{Addr: server.Addr(cfg.Port), Handler: app.Router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error("worker.ops_server.failed", map[string]any{"addr": srv.Addr, "error": err})
		}
	}()

	telemetry.Info("worker.started", map[string]any{
		"stage": stage.Name, "queue": stage.Queue, "ack_early": stage.AckEarly, "concurrency": cfg.WorkerConcurrency,
	})
	if err := app.Driver().Run(ctx, stage); err != nil {
		telemetry.Error("worker.stopped", map[string]any{"stage": stage.Name, "error": err})
	}

	timeout := time.Duration(cfg.ShutdownTimeoutSecs) * time.Second
	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", timeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := app.Pool.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
	_ = srv.Shutdown(shutdownCtx)
}
