package main

// Poll the inbox and start the pipeline for each bidding email:
//   IMAP_HOST=imap.example.vn go run ./cmd/mailpoller

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"hsmt-backend/internal/bootstrap"
	"hsmt-backend/internal/shared/config"
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

	poller, err := app.Poller()
	if err != nil {
		log.Fatalf("mail poller: %v", err)
	}
	telemetry.Info("mailpoller.started", map[string]any{"mailbox": poller.Mailbox, "interval_s": poller.Interval.Seconds()})
	if err := poller.Run(ctx); err != nil {
		log.Printf("mail poller stopped: %v", err)
	}
}
