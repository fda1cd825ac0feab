package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Kronicaler/hzpp-delay-stats/internal/config"
	"github.com/Kronicaler/hzpp-delay-stats/internal/hzpp"
	"github.com/Kronicaler/hzpp-delay-stats/internal/ingest"
	"github.com/Kronicaler/hzpp-delay-stats/internal/model"
	"github.com/Kronicaler/hzpp-delay-stats/internal/monitor"
	"github.com/Kronicaler/hzpp-delay-stats/internal/server"
	"github.com/Kronicaler/hzpp-delay-stats/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	slog.Info("configuration loaded",
		"driver", cfg.DatabaseDriver,
		"poll_interval", cfg.PollInterval,
		"ingest_interval", cfg.IngestInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer gateway.Close()

	if err := gateway.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}
	slog.Info("database initialized")

	client := hzpp.NewClient(cfg)
	supervisor := monitor.NewSupervisor(gateway, client, cfg)

	batches := make(chan []model.Route, cfg.QueueSize)

	// The ingest job is the only sender; it closes the channel once the
	// context is canceled, which tells the supervisor to shut down.
	go func() {
		defer close(batches)
		if err := ingest.NewJob(client, gateway, batches, cfg.IngestInterval).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("ingest job stopped", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(gateway, supervisor),
	}
	go func() {
		slog.Info("operational endpoint listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("operational endpoint failed", "error", err)
		}
	}()

	supervisorDone := make(chan error, 1)
	go func() {
		supervisorDone <- supervisor.Run(ctx, batches)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		slog.Info("shutting down", "signal", s.String())
		cancel()
		if err := <-supervisorDone; err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("supervisor stopped with error", "error", err)
		}
	case err := <-supervisorDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("supervisor stopped with error", "error", err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down operational endpoint", "error", err)
	}

	slog.Info("goodbye")
}
