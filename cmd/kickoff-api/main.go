package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kickoff/internal/api"
	"kickoff/internal/app"
	"kickoff/internal/config"
	"kickoff/internal/live"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	hub := live.NewHub(logger)
	defer hub.Close()

	backend, err := app.Build(ctx, cfg, logger, hub)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := backend.Close(shutdownCtx); err != nil {
			logger.Error("game shutdown incomplete", "err", err)
		}
	}()
	if err := backend.Resume(ctx); err != nil {
		logger.Error("startup failed", "err", err)
		return
	}

	// A memory store cannot be shared with a worker process, so the API runs
	// the periodic jobs itself.
	if cfg.MemoryStore {
		backend.Runner.Start(ctx)
	}

	server := api.New(cfg, logger, backend.Service, hub, backend.Runner)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("kickoff api listening", "addr", cfg.Addr, "memory_store", cfg.MemoryStore, "nats", cfg.NATSURL != "")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		stop()
	}
}
