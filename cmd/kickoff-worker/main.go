package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kickoff/internal/app"
	"kickoff/internal/config"
	"kickoff/internal/scheduler"
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
	if cfg.MemoryStore {
		slog.Error("worker needs DATABASE_URL, a memory store only lives inside the API process")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	backend, err := app.Build(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	code := run(ctx, cfg, logger, backend)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := backend.Close(shutdownCtx); err != nil {
		logger.Error("worker shutdown incomplete", "err", err)
		code = 1
	}
	if code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, backend *app.App) int {
	if err := backend.Resume(ctx); err != nil {
		logger.Error("startup failed", "err", err)
		return 1
	}

	if cfg.WorkerRunOnce {
		names := []string{scheduler.JobEconomyTick, scheduler.JobDailyMaintenance}
		if cfg.LeagueSweepEvery > 0 {
			names = append(names, scheduler.JobLeagueSweep)
		}
		for _, name := range names {
			if err := backend.Runner.RunOnce(ctx, name); err != nil {
				logger.Error("run-once job failed", "job", name, "err", err)
				return 1
			}
		}
		logger.Info("worker run-once completed", "jobs", names)
		return 0
	}

	logger.Info("worker started",
		"economy_every", cfg.EconomyEvery.String(),
		"daily_every", cfg.DailyEvery.String(),
		"league_sweep_every", cfg.LeagueSweepEvery.String())
	backend.Runner.Start(ctx)
	<-ctx.Done()
	logger.Info("worker shutdown")
	return 0
}
