package scheduler

import (
	"context"
	"log/slog"
	"time"

	"kickoff/internal/game"
)

const (
	JobEconomyTick      = "economyTick"
	JobDailyMaintenance = "dailyMaintenance"
	JobLeagueSweep      = "leagueSweep"
)

type Intervals struct {
	EconomyTick      time.Duration
	DailyMaintenance time.Duration
	LeagueSweep      time.Duration
	EndSeason        bool
}

// GameJobs wires the periodic work of a game.Service into jobs.
func GameJobs(svc *game.Service, iv Intervals, logger *slog.Logger) []Job {
	if logger == nil {
		logger = slog.Default()
	}
	return []Job{
		NewJob(JobEconomyTick, iv.EconomyTick, func(ctx context.Context) error {
			report, err := svc.RunEconomyTick(ctx)
			logger.Info("economy tick report", "processed", report.Processed, "failed", report.Failed)
			return err
		}),
		NewJob(JobDailyMaintenance, iv.DailyMaintenance, func(ctx context.Context) error {
			report, err := svc.RunDailyMaintenance(ctx)
			logger.Info("daily maintenance report", "processed", report.Processed, "failed", report.Failed)
			return err
		}),
		NewJob(JobLeagueSweep, iv.LeagueSweep, func(ctx context.Context) error {
			report, err := svc.RunLeagueSweep(ctx, iv.EndSeason)
			attrs := []any{"fixtures", report.Fixtures, "created", report.Created, "failed", report.Failed}
			if report.Season != nil {
				attrs = append(attrs,
					"promoted", len(report.Season.Promoted),
					"relegated", len(report.Season.Relegated),
					"prizes", len(report.Season.Prizes))
			}
			logger.Info("league sweep report", attrs...)
			return err
		}),
	}
}
