package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kickoff/internal/config"
	"kickoff/internal/db"
	"kickoff/internal/game"
	"kickoff/internal/live"
	"kickoff/internal/scheduler"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
)

// App is the wired game backend shared by the API and the worker.
type App struct {
	Service *game.Service
	Runner  *scheduler.Runner

	log      *slog.Logger
	pool     *pgxpool.Pool
	bus      *live.NATSPublisher
	relay    *nats.Subscription
	announce *live.DiscordAnnouncer
}

// Build connects the store and publishers described by cfg. When hub is not
// nil it receives every match update, relayed through NATS if configured.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, hub *live.Hub) (*App, error) {
	a := &App{log: logger}
	ok := false
	defer func() {
		if !ok {
			a.release()
		}
	}()

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tables := game.DefaultTables()
	if cfg.BalanceFile != "" {
		tables, err = game.LoadTables(cfg.BalanceFile)
		if err != nil {
			return nil, fmt.Errorf("load balance tables: %w", err)
		}
		logger.Info("balance tables loaded", "path", cfg.BalanceFile)
	}

	var pubs live.Fanout
	if cfg.NATSURL != "" {
		nc := live.DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		nc.SubjectPrefix = cfg.NATSPrefix
		a.bus, err = live.NewNATSPublisher(nc, logger)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, a.bus)
		if hub != nil {
			a.relay, err = a.bus.Relay(hub)
			if err != nil {
				return nil, err
			}
		}
	} else if hub != nil {
		pubs = append(pubs, hub)
	}
	if cfg.DiscordToken != "" {
		a.announce, err = live.NewDiscordAnnouncer(cfg.DiscordToken, cfg.DiscordChannelID, store, logger)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, a.announce)
	}

	a.Service = game.NewService(store, logger, game.Options{
		Tables:           tables,
		Publisher:        pubs,
		TickInterval:     cfg.TickInterval,
		FixtureDelay:     cfg.FixtureDelay,
		TeamOpTimeout:    cfg.TeamOpTimeout,
		SweepConcurrency: cfg.SweepConcurrency,
		MatchRetention:   cfg.MatchRetention,
	})

	jobs := scheduler.GameJobs(a.Service, scheduler.Intervals{
		EconomyTick:      cfg.EconomyEvery,
		DailyMaintenance: cfg.DailyEvery,
		LeagueSweep:      cfg.LeagueSweepEvery,
		EndSeason:        cfg.EndSeason,
	}, logger)
	a.Runner, err = scheduler.NewRunner(clockwork.NewRealClock(), logger, jobs...)
	if err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) (game.Store, error) {
	if cfg.MemoryStore {
		a.log.Warn("using in-memory store, state is lost on exit")
		return game.NewMemoryStore(), nil
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	a.pool = pool
	if err := db.EnsureSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db.NewStore(pool), nil
}

// Resume restarts matches left unfinished by a previous process.
func (a *App) Resume(ctx context.Context) error {
	n, err := a.Service.ResumeUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("resume matches: %w", err)
	}
	if n > 0 {
		a.log.Info("resumed unfinished matches", "count", n)
	}
	return nil
}

// Close waits for running simulations and releases connections.
func (a *App) Close(ctx context.Context) error {
	a.Runner.Wait()
	err := a.Service.Shutdown(ctx)
	a.release()
	return err
}

func (a *App) release() {
	if a.announce != nil {
		a.announce.Wait()
	}
	if a.relay != nil {
		if err := a.relay.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			a.log.Warn("nats unsubscribe failed", "err", err)
		}
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn("nats drain failed", "err", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
