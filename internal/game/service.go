package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Tables    *Tables
	Clock     clockwork.Clock
	Publisher Publisher
	// TickInterval is the real-time length of one simulated minute.
	TickInterval time.Duration
	// FixtureDelay paces match creation during a league sweep.
	FixtureDelay     time.Duration
	TeamOpTimeout    time.Duration
	SweepConcurrency int
	MatchRetention   time.Duration
	Seed             int64
}

func (o Options) withDefaults() Options {
	if o.Tables == nil {
		o.Tables = DefaultTables()
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Publisher == nil {
		o.Publisher = nopPublisher{}
	}
	if o.TeamOpTimeout <= 0 {
		o.TeamOpTimeout = 5 * time.Second
	}
	if o.SweepConcurrency <= 0 {
		o.SweepConcurrency = 8
	}
	if o.MatchRetention <= 0 {
		o.MatchRetention = 24 * time.Hour
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	return o
}

type Service struct {
	store  Store
	log    *slog.Logger
	tables *Tables
	clock  clockwork.Clock
	pub    Publisher
	opts   Options

	mu   sync.Mutex
	rand *mathrand.Rand

	locks *teamLocks

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runMu   sync.Mutex
	running map[uuid.UUID]chan struct{}
}

func NewService(store Store, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:   store,
		log:     logger,
		tables:  opts.Tables,
		clock:   opts.Clock,
		pub:     opts.Publisher,
		opts:    opts,
		rand:    mathrand.New(mathrand.NewSource(opts.Seed)),
		locks:   newTeamLocks(),
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[uuid.UUID]chan struct{}),
	}
}

func (s *Service) Tables() *Tables {
	return s.tables
}

// Shutdown stops running simulations at their next tick and waits for them.
// Unfinished matches pick up where they left off after ResumeUnfinished.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) CreateTeam(ctx context.Context, name, tierName string) (*Team, error) {
	if err := ValidateTeamName(name); err != nil {
		return nil, err
	}
	tier := LowestTier
	if tierName != "" {
		var err error
		if tier, err = ParseTier(tierName); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	t := newTeam(s.rand, name, tier, s.clock.Now())
	s.mu.Unlock()
	if err := s.store.CreateTeam(ctx, t); err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}
	s.log.Info("team created", "team_id", t.ID, "tier", tier.String())
	return t, nil
}

func (s *Service) GetTeam(ctx context.Context, id uuid.UUID) (*Team, error) {
	return s.store.GetTeam(ctx, id)
}

func (s *Service) Facilities(ctx context.Context, id uuid.UUID) ([]FacilityStatus, error) {
	t, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.tables.FacilityStatuses(t, s.clock.Now()), nil
}

type CollectResult struct {
	Facility  FacilityType `json:"facility"`
	Collected int64        `json:"collected"`
	Coins     int64        `json:"coins"`
}

func (s *Service) CollectCoins(ctx context.Context, teamID uuid.UUID, ft FacilityType) (CollectResult, error) {
	out := CollectResult{Facility: ft}
	_, err := s.mutateTeam(ctx, teamID, func(t *Team) error {
		now := s.clock.Now()
		collected, err := s.tables.Collect(t, ft, now)
		if err != nil {
			return err
		}
		out.Collected = collected
		out.Coins = t.Coins
		return nil
	})
	if err != nil {
		return CollectResult{}, err
	}
	return out, nil
}

type UpgradeResult struct {
	Facility FacilityType `json:"facility"`
	Level    int          `json:"level"`
	Cost     int64        `json:"cost"`
	Coins    int64        `json:"coins"`
}

func (s *Service) UpgradeFacility(ctx context.Context, teamID uuid.UUID, ft FacilityType) (UpgradeResult, error) {
	out := UpgradeResult{Facility: ft}
	_, err := s.mutateTeam(ctx, teamID, func(t *Team) error {
		cost, err := s.tables.Upgrade(t, ft, s.clock.Now())
		if err != nil {
			return err
		}
		out.Cost = cost
		out.Level = t.Facilities[ft].Level
		out.Coins = t.Coins
		return nil
	})
	if err != nil {
		return UpgradeResult{}, err
	}
	return out, nil
}

func (s *Service) RecruitPlayer(ctx context.Context, teamID uuid.UUID) (Player, error) {
	var out Player
	_, err := s.mutateTeam(ctx, teamID, func(t *Team) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		p, err := recruitYouth(t, s.tables, s.rand, s.clock.Now())
		out = p
		return err
	})
	return out, err
}

func (s *Service) SignPlayer(ctx context.Context, teamID uuid.UUID, in SigningInput) (Player, error) {
	if err := in.validate(); err != nil {
		return Player{}, err
	}
	var out Player
	_, err := s.mutateTeam(ctx, teamID, func(t *Team) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		p, err := signPlayer(t, in, s.rand, s.clock.Now())
		out = p
		return err
	})
	return out, err
}

func (s *Service) FirePlayer(ctx context.Context, teamID, playerID uuid.UUID) (int, error) {
	var remaining int
	_, err := s.mutateTeam(ctx, teamID, func(t *Team) error {
		n, err := firePlayer(t, playerID, s.clock.Now())
		remaining = n
		return err
	})
	return remaining, err
}

func (s *Service) RenewPlayerContract(ctx context.Context, teamID, playerID uuid.UUID) (RenewalResult, error) {
	var out RenewalResult
	_, err := s.mutateTeam(ctx, teamID, func(t *Team) error {
		res, err := renewPlayerContract(t, playerID, s.clock.Now())
		out = res
		return err
	})
	return out, err
}

func (s *Service) RenewCoachContract(ctx context.Context, teamID uuid.UUID) (RenewalResult, error) {
	var out RenewalResult
	_, err := s.mutateTeam(ctx, teamID, func(t *Team) error {
		res, err := renewCoachContract(t, s.clock.Now())
		out = res
		return err
	})
	return out, err
}

func (s *Service) RegisterForLeague(ctx context.Context, teamID uuid.UUID, tierName string) (*Team, error) {
	tier, err := ParseTier(tierName)
	if err != nil {
		return nil, err
	}
	return s.mutateTeam(ctx, teamID, func(t *Team) error {
		t.ResetLeagueStats(tier)
		return nil
	})
}

func (s *Service) LeagueTable(ctx context.Context, tierName string) ([]LeagueRow, error) {
	tier, err := ParseTier(tierName)
	if err != nil {
		return nil, err
	}
	teams, err := s.store.ListTeamsByTier(ctx, tier, 0)
	if err != nil {
		return nil, err
	}
	return LeagueRows(teams), nil
}

// mutateTeam is the only write path for team records. It serializes writers
// for one team inside this process and retries on version conflicts raised
// by writers in other processes. fn may run more than once and must derive
// everything it changes from the team it is handed.
func (s *Service) mutateTeam(ctx context.Context, teamID uuid.UUID, fn func(t *Team) error) (*Team, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.TeamOpTimeout)
	defer cancel()

	unlock, err := s.locks.lock(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	const maxAttempts = 8
	retryDelay := 25 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		t, err := s.store.GetTeam(ctx, teamID)
		if err != nil {
			return nil, err
		}
		if err := fn(t); err != nil {
			return nil, err
		}
		t.UpdatedAt = s.clock.Now()
		err = s.store.SaveTeam(ctx, t)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		if attempt == maxAttempts-1 {
			return nil, ErrTxConflict
		}
		if err := sleepWithContext(ctx, s.clock, retryDelay); err != nil {
			return nil, err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return nil, ErrTxConflict
}

func (s *Service) forEachTeam(ctx context.Context, job string, fn func(ctx context.Context, id uuid.UUID) error) (BatchReport, error) {
	ids, err := s.store.ListTeamIDs(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("%s: list teams: %w", job, err)
	}
	var (
		mu     sync.Mutex
		report BatchReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.SweepConcurrency)
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := fn(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				s.log.Warn("team skipped", "job", job, "team_id", id, "err", err)
				return nil
			}
			report.Processed++
			return nil
		})
	}
	_ = g.Wait()
	return report, ctx.Err()
}

func (s *Service) RunEconomyTick(ctx context.Context) (BatchReport, error) {
	return s.forEachTeam(ctx, "economyTick", func(ctx context.Context, id uuid.UUID) error {
		_, err := s.mutateTeam(ctx, id, func(t *Team) error {
			return s.tables.Materialize(t, s.clock.Now())
		})
		return err
	})
}

// RunDailyMaintenance applies squad rules to every team and purges finished
// matches older than the retention window.
func (s *Service) RunDailyMaintenance(ctx context.Context) (BatchReport, error) {
	report, err := s.forEachTeam(ctx, "dailyMaintenance", func(ctx context.Context, id uuid.UUID) error {
		var res MaintenanceResult
		_, err := s.mutateTeam(ctx, id, func(t *Team) error {
			res = maintainSquad(t, s.clock.Now())
			return nil
		})
		if err == nil && res.Changed() {
			s.log.Info("squad maintained", "team_id", id,
				"retired", res.Retired, "released", res.Released, "healed", res.Healed, "coach_reset", res.CoachOut)
		}
		return err
	})
	if err != nil {
		return report, err
	}
	cutoff := s.clock.Now().Add(-s.opts.MatchRetention)
	purged, err := s.store.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		s.log.Warn("purge finished matches failed", "err", err)
		return report, nil
	}
	if purged > 0 {
		s.log.Info("finished matches purged", "count", purged, "cutoff", cutoff)
	}
	return report, nil
}

func (s *Service) newMatchRand() *mathrand.Rand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mathrand.New(mathrand.NewSource(s.rand.Int63()))
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

type teamLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*teamLock
}

type teamLock struct {
	ch   chan struct{}
	refs int
}

func newTeamLocks() *teamLocks {
	return &teamLocks{locks: make(map[uuid.UUID]*teamLock)}
}

func (l *teamLocks) lock(ctx context.Context, id uuid.UUID) (func(), error) {
	l.mu.Lock()
	tl, ok := l.locks[id]
	if !ok {
		tl = &teamLock{ch: make(chan struct{}, 1)}
		l.locks[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	release := func() {
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}

	select {
	case tl.ch <- struct{}{}:
		return func() {
			<-tl.ch
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}
