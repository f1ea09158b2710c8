package game

import (
	"context"
	"errors"
	"fmt"
	mathrand "math/rand"
	"slices"
	"time"

	"github.com/google/uuid"
)

// CreateMatch snapshots both teams, stores a scheduled match and starts its
// simulation in the background. It returns as soon as the match is stored.
func (s *Service) CreateMatch(ctx context.Context, homeID, awayID uuid.UUID) (*Match, error) {
	if homeID == awayID {
		return nil, fmt.Errorf("%w: a team cannot play itself", ErrInvalidInput)
	}
	home, err := s.store.GetTeam(ctx, homeID)
	if err != nil {
		return nil, fmt.Errorf("home: %w", err)
	}
	away, err := s.store.GetTeam(ctx, awayID)
	if err != nil {
		return nil, fmt.Errorf("away: %w", err)
	}
	m := &Match{
		ID:           uuid.New(),
		HomeTeamID:   home.ID,
		AwayTeamID:   away.ID,
		HomeTeamName: home.Name,
		AwayTeamName: away.Name,
		Stadium:      home.Name + " Stadium",
		Tier:         home.League.Tier,
		Events:       []MatchEvent{},
		StartTime:    s.clock.Now(),
	}
	if err := s.store.CreateMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	s.log.Info("match created", "match_id", m.ID, "home", home.Name, "away", away.Name, "tier", m.Tier.String())
	s.startSimulation(m.Clone(), home, away)
	return m, nil
}

func (s *Service) GetMatch(ctx context.Context, id uuid.UUID) (*Match, error) {
	return s.store.GetMatch(ctx, id)
}

func (s *Service) LiveMatches(ctx context.Context, limit int) ([]*Match, error) {
	return s.store.ListLiveMatches(ctx, limit)
}

// ResumeUnfinished restarts simulations left behind by a previous process and
// settles finished matches whose result never reached both teams.
func (s *Service) ResumeUnfinished(ctx context.Context) (int, error) {
	matches, err := s.store.ListUnsettledMatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unsettled matches: %w", err)
	}
	resumed := 0
	for _, m := range matches {
		if s.isRunning(m.ID) {
			continue
		}
		if m.IsFinished {
			if err := s.settle(s.ctx, m); err != nil {
				s.log.Error("settle match failed", "match_id", m.ID, "err", err)
			}
			continue
		}
		home, err := s.store.GetTeam(ctx, m.HomeTeamID)
		if err != nil {
			s.log.Warn("resume skipped", "match_id", m.ID, "err", err)
			continue
		}
		away, err := s.store.GetTeam(ctx, m.AwayTeamID)
		if err != nil {
			s.log.Warn("resume skipped", "match_id", m.ID, "err", err)
			continue
		}
		s.startSimulation(m, home, away)
		resumed++
	}
	if resumed > 0 {
		s.log.Info("matches resumed", "count", resumed)
	}
	return resumed, nil
}

func (s *Service) isRunning(id uuid.UUID) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	_, ok := s.running[id]
	return ok
}

func (s *Service) startSimulation(m *Match, home, away *Team) {
	done := make(chan struct{})
	s.runMu.Lock()
	s.running[m.ID] = done
	s.runMu.Unlock()

	sim := &simulation{
		svc:   s,
		match: m,
		home:  home,
		away:  away,
		rng:   s.newMatchRand(),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.runMu.Lock()
			delete(s.running, m.ID)
			s.runMu.Unlock()
			close(done)
		}()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("match simulation panicked", "match_id", m.ID, "panic", r)
			}
		}()
		if err := sim.run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("match simulation failed", "match_id", m.ID, "minute", m.ClockMinute, "err", err)
		}
	}()
}

// waitForMatches blocks until every listed match that is still simulating in
// this process has stopped.
func (s *Service) waitForMatches(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		s.runMu.Lock()
		done, ok := s.running[id]
		s.runMu.Unlock()
		if !ok {
			continue
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

type simulation struct {
	svc   *Service
	match *Match
	home  *Team
	away  *Team
	rng   *mathrand.Rand
}

func (sim *simulation) run(ctx context.Context) error {
	s := sim.svc
	m := sim.match
	for m.ClockMinute < MatchMinutes {
		if err := sim.wait(ctx); err != nil {
			return err
		}
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.TeamOpTimeout)
		sim.tick(opCtx, m.ClockMinute+1)
		cancel()
	}
	return s.settle(ctx, m)
}

func (sim *simulation) wait(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return sleepWithContext(ctx, sim.svc.clock, sim.svc.opts.TickInterval)
}

// tick simulates one minute, persists the match and publishes the update.
func (sim *simulation) tick(ctx context.Context, minute int) {
	s := sim.svc
	m := sim.match
	if sim.rng.Float64() < EventProbability {
		ev := sim.drawEvent(minute)
		sim.apply(ctx, &ev)
		m.Events = append(m.Events, ev)
	}
	m.ClockMinute = minute
	if minute == MatchMinutes {
		m.IsFinished = true
		m.FinishedAt = s.clock.Now()
	}
	if err := s.store.SaveMatch(ctx, m); err != nil {
		s.log.Warn("save match failed", "match_id", m.ID, "minute", minute, "err", err)
	}
	if err := s.pub.Publish(ctx, m.ID, m.Update()); err != nil {
		s.log.Debug("publish match update failed", "match_id", m.ID, "minute", minute, "err", err)
	}
	if m.IsFinished {
		s.log.Info("match finished", "match_id", m.ID, "home", m.HomeTeamName, "away", m.AwayTeamName,
			"score_home", m.Score.Home, "score_away", m.Score.Away)
	}
}

// homeProbability is the chance that an event belongs to the home side.
func homeProbability(homePower, awayPower int) float64 {
	h := float64(homePower) * HomeAdvantage
	total := h + float64(awayPower)
	if total <= 0 {
		return 0.5
	}
	return h / total
}

func (sim *simulation) drawEvent(minute int) MatchEvent {
	ev := MatchEvent{
		Minute: minute,
		Type:   eventTable.Pick(sim.rng.Float64()),
		Side:   SideAway,
	}
	if sim.rng.Float64() < homeProbability(sim.home.TeamPower, sim.away.TeamPower) {
		ev.Side = SideHome
	}
	team := sim.side(ev.Side)
	ev.PlayerName = UnknownPlayerName
	if n := len(team.Roster); n > 0 {
		p := team.Roster[sim.rng.Intn(n)]
		id := p.ID
		ev.PlayerID = &id
		ev.PlayerName = p.Name
	}
	if ev.Type == EventPenalty {
		ev.Converted = sim.rng.Float64() < PenaltyConversion
	}
	ev.Description = describeEvent(ev, team.Name)
	return ev
}

func (sim *simulation) side(side Side) *Team {
	if side == SideHome {
		return sim.home
	}
	return sim.away
}

func (sim *simulation) apply(ctx context.Context, ev *MatchEvent) {
	s := sim.svc
	m := sim.match
	team := sim.side(ev.Side)
	switch ev.Type {
	case EventGoal:
		m.Score.add(ev.Side)
	case EventPenalty:
		if ev.Converted {
			m.Score.add(ev.Side)
		}
	case EventRedCard:
		team.TeamPower = redCardPower(team.TeamPower)
		_, err := s.mutateTeam(ctx, team.ID, func(t *Team) error {
			t.TeamPower = redCardPower(t.TeamPower)
			return nil
		})
		if err != nil {
			s.log.Warn("red card penalty not saved", "match_id", m.ID, "team_id", team.ID, "err", err)
		}
	case EventInjury:
		if ev.PlayerID == nil {
			return
		}
		playerID := *ev.PlayerID
		until := s.clock.Now().Add(InjuryLength)
		markInjured(team, playerID, until)
		_, err := s.mutateTeam(ctx, team.ID, func(t *Team) error {
			markInjured(t, playerID, until)
			return nil
		})
		if err != nil {
			s.log.Warn("injury not saved", "match_id", m.ID, "team_id", team.ID, "player_id", playerID, "err", err)
		}
	}
}

func (sc *Score) add(side Side) {
	if side == SideHome {
		sc.Home++
		return
	}
	sc.Away++
}

// redCardPower lowers power by the red card penalty without going below the
// floor. A team already at or below the floor is left alone.
func redCardPower(power int) int {
	if power <= TeamPowerFloor {
		return power
	}
	return max(TeamPowerFloor, power-RedCardPenalty)
}

func markInjured(t *Team, playerID uuid.UUID, until time.Time) {
	if idx := t.PlayerIndex(playerID); idx >= 0 {
		t.Roster[idx].IsInjured = true
		t.Roster[idx].InjuryEndsAt = until
	}
}

func describeEvent(ev MatchEvent, teamName string) string {
	switch ev.Type {
	case EventGoal:
		return fmt.Sprintf("%d' GOAL! %s scores for %s", ev.Minute, ev.PlayerName, teamName)
	case EventYellowCard:
		return fmt.Sprintf("%d' Yellow card for %s (%s)", ev.Minute, ev.PlayerName, teamName)
	case EventRedCard:
		return fmt.Sprintf("%d' Red card! %s (%s) is sent off", ev.Minute, ev.PlayerName, teamName)
	case EventInjury:
		return fmt.Sprintf("%d' %s (%s) goes down injured", ev.Minute, ev.PlayerName, teamName)
	case EventPenalty:
		if ev.Converted {
			return fmt.Sprintf("%d' Penalty scored by %s for %s", ev.Minute, ev.PlayerName, teamName)
		}
		return fmt.Sprintf("%d' Penalty missed by %s (%s)", ev.Minute, ev.PlayerName, teamName)
	case EventCorner:
		return fmt.Sprintf("%d' Corner for %s, taken by %s", ev.Minute, teamName, ev.PlayerName)
	case EventFreeKick:
		return fmt.Sprintf("%d' Free kick for %s, %s stands over the ball", ev.Minute, teamName, ev.PlayerName)
	default:
		return fmt.Sprintf("%d' Foul by %s (%s)", ev.Minute, ev.PlayerName, teamName)
	}
}

// settle folds a finished match into both teams' standings and credits match
// day income. Each side is settled once: the team remembers the match id in the
// same write that credits it, so a lost match save cannot credit twice.
func (s *Service) settle(ctx context.Context, m *Match) error {
	if !m.IsFinished || m.Settled() {
		return nil
	}
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*s.opts.TeamOpTimeout)
	defer cancel()

	sides := []struct {
		settled *bool
		teamID  uuid.UUID
		scored  int
		against int
		income  []FacilityType
	}{
		{&m.HomeSettled, m.HomeTeamID, m.Score.Home, m.Score.Away, homeIncomeFacilities},
		{&m.AwaySettled, m.AwayTeamID, m.Score.Away, m.Score.Home, awayIncomeFacilities},
	}
	var errs []error
	for _, side := range sides {
		if *side.settled {
			continue
		}
		_, err := s.mutateTeam(opCtx, side.teamID, func(t *Team) error {
			if slices.Contains(t.SettledMatches, m.ID) {
				return nil
			}
			applyResult(&t.League, side.scored, side.against)
			s.tables.MatchIncome(t, side.income)
			t.SettledMatches = append(t.SettledMatches, m.ID)
			if n := len(t.SettledMatches); n > settledMatchMemory {
				t.SettledMatches = slices.Clone(t.SettledMatches[n-settledMatchMemory:])
			}
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			s.log.Warn("settle skipped missing team", "match_id", m.ID, "team_id", side.teamID)
			err = nil
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*side.settled = true
		if err := s.store.SaveMatch(opCtx, m); err != nil {
			errs = append(errs, fmt.Errorf("save settlement: %w", err))
		}
	}
	return errors.Join(errs...)
}
