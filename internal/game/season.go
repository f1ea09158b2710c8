package game

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SimulateLeagueMatches realizes every fixture of every tier as a match,
// pacing creations by FixtureDelay. It does not wait for matches to finish
// and returns the ids of the matches it created.
func (s *Service) SimulateLeagueMatches(ctx context.Context) (SweepReport, []uuid.UUID, error) {
	var (
		report SweepReport
		ids    []uuid.UUID
	)
	for _, tier := range Tiers() {
		teams, err := s.store.ListTeamsByTier(ctx, tier, MaxTierTeams)
		if err != nil {
			report.Failed++
			s.log.Warn("tier skipped", "job", "leagueSweep", "tier", tier.String(), "err", err)
			continue
		}
		members := make([]uuid.UUID, 0, len(teams))
		for _, t := range teams {
			members = append(members, t.ID)
		}
		fixtures := GenerateFixtures(members)
		report.Fixtures += len(fixtures)
		for _, f := range fixtures {
			if report.Created+report.Failed > 0 {
				if err := sleepWithContext(ctx, s.clock, s.opts.FixtureDelay); err != nil {
					return report, ids, err
				}
			}
			m, err := s.CreateMatch(ctx, f.Home, f.Away)
			if err != nil {
				report.Failed++
				s.log.Warn("fixture skipped", "tier", tier.String(), "home", f.Home, "away", f.Away, "err", err)
				continue
			}
			report.Created++
			ids = append(ids, m.ID)
		}
	}
	return report, ids, ctx.Err()
}

// RunLeagueSweep plays a full round of fixtures. With endSeason set it waits
// for those matches and then runs promotion, relegation and prizes.
func (s *Service) RunLeagueSweep(ctx context.Context, endSeason bool) (SweepReport, error) {
	report, ids, err := s.SimulateLeagueMatches(ctx)
	if err != nil {
		return report, err
	}
	if !endSeason {
		return report, nil
	}
	if err := s.waitForMatches(ctx, ids); err != nil {
		return report, err
	}
	season, err := s.PromoteAndRelegate(ctx)
	if err != nil {
		return report, err
	}
	report.Season = &season
	return report, nil
}

// PromoteAndRelegate closes the season. Standings for every tier are read
// before anything moves, so a team changes tier at most once. The record of
// every team is cleared, including teams that stay in their tier.
func (s *Service) PromoteAndRelegate(ctx context.Context) (SeasonReport, error) {
	snapshot := make(map[Tier][]*Team, len(tierNames))
	for _, tier := range Tiers() {
		teams, err := s.store.ListTeamsByTier(ctx, tier, 0)
		if err != nil {
			return SeasonReport{}, fmt.Errorf("snapshot %s: %w", tier, err)
		}
		snapshot[tier] = teams
	}
	report := PlanSeason(snapshot, s.tables)

	type plan struct {
		tier   Tier
		prizes []PrizeAward
	}
	plans := make(map[uuid.UUID]*plan)
	for tier, teams := range snapshot {
		for _, t := range teams {
			plans[t.ID] = &plan{tier: tier}
		}
	}
	for _, mv := range report.Promoted {
		plans[mv.TeamID].tier = mv.To
	}
	for _, mv := range report.Relegated {
		plans[mv.TeamID].tier = mv.To
	}
	for _, pz := range report.Prizes {
		plans[pz.TeamID].prizes = append(plans[pz.TeamID].prizes, pz)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.SweepConcurrency)
	for id, p := range plans {
		g.Go(func() error {
			_, err := s.mutateTeam(gctx, id, func(t *Team) error {
				for _, pz := range p.prizes {
					t.Coins += pz.Coins
					t.Banknotes += pz.Banknotes
				}
				t.ResetLeagueStats(p.tier)
				return nil
			})
			if err != nil {
				mu.Lock()
				report.Failed++
				mu.Unlock()
				s.log.Warn("season close skipped team", "team_id", id, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	s.log.Info("season closed",
		"promoted", len(report.Promoted), "relegated", len(report.Relegated),
		"prizes", len(report.Prizes), "failed", report.Failed)
	return report, ctx.Err()
}
