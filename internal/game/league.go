package game

import (
	"bytes"
	"slices"

	"github.com/google/uuid"
)

const (
	promotionSlots  = 2
	relegationSlots = 2
	prizePlaces     = 3
)

type Fixture struct {
	Home uuid.UUID `json:"home"`
	Away uuid.UUID `json:"away"`
}

// GenerateFixtures builds a double round-robin: every pair i<j at home for
// teams[i], followed by the mirrored return legs in the same order.
func GenerateFixtures(teams []uuid.UUID) []Fixture {
	n := len(teams)
	if n < 2 {
		return nil
	}
	out := make([]Fixture, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, Fixture{Home: teams[i], Away: teams[j]})
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, Fixture{Home: teams[j], Away: teams[i]})
		}
	}
	return out
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// compareStandings orders by points desc, goals for desc, goals against asc,
// then team ID so that the order is total.
func compareStandings(a, b *Team) int {
	if a.League.Points != b.League.Points {
		return b.League.Points - a.League.Points
	}
	if a.League.GoalsFor != b.League.GoalsFor {
		return b.League.GoalsFor - a.League.GoalsFor
	}
	if a.League.GoalsAgainst != b.League.GoalsAgainst {
		return a.League.GoalsAgainst - b.League.GoalsAgainst
	}
	return compareIDs(a.ID, b.ID)
}

func SortStandings(teams []*Team) {
	slices.SortStableFunc(teams, compareStandings)
}

func LeagueRows(teams []*Team) []LeagueRow {
	sorted := slices.Clone(teams)
	SortStandings(sorted)
	rows := make([]LeagueRow, 0, len(sorted))
	for i, t := range sorted {
		rows = append(rows, LeagueRow{
			Rank:          i + 1,
			TeamID:        t.ID,
			TeamName:      t.Name,
			TeamPower:     t.TeamPower,
			Points:        t.League.Points,
			GoalsFor:      t.League.GoalsFor,
			GoalsAgainst:  t.League.GoalsAgainst,
			MatchesPlayed: t.League.MatchesPlayed,
		})
	}
	return rows
}

// applyResult folds one side's final score into its standing.
func applyResult(st *Standing, scored, conceded int) {
	switch {
	case scored > conceded:
		st.Points += 3
	case scored == conceded:
		st.Points++
	}
	st.GoalsFor += scored
	st.GoalsAgainst += conceded
	st.MatchesPlayed++
}

// PlanSeason decides promotions, relegations and prizes from a snapshot of
// every tier taken before any team moves. A team moves at most once.
func PlanSeason(snapshot map[Tier][]*Team, tables *Tables) SeasonReport {
	var report SeasonReport
	for _, tier := range Tiers() {
		teams := slices.Clone(snapshot[tier])
		SortStandings(teams)

		promoted := make(map[uuid.UUID]bool, promotionSlots)
		if next, ok := tier.Next(); ok {
			for i := 0; i < promotionSlots && i < len(teams); i++ {
				promoted[teams[i].ID] = true
				report.Promoted = append(report.Promoted, TierMove{TeamID: teams[i].ID, From: tier, To: next})
			}
		}
		// The top tier neither promotes nor relegates.
		if prev, ok := tier.Prev(); ok && tier != HighestTier {
			moved := 0
			for i := len(teams) - 1; i >= 0 && moved < relegationSlots; i-- {
				if promoted[teams[i].ID] {
					break
				}
				report.Relegated = append(report.Relegated, TierMove{TeamID: teams[i].ID, From: tier, To: prev})
				moved++
			}
		}
		if tier == HighestTier || tables == nil {
			continue
		}
		for i := 0; i < prizePlaces && i < len(teams); i++ {
			prize, ok := tables.Prize(tier, i+1)
			if !ok {
				break
			}
			report.Prizes = append(report.Prizes, PrizeAward{
				TeamID:    teams[i].ID,
				Tier:      tier,
				Place:     i + 1,
				Coins:     prize.Coins,
				Banknotes: prize.Banknotes,
			})
		}
	}
	return report
}
