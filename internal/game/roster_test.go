package game

import (
	"errors"
	mathrand "math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewTeamBaseRoster(t *testing.T) {
	rng := mathrand.New(mathrand.NewSource(7))
	team := newTeam(rng, "  Harbor City ", TierLocal2, testNow)

	if team.Name != "Harbor City" {
		t.Fatalf("name not trimmed: %q", team.Name)
	}
	if len(team.Roster) != 11 {
		t.Fatalf("base roster has %d players", len(team.Roster))
	}
	keepers := 0
	sum := 0
	for _, p := range team.Roster {
		if !p.Contract.IsBasePlayer {
			t.Fatalf("player %s is not a base player", p.Name)
		}
		if p.Position == PositionGK {
			keepers++
			if p.Overall != baseKeeperOverall {
				t.Fatalf("keeper overall %d", p.Overall)
			}
		} else if p.Overall < 65 || p.Overall > 74 {
			t.Fatalf("outfield overall %d out of range", p.Overall)
		}
		sum += p.Overall
	}
	if keepers != 1 {
		t.Fatalf("expected one keeper, got %d", keepers)
	}
	if team.TeamPower != int(float64(sum)/11+0.5) {
		t.Fatalf("team power %d does not match roster mean of %d/11", team.TeamPower, sum)
	}
	if team.Coins != StarterCoins || team.Banknotes != StarterBanknotes {
		t.Fatalf("starting wallet %d/%d", team.Coins, team.Banknotes)
	}
	for _, ft := range FacilityTypes() {
		if team.Facilities[ft].Level != 1 {
			t.Fatalf("facility %s starts at level %d", ft, team.Facilities[ft].Level)
		}
	}
	if team.League.Tier != TierLocal2 || team.Coach.Quality != 1 {
		t.Fatalf("unexpected league/coach: %+v %+v", team.League, team.Coach)
	}
}

func TestRecruitYouth(t *testing.T) {
	tb := DefaultTables()
	rng := mathrand.New(mathrand.NewSource(3))
	team := newTeam(rng, "Youth FC", LowestTier, testNow)
	team.Facilities[FacilityYouthCamp] = Facility{Level: 5, LastCollection: testNow}

	p, err := recruitYouth(team, tb, rng, testNow)
	if err != nil {
		t.Fatalf("recruit: %v", err)
	}
	if p.Age != YouthRecruitAge || p.Overall != tb.YouthPlayerOverall(5) || p.Contract.IsBasePlayer {
		t.Fatalf("unexpected recruit %+v", p)
	}
	if !p.Contract.ExpiresAt.Equal(testNow.Add(PlayerContractLength)) {
		t.Fatalf("recruit contract expires %s", p.Contract.ExpiresAt)
	}
	for len(team.Roster) < MaxRosterSize {
		if _, err := recruitYouth(team, tb, rng, testNow); err != nil {
			t.Fatalf("recruit: %v", err)
		}
	}
	if _, err := recruitYouth(team, tb, rng, testNow); !errors.Is(err, ErrRosterFull) {
		t.Fatalf("expected ErrRosterFull, got %v", err)
	}
}

func TestFirePlayerMonthlyLimit(t *testing.T) {
	rng := mathrand.New(mathrand.NewSource(5))
	team := newTeam(rng, "Fire FC", LowestTier, testNow)

	for want := 2; want >= 0; want-- {
		remaining, err := firePlayer(team, team.Roster[0].ID, testNow)
		if err != nil {
			t.Fatalf("fire: %v", err)
		}
		if remaining != want {
			t.Fatalf("remaining=%d want %d", remaining, want)
		}
	}
	if _, err := firePlayer(team, team.Roster[0].ID, testNow); !errors.Is(err, ErrFireLimitExceeded) {
		t.Fatalf("expected ErrFireLimitExceeded, got %v", err)
	}
	if len(team.Roster) != 8 {
		t.Fatalf("roster size %d after three fires", len(team.Roster))
	}

	nextMonth := testNow.AddDate(0, 1, 0)
	if _, err := firePlayer(team, uuid.New(), nextMonth); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound after rollover, got %v", err)
	}
	if remaining, err := firePlayer(team, team.Roster[0].ID, nextMonth); err != nil || remaining != 2 {
		t.Fatalf("fire after rollover remaining=%d err=%v", remaining, err)
	}
}

func TestRenewContracts(t *testing.T) {
	rng := mathrand.New(mathrand.NewSource(9))
	team := newTeam(rng, "Renew FC", LowestTier, testNow)
	p := team.Roster[3]
	later := testNow.Add(10 * 24 * time.Hour)

	res, err := renewPlayerContract(team, p.ID, later)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if res.Cost != p.Contract.OriginalCost/3 || team.Coins != StarterCoins-res.Cost {
		t.Fatalf("cost=%d coins=%d", res.Cost, team.Coins)
	}
	if !team.Roster[3].Contract.ExpiresAt.Equal(later.Add(PlayerContractLength)) {
		t.Fatalf("contract not extended: %s", team.Roster[3].Contract.ExpiresAt)
	}

	team.Coins = 0
	team.Coach.Contract.OriginalCost = 900
	if _, err := renewCoachContract(team, later); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := renewPlayerContract(team, uuid.New(), later); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestMaintainSquad(t *testing.T) {
	rng := mathrand.New(mathrand.NewSource(11))
	team := newTeam(rng, "Maintain FC", LowestTier, testNow)
	tb := DefaultTables()
	recruit, _ := recruitYouth(team, tb, rng, testNow)

	team.Roster[0].Age = RetirementAge
	team.Roster[1].IsInjured = true
	team.Roster[1].InjuryEndsAt = testNow.Add(InjuryLength)
	team.Roster[2].Age = RetirementAge - 1
	team.Roster[2].AgedAt = testNow.Add(-yearLength - time.Hour)

	now := testNow.Add(PlayerContractLength + InjuryLength)
	res := maintainSquad(team, now)

	if res.Retired != 2 {
		t.Fatalf("retired=%d want 2", res.Retired)
	}
	if res.Released != 1 || team.PlayerIndex(recruit.ID) >= 0 {
		t.Fatalf("expired recruit not released: %+v", res)
	}
	if res.Healed != 1 {
		t.Fatalf("healed=%d want 1", res.Healed)
	}
	if len(team.Roster) != 9 {
		t.Fatalf("roster size %d want 9", len(team.Roster))
	}
	for _, p := range team.Roster {
		if !p.Contract.IsBasePlayer {
			t.Fatalf("non-base player survived expiry")
		}
	}
	before := team.TeamPower
	team.RecomputePower()
	if team.TeamPower != before {
		t.Fatalf("team power not recomputed after roster change")
	}

	team.Coach = Coach{Name: "Expensive", Quality: 5, Contract: Contract{ExpiresAt: now.Add(-time.Hour), OriginalCost: 3000}}
	res = maintainSquad(team, now)
	if !res.CoachOut || team.Coach.Quality != 1 || !team.Coach.Contract.ExpiresAt.Equal(now.Add(CoachContractLength)) {
		t.Fatalf("coach not reset: %+v", team.Coach)
	}
}
