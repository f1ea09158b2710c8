package game

import (
	"fmt"
	mathrand "math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	baseKeeperOverall  = 70
	baseOutfieldMin    = 65
	baseOutfieldSpread = 10
	recruitCostPerOvr  = 30
	defaultCoachName   = "Caretaker Coach"
	defaultCoachRating = 1
)

var baseOutfieldPositions = []Position{
	PositionDF, PositionDF, PositionDF, PositionDF,
	PositionMF, PositionMF, PositionMF, PositionMF,
	PositionFW, PositionFW,
}

var (
	firstNames = []string{"Ali", "Marco", "Daniel", "Reza", "Luca", "Jonas", "Mateo", "Kofi", "Yuki", "Sami", "Tomas", "Amir", "Nico", "Omar", "Felix"}
	lastNames  = []string{"Karimi", "Rossi", "Silva", "Novak", "Jensen", "Mensah", "Tanaka", "Haddad", "Moreau", "Becker", "Costa", "Nouri", "Rahimi", "Vidal", "Larsen"}
)

func playerName(rng *mathrand.Rand) string {
	return firstNames[rng.Intn(len(firstNames))] + " " + lastNames[rng.Intn(len(lastNames))]
}

func clampRating(v int) int {
	return max(1, min(99, v))
}

// skillsFor spreads a player's overall across the seven attributes with a
// bias toward what the position needs.
func skillsFor(rng *mathrand.Rand, pos Position, overall int) Skills {
	jitter := func(bias int) int {
		return clampRating(overall + bias + rng.Intn(11) - 5)
	}
	switch pos {
	case PositionGK:
		return Skills{Speed: jitter(-15), Shot: jitter(-25), Pass: jitter(-5), Stamina: jitter(0), Defense: jitter(10), Dribble: jitter(-20), Physical: jitter(5)}
	case PositionDF:
		return Skills{Speed: jitter(-2), Shot: jitter(-12), Pass: jitter(-3), Stamina: jitter(3), Defense: jitter(10), Dribble: jitter(-8), Physical: jitter(8)}
	case PositionFW:
		return Skills{Speed: jitter(6), Shot: jitter(10), Pass: jitter(-2), Stamina: jitter(0), Defense: jitter(-15), Dribble: jitter(6), Physical: jitter(0)}
	default:
		return Skills{Speed: jitter(0), Shot: jitter(0), Pass: jitter(8), Stamina: jitter(6), Defense: jitter(-3), Dribble: jitter(4), Physical: jitter(-2)}
	}
}

func newPlayer(rng *mathrand.Rand, pos Position, overall, age int, contract Contract, now time.Time) Player {
	overall = clampRating(overall)
	return Player{
		ID:       uuid.New(),
		Name:     playerName(rng),
		Age:      age,
		Overall:  overall,
		Position: pos,
		Skills:   skillsFor(rng, pos, overall),
		Contract: contract,
		JoinedAt: now,
		AgedAt:   now,
	}
}

// baseRoster is the starting eleven every new team receives. Base players
// never lose their place to contract expiry.
func baseRoster(rng *mathrand.Rand, now time.Time) []Player {
	contract := Contract{ExpiresAt: now.Add(PlayerContractLength), IsBasePlayer: true}
	roster := make([]Player, 0, 1+len(baseOutfieldPositions))
	gk := contract
	gk.OriginalCost = baseKeeperOverall * recruitCostPerOvr
	roster = append(roster, newPlayer(rng, PositionGK, baseKeeperOverall, 20+rng.Intn(12), gk, now))
	for _, pos := range baseOutfieldPositions {
		ovr := baseOutfieldMin + rng.Intn(baseOutfieldSpread)
		c := contract
		c.OriginalCost = int64(ovr) * recruitCostPerOvr
		roster = append(roster, newPlayer(rng, pos, ovr, 19+rng.Intn(14), c, now))
	}
	return roster
}

func defaultCoach(now time.Time) Coach {
	return Coach{
		Name:    defaultCoachName,
		Quality: defaultCoachRating,
		Contract: Contract{
			ExpiresAt: now.Add(CoachContractLength),
		},
	}
}

func newTeam(rng *mathrand.Rand, name string, tier Tier, now time.Time) *Team {
	t := &Team{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(name),
		Coins:        StarterCoins,
		Banknotes:    StarterBanknotes,
		Roster:       baseRoster(rng, now),
		Coach:        defaultCoach(now),
		Facilities:   make(map[FacilityType]Facility, len(facilityTypes)),
		League:       Standing{Tier: tier},
		MonthlyFires: MonthlyFires{Since: now},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, ft := range facilityTypes {
		t.Facilities[ft] = newFacility(now)
	}
	t.RecomputePower()
	return t
}

func recruitYouth(t *Team, tables *Tables, rng *mathrand.Rand, now time.Time) (Player, error) {
	if len(t.Roster) >= MaxRosterSize {
		return Player{}, fmt.Errorf("%w: max %d players", ErrRosterFull, MaxRosterSize)
	}
	camp, _ := facility(t, FacilityYouthCamp, now)
	overall := tables.YouthPlayerOverall(camp.Level)
	p := newPlayer(rng, positionTable.Pick(rng.Float64()), overall, YouthRecruitAge, Contract{
		ExpiresAt:    now.Add(PlayerContractLength),
		OriginalCost: int64(overall) * recruitCostPerOvr,
	}, now)
	t.Roster = append(t.Roster, p)
	t.RecomputePower()
	return p, nil
}

type SigningInput struct {
	Name     string   `json:"name"`
	Age      int      `json:"age"`
	Overall  int      `json:"overall"`
	Position Position `json:"position"`
	Cost     int64    `json:"cost"`
}

func (in SigningInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: player name is required", ErrInvalidInput)
	}
	if in.Age < YouthRecruitAge || in.Age >= RetirementAge {
		return fmt.Errorf("%w: player age must be between %d and %d", ErrInvalidInput, YouthRecruitAge, RetirementAge-1)
	}
	if in.Overall < 1 || in.Overall > 99 {
		return fmt.Errorf("%w: player overall must be between 1 and 99", ErrInvalidInput)
	}
	switch in.Position {
	case PositionGK, PositionDF, PositionMF, PositionFW:
	default:
		return fmt.Errorf("%w: unknown position %q", ErrInvalidInput, in.Position)
	}
	if in.Cost < 0 {
		return fmt.Errorf("%w: cost must be >= 0", ErrInvalidInput)
	}
	return nil
}

// signPlayer buys a ready-made player from the transfer shop.
func signPlayer(t *Team, in SigningInput, rng *mathrand.Rand, now time.Time) (Player, error) {
	if len(t.Roster) >= MaxRosterSize {
		return Player{}, fmt.Errorf("%w: max %d players", ErrRosterFull, MaxRosterSize)
	}
	if t.Coins < in.Cost {
		return Player{}, fmt.Errorf("%w: player costs %d coins, have %d", ErrInsufficientFunds, in.Cost, t.Coins)
	}
	p := newPlayer(rng, in.Position, in.Overall, in.Age, Contract{
		ExpiresAt:    now.Add(PlayerContractLength),
		OriginalCost: in.Cost,
	}, now)
	p.Name = strings.TrimSpace(in.Name)
	t.Coins -= in.Cost
	t.Roster = append(t.Roster, p)
	t.RecomputePower()
	return p, nil
}

func rolloverFires(t *Team, now time.Time) {
	since := t.MonthlyFires.Since
	if since.Year() != now.Year() || since.Month() != now.Month() {
		t.MonthlyFires = MonthlyFires{Since: now}
	}
}

// firePlayer removes a player and returns how many fires remain this month.
func firePlayer(t *Team, playerID uuid.UUID, now time.Time) (int, error) {
	rolloverFires(t, now)
	if t.MonthlyFires.Count >= MonthlyFireLimit {
		return 0, fmt.Errorf("%w: %d per month", ErrFireLimitExceeded, MonthlyFireLimit)
	}
	idx := t.PlayerIndex(playerID)
	if idx < 0 {
		return 0, ErrPlayerNotFound
	}
	t.Roster = append(t.Roster[:idx], t.Roster[idx+1:]...)
	t.MonthlyFires.Count++
	t.RecomputePower()
	return MonthlyFireLimit - t.MonthlyFires.Count, nil
}

type RenewalResult struct {
	Cost      int64     `json:"cost"`
	ExpiresAt time.Time `json:"expires_at"`
	Coins     int64     `json:"coins"`
}

func renewContract(t *Team, c *Contract, now time.Time, length time.Duration) (RenewalResult, error) {
	cost := c.RenewalCost()
	if t.Coins < cost {
		return RenewalResult{}, fmt.Errorf("%w: renewal costs %d coins, have %d", ErrInsufficientFunds, cost, t.Coins)
	}
	t.Coins -= cost
	c.ExpiresAt = now.Add(length)
	return RenewalResult{Cost: cost, ExpiresAt: c.ExpiresAt, Coins: t.Coins}, nil
}

func renewPlayerContract(t *Team, playerID uuid.UUID, now time.Time) (RenewalResult, error) {
	idx := t.PlayerIndex(playerID)
	if idx < 0 {
		return RenewalResult{}, ErrPlayerNotFound
	}
	return renewContract(t, &t.Roster[idx].Contract, now, PlayerContractLength)
}

func renewCoachContract(t *Team, now time.Time) (RenewalResult, error) {
	return renewContract(t, &t.Coach.Contract, now, PlayerContractLength)
}

type MaintenanceResult struct {
	Aged     int  `json:"aged"`
	Retired  int  `json:"retired"`
	Released int  `json:"released"`
	Healed   int  `json:"healed"`
	CoachOut bool `json:"coach_out"`
}

func (r MaintenanceResult) Changed() bool {
	return r.Aged+r.Retired+r.Released+r.Healed > 0 || r.CoachOut
}

const yearLength = 365 * 24 * time.Hour

// maintainSquad applies the daily squad rules: ageing, retirement, expiry of
// non-base contracts, injury recovery and the coach fallback.
func maintainSquad(t *Team, now time.Time) MaintenanceResult {
	var res MaintenanceResult
	kept := t.Roster[:0]
	for _, p := range t.Roster {
		for !p.AgedAt.IsZero() && now.Sub(p.AgedAt) >= yearLength {
			p.Age++
			p.AgedAt = p.AgedAt.Add(yearLength)
			res.Aged++
		}
		switch {
		case p.Age >= RetirementAge:
			res.Retired++
			continue
		case !p.Contract.IsBasePlayer && p.Contract.Expired(now):
			res.Released++
			continue
		}
		if p.IsInjured && !now.Before(p.InjuryEndsAt) {
			p.IsInjured = false
			p.InjuryEndsAt = time.Time{}
			res.Healed++
		}
		kept = append(kept, p)
	}
	t.Roster = kept
	if res.Retired+res.Released > 0 {
		t.RecomputePower()
	}
	if t.Coach.Contract.Expired(now) {
		t.Coach = defaultCoach(now)
		res.CoachOut = true
	}
	rolloverFires(t, now)
	return res
}
