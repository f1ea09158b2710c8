package game

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

type FacilityType string

const (
	FacilitySponsor   FacilityType = "sponsor"
	FacilityStadium   FacilityType = "stadium"
	FacilityTVRights  FacilityType = "tvRights"
	FacilityYouthCamp FacilityType = "youthCamp"
)

var facilityTypes = []FacilityType{FacilitySponsor, FacilityStadium, FacilityTVRights, FacilityYouthCamp}

// Home sides earn from every facility, away sides never from the stadium.
var (
	homeIncomeFacilities = []FacilityType{FacilitySponsor, FacilityStadium, FacilityTVRights, FacilityYouthCamp}
	awayIncomeFacilities = []FacilityType{FacilitySponsor, FacilityTVRights, FacilityYouthCamp}
)

// settledMatchMemory bounds Team.SettledMatches.
const settledMatchMemory = 64

func FacilityTypes() []FacilityType {
	return append([]FacilityType(nil), facilityTypes...)
}

func ParseFacilityType(s string) (FacilityType, error) {
	s = strings.TrimSpace(s)
	for _, ft := range facilityTypes {
		if strings.EqualFold(string(ft), s) {
			return ft, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFacility, s)
}

type Position string

const (
	PositionGK Position = "GK"
	PositionDF Position = "DF"
	PositionMF Position = "MF"
	PositionFW Position = "FW"
)

type Skills struct {
	Speed    int `json:"speed"`
	Shot     int `json:"shot"`
	Pass     int `json:"pass"`
	Stamina  int `json:"stamina"`
	Defense  int `json:"defense"`
	Dribble  int `json:"dribble"`
	Physical int `json:"physical"`
}

type Contract struct {
	ExpiresAt    time.Time `json:"expires_at"`
	OriginalCost int64     `json:"original_cost"`
	IsBasePlayer bool      `json:"is_base_player"`
}

func (c Contract) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

func (c Contract) RenewalCost() int64 {
	return c.OriginalCost / 3
}

type Player struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Age          int       `json:"age"`
	Overall      int       `json:"overall"`
	Position     Position  `json:"position"`
	Skills       Skills    `json:"skills"`
	Contract     Contract  `json:"contract"`
	IsInjured    bool      `json:"is_injured"`
	InjuryEndsAt time.Time `json:"injury_ends_at,omitzero"`
	JoinedAt     time.Time `json:"joined_at"`
	AgedAt       time.Time `json:"aged_at"`
}

type Coach struct {
	Name     string   `json:"name"`
	Quality  int      `json:"quality"`
	Contract Contract `json:"contract"`
}

// Facility keeps its production as coin-seconds so that partial hours never
// get lost between materializations.
type Facility struct {
	Level          int       `json:"level"`
	LastCollection time.Time `json:"last_collection"`
	Accrued        int64     `json:"accrued_coin_seconds"`
	AccruedAt      time.Time `json:"accrued_at,omitzero"`
}

type Standing struct {
	Tier          Tier `json:"tier"`
	Points        int  `json:"points"`
	GoalsFor      int  `json:"goals_for"`
	GoalsAgainst  int  `json:"goals_against"`
	MatchesPlayed int  `json:"matches_played"`
}

type MonthlyFires struct {
	Count int       `json:"count"`
	Since time.Time `json:"since"`
}

type Team struct {
	ID             uuid.UUID                 `json:"id"`
	Name           string                    `json:"name"`
	Version        int64                     `json:"version"`
	TeamPower      int                       `json:"team_power"`
	Coins          int64                     `json:"coins"`
	Banknotes      int64                     `json:"banknotes"`
	Roster         []Player                  `json:"roster"`
	Coach          Coach                     `json:"coach"`
	Facilities     map[FacilityType]Facility `json:"facilities"`
	League         Standing                  `json:"league"`
	MonthlyFires   MonthlyFires              `json:"monthly_fires"`
	// SettledMatches holds the most recent match results credited to the team.
	SettledMatches []uuid.UUID               `json:"settled_matches,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

func (t *Team) Clone() *Team {
	if t == nil {
		return nil
	}
	out := *t
	out.Roster = slices.Clone(t.Roster)
	out.SettledMatches = slices.Clone(t.SettledMatches)
	out.Facilities = make(map[FacilityType]Facility, len(t.Facilities))
	for k, v := range t.Facilities {
		out.Facilities[k] = v
	}
	return &out
}

// RecomputePower sets TeamPower to the rounded mean overall of the roster.
func (t *Team) RecomputePower() {
	if len(t.Roster) == 0 {
		t.TeamPower = 0
		return
	}
	sum := 0
	for _, p := range t.Roster {
		sum += p.Overall
	}
	t.TeamPower = int(math.Round(float64(sum) / float64(len(t.Roster))))
}

func (t *Team) PlayerIndex(id uuid.UUID) int {
	for i, p := range t.Roster {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (t *Team) ResetLeagueStats(tier Tier) {
	t.League = Standing{Tier: tier}
}

type EventType string

const (
	EventGoal       EventType = "goal"
	EventYellowCard EventType = "yellowCard"
	EventRedCard    EventType = "redCard"
	EventInjury     EventType = "injury"
	EventPenalty    EventType = "penalty"
	EventFoul       EventType = "foul"
	EventCorner     EventType = "corner"
	EventFreeKick   EventType = "freeKick"
)

type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

type MatchEvent struct {
	Minute      int        `json:"minute"`
	Type        EventType  `json:"type"`
	Side        Side       `json:"side"`
	PlayerID    *uuid.UUID `json:"player_id,omitempty"`
	PlayerName  string     `json:"player_name"`
	Description string     `json:"description"`
	Converted   bool       `json:"converted,omitempty"`
}

type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

type MatchStatus string

const (
	MatchScheduled MatchStatus = "scheduled"
	MatchRunning   MatchStatus = "running"
	MatchFinished  MatchStatus = "finished"
)

type Match struct {
	ID           uuid.UUID    `json:"id"`
	HomeTeamID   uuid.UUID    `json:"home_team_id"`
	AwayTeamID   uuid.UUID    `json:"away_team_id"`
	HomeTeamName string       `json:"home_team_name"`
	AwayTeamName string       `json:"away_team_name"`
	Stadium      string       `json:"stadium"`
	Tier         Tier         `json:"tier"`
	Score        Score        `json:"score"`
	Events       []MatchEvent `json:"events"`
	ClockMinute  int          `json:"clock_minute"`
	IsFinished   bool         `json:"is_finished"`
	HomeSettled  bool         `json:"home_settled"`
	AwaySettled  bool         `json:"away_settled"`
	StartTime    time.Time    `json:"start_time"`
	FinishedAt   time.Time    `json:"finished_at,omitzero"`
}

func (m *Match) Status() MatchStatus {
	switch {
	case m.IsFinished:
		return MatchFinished
	case m.ClockMinute > 0:
		return MatchRunning
	default:
		return MatchScheduled
	}
}

// Settled reports whether the final result has been folded into both teams.
func (m *Match) Settled() bool {
	return m.HomeSettled && m.AwaySettled
}

func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	out := *m
	out.Events = slices.Clone(m.Events)
	return &out
}

// MatchUpdate is the payload emitted after every simulated minute.
type MatchUpdate struct {
	MatchID     uuid.UUID    `json:"match_id"`
	Score       Score        `json:"score"`
	Events      []MatchEvent `json:"events"`
	ClockMinute int          `json:"clock_minute"`
	IsFinished  bool         `json:"is_finished"`
}

func (m *Match) Update() MatchUpdate {
	return MatchUpdate{
		MatchID:     m.ID,
		Score:       m.Score,
		Events:      slices.Clone(m.Events),
		ClockMinute: m.ClockMinute,
		IsFinished:  m.IsFinished,
	}
}

type FacilityStatus struct {
	Type           FacilityType `json:"type"`
	Level          int          `json:"level"`
	Collectable    int64        `json:"collectable"`
	ProductionRate int64        `json:"production_rate"`
	UpgradeCost    int64        `json:"upgrade_cost"`
	MaxLevel       bool         `json:"max_level"`
}

type LeagueRow struct {
	Rank          int       `json:"rank"`
	TeamID        uuid.UUID `json:"team_id"`
	TeamName      string    `json:"team_name"`
	TeamPower     int       `json:"team_power"`
	Points        int       `json:"points"`
	GoalsFor      int       `json:"goals_for"`
	GoalsAgainst  int       `json:"goals_against"`
	MatchesPlayed int       `json:"matches_played"`
}

type TierMove struct {
	TeamID uuid.UUID `json:"team_id"`
	From   Tier      `json:"from"`
	To     Tier      `json:"to"`
}

type PrizeAward struct {
	TeamID    uuid.UUID `json:"team_id"`
	Tier      Tier      `json:"tier"`
	Place     int       `json:"place"`
	Coins     int64     `json:"coins"`
	Banknotes int64     `json:"banknotes"`
}

type SeasonReport struct {
	Promoted  []TierMove   `json:"promoted"`
	Relegated []TierMove   `json:"relegated"`
	Prizes    []PrizeAward `json:"prizes"`
	Failed    int          `json:"failed"`
}

// BatchReport summarizes a sweep over the team population.
type BatchReport struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

type SweepReport struct {
	Fixtures int           `json:"fixtures"`
	Created  int           `json:"created"`
	Failed   int           `json:"failed"`
	Season   *SeasonReport `json:"season,omitempty"`
}
