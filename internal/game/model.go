package game

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxRosterSize    = 22
	MaxFacilityLevel = 20
	MonthlyFireLimit = 3
	RetirementAge    = 38
	YouthRecruitAge  = 18

	AccrualCapHours = 10

	StarterCoins     = int64(10_000)
	StarterBanknotes = int64(10)

	PlayerContractLength = 30 * 24 * time.Hour
	CoachContractLength  = 365 * 24 * time.Hour
	InjuryLength         = 7 * 24 * time.Hour

	MatchMinutes      = 90
	EventProbability  = 0.15
	HomeAdvantage     = 1.1
	PenaltyConversion = 0.8
	RedCardPenalty    = 5
	TeamPowerFloor    = 50

	MaxTierTeams = 10

	UnknownPlayerName = "Unknown Player"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrTeamNotFound      = fmt.Errorf("team %w", ErrNotFound)
	ErrPlayerNotFound    = fmt.Errorf("player %w", ErrNotFound)
	ErrMatchNotFound     = fmt.Errorf("match %w", ErrNotFound)
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMaxLevelReached   = errors.New("facility is already at max level")
	ErrRosterFull        = errors.New("roster is full")
	ErrFireLimitExceeded = errors.New("monthly fire limit reached")
	ErrInvalidTier       = errors.New("invalid league tier")
	ErrUnknownFacility   = errors.New("unknown facility type")
	ErrInvalidName       = errors.New("team name must be 3-32 characters")
	ErrInvalidInput      = errors.New("invalid input")
	ErrVersionConflict   = errors.New("team version conflict")
	ErrTxConflict        = errors.New("transaction conflict, retry")
	ErrPersistence       = errors.New("persistence failure")
)

var blockedNameFragments = []string{
	"admin",
	"moderator",
	"support",
}

func ValidateTeamName(name string) error {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 3 || n > 32 {
		return ErrInvalidName
	}
	lower := strings.ToLower(name)
	for _, frag := range blockedNameFragments {
		if strings.Contains(lower, frag) {
			return fmt.Errorf("%w: contains blocked word", ErrInvalidName)
		}
	}
	return nil
}

// IsPolicyError reports whether err is a refusal that callers should surface
// instead of retrying.
func IsPolicyError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrMaxLevelReached),
		errors.Is(err, ErrRosterFull),
		errors.Is(err, ErrFireLimitExceeded),
		errors.Is(err, ErrInvalidTier),
		errors.Is(err, ErrUnknownFacility),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrInvalidInput):
		return true
	}
	return false
}
