package game

import (
	"fmt"
	"strings"
)

// Tier is a rung of the league ladder. Zero is the lowest tier.
type Tier int

const (
	TierLocal3 Tier = iota
	TierLocal2
	TierLocal1
	TierProvincial3
	TierProvincial2
	TierProvincial1
	TierPremier3
	TierPremier2
	TierPremier1
	TierStars
)

const (
	LowestTier  = TierLocal3
	HighestTier = TierStars
)

var tierNames = [...]string{
	"local-3",
	"local-2",
	"local-1",
	"provincial-3",
	"provincial-2",
	"provincial-1",
	"premier-3",
	"premier-2",
	"premier-1",
	"stars",
}

// Tiers returns the ladder from lowest to highest.
func Tiers() []Tier {
	out := make([]Tier, 0, len(tierNames))
	for t := LowestTier; t <= HighestTier; t++ {
		out = append(out, t)
	}
	return out
}

func ParseTier(name string) (Tier, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range tierNames {
		if n == name {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTier, name)
}

func (t Tier) Valid() bool {
	return t >= LowestTier && t <= HighestTier
}

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// Next returns the tier above t, or false at the top of the ladder.
func (t Tier) Next() (Tier, bool) {
	if t >= HighestTier {
		return t, false
	}
	return t + 1, true
}

// Prev returns the tier below t, or false at the bottom of the ladder.
func (t Tier) Prev() (Tier, bool) {
	if t <= LowestTier {
		return t, false
	}
	return t - 1, true
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
