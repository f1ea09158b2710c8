package game

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type FacilityTable struct {
	// Production is coins per hour, indexed by level-1.
	Production []int64 `yaml:"production"`
	// UpgradeCost is indexed by the current level.
	UpgradeCost []int64 `yaml:"upgrade_cost"`
}

type Prize struct {
	Coins     int64 `yaml:"coins" json:"coins"`
	Banknotes int64 `yaml:"banknotes" json:"banknotes"`
}

// Tables holds the game balance numbers. The zero value is not usable; start
// from DefaultTables or LoadTables.
type Tables struct {
	Facilities   map[FacilityType]FacilityTable `yaml:"facilities"`
	YouthOverall []int                          `yaml:"youth_overall"`
	Prizes       map[string][]Prize             `yaml:"prizes"`
}

var (
	defaultProductionBase = map[FacilityType]int64{
		FacilitySponsor:   60,
		FacilityStadium:   100,
		FacilityTVRights:  80,
		FacilityYouthCamp: 40,
	}
	defaultUpgradeBase = map[FacilityType]int64{
		FacilitySponsor:   500,
		FacilityStadium:   800,
		FacilityTVRights:  650,
		FacilityYouthCamp: 400,
	}
)

func DefaultTables() *Tables {
	tb := &Tables{
		Facilities:   make(map[FacilityType]FacilityTable, len(facilityTypes)),
		YouthOverall: make([]int, MaxFacilityLevel),
		Prizes:       make(map[string][]Prize, len(tierNames)-1),
	}
	for _, ft := range facilityTypes {
		prod := make([]int64, MaxFacilityLevel)
		cost := make([]int64, MaxFacilityLevel)
		for lvl := 1; lvl <= MaxFacilityLevel; lvl++ {
			l := int64(lvl)
			prod[lvl-1] = defaultProductionBase[ft] * l * (l + 9) / 10
			if lvl < MaxFacilityLevel {
				cost[lvl] = defaultUpgradeBase[ft] * l * l
			}
		}
		tb.Facilities[ft] = FacilityTable{Production: prod, UpgradeCost: cost}
	}
	for lvl := 1; lvl <= MaxFacilityLevel; lvl++ {
		tb.YouthOverall[lvl-1] = 50 + 2*(lvl-1)
	}
	for _, tier := range Tiers() {
		if tier == HighestTier {
			continue
		}
		base := int64(tier) + 1
		tb.Prizes[tier.String()] = []Prize{
			{Coins: 5_000 * base, Banknotes: base + 2},
			{Coins: 3_000 * base, Banknotes: (base + 2) / 2},
			{Coins: 1_500 * base, Banknotes: 1},
		}
	}
	return tb
}

// LoadTables overlays the YAML file at path onto the defaults. Sections missing
// from the file keep their default values.
func LoadTables(path string) (*Tables, error) {
	tb := DefaultTables()
	if path == "" {
		return tb, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read balance file: %w", err)
	}
	var overlay Tables
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("parse balance file: %w", err)
	}
	for ft, table := range overlay.Facilities {
		cur := tb.Facilities[ft]
		if len(table.Production) > 0 {
			cur.Production = table.Production
		}
		if len(table.UpgradeCost) > 0 {
			cur.UpgradeCost = table.UpgradeCost
		}
		tb.Facilities[ft] = cur
	}
	if len(overlay.YouthOverall) > 0 {
		tb.YouthOverall = overlay.YouthOverall
	}
	for name, prizes := range overlay.Prizes {
		tb.Prizes[name] = prizes
	}
	if err := tb.Validate(); err != nil {
		return nil, fmt.Errorf("balance file %s: %w", path, err)
	}
	return tb, nil
}

func (tb *Tables) Validate() error {
	for ft := range tb.Facilities {
		if _, err := ParseFacilityType(string(ft)); err != nil {
			return err
		}
	}
	for _, ft := range facilityTypes {
		table, ok := tb.Facilities[ft]
		if !ok {
			return fmt.Errorf("facility %s: missing table", ft)
		}
		if len(table.Production) != MaxFacilityLevel {
			return fmt.Errorf("facility %s: production needs %d levels, got %d", ft, MaxFacilityLevel, len(table.Production))
		}
		if len(table.UpgradeCost) != MaxFacilityLevel {
			return fmt.Errorf("facility %s: upgrade_cost needs %d entries, got %d", ft, MaxFacilityLevel, len(table.UpgradeCost))
		}
		for i, rate := range table.Production {
			if rate < 0 {
				return fmt.Errorf("facility %s: negative production at level %d", ft, i+1)
			}
		}
		for i, cost := range table.UpgradeCost {
			if cost < 0 {
				return fmt.Errorf("facility %s: negative upgrade cost at level %d", ft, i)
			}
		}
	}
	if len(tb.YouthOverall) != MaxFacilityLevel {
		return fmt.Errorf("youth_overall needs %d levels, got %d", MaxFacilityLevel, len(tb.YouthOverall))
	}
	for i, ovr := range tb.YouthOverall {
		if ovr < 1 || ovr > 99 {
			return fmt.Errorf("youth_overall level %d: %d out of range", i+1, ovr)
		}
	}
	for name := range tb.Prizes {
		if _, err := ParseTier(name); err != nil {
			return fmt.Errorf("prizes: %w", err)
		}
	}
	return nil
}

func (tb *Tables) ProductionRate(ft FacilityType, level int) (int64, error) {
	table, ok := tb.Facilities[ft]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFacility, ft)
	}
	if level < 1 {
		level = 1
	}
	if level > len(table.Production) {
		level = len(table.Production)
	}
	return table.Production[level-1], nil
}

// UpgradeCost returns the price of moving from level to level+1.
func (tb *Tables) UpgradeCost(ft FacilityType, level int) (int64, error) {
	table, ok := tb.Facilities[ft]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFacility, ft)
	}
	if level < 0 || level >= len(table.UpgradeCost) {
		return 0, nil
	}
	return table.UpgradeCost[level], nil
}

func (tb *Tables) YouthPlayerOverall(level int) int {
	if level < 1 {
		level = 1
	}
	if level > len(tb.YouthOverall) {
		level = len(tb.YouthOverall)
	}
	return tb.YouthOverall[level-1]
}

// Prize returns the award for a 1-based finishing place in tier.
func (tb *Tables) Prize(tier Tier, place int) (Prize, bool) {
	prizes := tb.Prizes[tier.String()]
	if place < 1 || place > len(prizes) {
		return Prize{}, false
	}
	return prizes[place-1], true
}
