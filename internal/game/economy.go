package game

import (
	"fmt"
	"time"
)

const secondsPerHour = int64(3600)

const accrualCapSeconds = AccrualCapHours * secondsPerHour

// accruedUnits is the single accrual formula shared by collection and batch
// materialization. The result is in coin-seconds and never exceeds
// rate*AccrualCapHours hours.
func accruedUnits(f Facility, rate int64, now time.Time) int64 {
	limit := rate * accrualCapSeconds
	secs := int64(now.Truncate(time.Second).Sub(accrualAnchor(f)) / time.Second)
	if secs < 0 {
		secs = 0
	}
	if secs > accrualCapSeconds {
		secs = accrualCapSeconds
	}
	units := min(rate*secs, limit) + f.Accrued
	return min(units, limit)
}

func accrualAnchor(f Facility) time.Time {
	anchor := f.LastCollection
	if f.AccruedAt.After(anchor) {
		anchor = f.AccruedAt
	}
	return anchor.Truncate(time.Second)
}

func newFacility(now time.Time) Facility {
	return Facility{Level: 1, LastCollection: now}
}

// facility returns the record for ft, creating it at level 1 when absent.
func facility(t *Team, ft FacilityType, now time.Time) (Facility, bool) {
	if t.Facilities == nil {
		t.Facilities = make(map[FacilityType]Facility, len(facilityTypes))
	}
	f, ok := t.Facilities[ft]
	if !ok {
		f = newFacility(now)
		t.Facilities[ft] = f
	}
	return f, ok
}

// Collectable returns the whole coins the facility would pay out at now.
func (tb *Tables) Collectable(t *Team, ft FacilityType, now time.Time) (int64, error) {
	f, ok := t.Facilities[ft]
	if !ok {
		if _, err := tb.ProductionRate(ft, 1); err != nil {
			return 0, err
		}
		return 0, nil
	}
	rate, err := tb.ProductionRate(ft, f.Level)
	if err != nil {
		return 0, err
	}
	return accruedUnits(f, rate, now) / secondsPerHour, nil
}

// Collect credits the floored collectable amount to the team and restarts the
// facility's accrual window.
func (tb *Tables) Collect(t *Team, ft FacilityType, now time.Time) (int64, error) {
	rate, err := tb.ProductionRate(ft, 1)
	if err != nil {
		return 0, err
	}
	f, existed := facility(t, ft, now)
	if !existed {
		return 0, nil
	}
	if rate, err = tb.ProductionRate(ft, f.Level); err != nil {
		return 0, err
	}
	coins := accruedUnits(f, rate, now) / secondsPerHour
	t.Coins += coins
	f.Accrued = 0
	f.AccruedAt = time.Time{}
	f.LastCollection = now
	t.Facilities[ft] = f
	return coins, nil
}

// Upgrade debits the next-level cost and raises the facility one level.
// Production up to now is banked at the old rate first.
func (tb *Tables) Upgrade(t *Team, ft FacilityType, now time.Time) (cost int64, err error) {
	if _, err := tb.ProductionRate(ft, 1); err != nil {
		return 0, err
	}
	f, _ := facility(t, ft, now)
	if f.Level >= MaxFacilityLevel {
		return 0, ErrMaxLevelReached
	}
	cost, err = tb.UpgradeCost(ft, f.Level)
	if err != nil {
		return 0, err
	}
	if t.Coins < cost {
		return cost, fmt.Errorf("%w: upgrade costs %d coins, have %d", ErrInsufficientFunds, cost, t.Coins)
	}
	rate, err := tb.ProductionRate(ft, f.Level)
	if err != nil {
		return 0, err
	}
	bankAccrual(&f, rate, now)
	t.Coins -= cost
	f.Level++
	t.Facilities[ft] = f
	return cost, nil
}

func bankAccrual(f *Facility, rate int64, now time.Time) {
	if !now.Truncate(time.Second).After(accrualAnchor(*f)) {
		return
	}
	f.Accrued = accruedUnits(*f, rate, now)
	f.AccruedAt = now
}

// Materialize snapshots accrued production on every facility without
// touching the collection clock. Collectable returns the same value before
// and after.
func (tb *Tables) Materialize(t *Team, now time.Time) error {
	for ft, f := range t.Facilities {
		rate, err := tb.ProductionRate(ft, f.Level)
		if err != nil {
			return err
		}
		bankAccrual(&f, rate, now)
		t.Facilities[ft] = f
	}
	return nil
}

// MatchIncome credits one hour of production for each listed facility and
// returns the total.
func (tb *Tables) MatchIncome(t *Team, types []FacilityType) int64 {
	var total int64
	for _, ft := range types {
		level := 1
		if f, ok := t.Facilities[ft]; ok {
			level = f.Level
		}
		rate, err := tb.ProductionRate(ft, level)
		if err != nil {
			continue
		}
		total += rate
	}
	t.Coins += total
	return total
}

func (tb *Tables) FacilityStatuses(t *Team, now time.Time) []FacilityStatus {
	out := make([]FacilityStatus, 0, len(facilityTypes))
	for _, ft := range facilityTypes {
		f, ok := t.Facilities[ft]
		if !ok {
			f = newFacility(now)
		}
		rate, _ := tb.ProductionRate(ft, f.Level)
		cost, _ := tb.UpgradeCost(ft, f.Level)
		st := FacilityStatus{
			Type:           ft,
			Level:          f.Level,
			ProductionRate: rate,
			MaxLevel:       f.Level >= MaxFacilityLevel,
		}
		if ok {
			st.Collectable = accruedUnits(f, rate, now) / secondsPerHour
		}
		if !st.MaxLevel {
			st.UpgradeCost = cost
		}
		out = append(out, st)
	}
	return out
}
