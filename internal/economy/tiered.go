package economy

import (
	"fmt"
	"math"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"
)

// TieredValue is a scalar anchored to a desire tier. Its absolute size is
// Value × R^Tier, so small values at high tiers and large values at low tiers
// can be compared without overflow.
type TieredValue struct {
	Tier  int     `json:"tier"`
	Value float64 `json:"value"`
}

// TierEquivalence returns R^(to-from).
func TierEquivalence(from, to int) float64 {
	return math.Pow(phi.TierRatio, float64(clampTier(to)-clampTier(from)))
}

func clampTier(t int) int {
	if t > phi.MaxTier {
		return phi.MaxTier
	}
	if t < -phi.MaxTier {
		return -phi.MaxTier
	}
	return t
}

// ShiftTier re-expresses the value at tier t without changing its absolute size.
func (v TieredValue) ShiftTier(t int) TieredValue {
	t = clampTier(t)
	return TieredValue{Tier: t, Value: v.Value / TierEquivalence(v.Tier, t)}
}

// Normalize moves one tier step toward the canonical band [1, R).
// Zero and values already in the band are returned unchanged. The band is
// fixed, so there is no target argument; callers that need a value at a
// particular tier use ShiftTier.
func (v TieredValue) Normalize() TieredValue {
	mag := math.Abs(v.Value)
	switch {
	case mag == 0 || math.IsInf(mag, 0) || math.IsNaN(mag):
		return v
	case mag >= phi.TierRatio && v.Tier < phi.MaxTier:
		return v.ShiftTier(v.Tier + 1)
	case mag < 1 && v.Tier > -phi.MaxTier:
		return v.ShiftTier(v.Tier - 1)
	}
	return v
}

// Canonical normalizes until the magnitude sits in [1, R) or the tier clamps.
func (v TieredValue) Canonical() TieredValue {
	for {
		n := v.Normalize()
		if n == v {
			return v
		}
		v = n
	}
}

// AddValue accumulates a value given at another tier into v.
func (v *TieredValue) AddValue(tier int, value float64) {
	v.Value += value / TierEquivalence(tier, v.Tier)
}

// Add returns v + o expressed at v's tier.
func (v TieredValue) Add(o TieredValue) TieredValue {
	v.AddValue(o.Tier, o.Value)
	return v
}

// Compare returns -1, 0 or 1. Values are equal when they agree within a
// relative tolerance after o is shifted into v's tier.
func (v TieredValue) Compare(o TieredValue) int {
	other := o.ShiftTier(v.Tier).Value
	diff := v.Value - other
	scale := math.Max(math.Abs(v.Value), math.Abs(other))
	if math.Abs(diff) <= 1e-9*math.Max(scale, 1e-300) {
		return 0
	}
	if diff < 0 {
		return -1
	}
	return 1
}

// Equal reports whether v and o have the same absolute size.
func (v TieredValue) Equal(o TieredValue) bool { return v.Compare(o) == 0 }

// Less reports whether v is smaller than o.
func (v TieredValue) Less(o TieredValue) bool { return v.Compare(o) < 0 }

func (v TieredValue) String() string {
	return fmt.Sprintf("%g@T%d", v.Value, v.Tier)
}
