package economy

import (
	"math"
	"testing"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"
)

func TestTieredValue_OrderingExample(t *testing.T) {
	base := TieredValue{Tier: 5, Value: 1.0}
	if !base.Equal(TieredValue{Tier: 6, Value: 1 / phi.TierRatio}) {
		t.Fatalf("%v should equal %v", base, TieredValue{Tier: 6, Value: 1 / phi.TierRatio})
	}
	if !base.Less(TieredValue{Tier: 6, Value: 1.0}) {
		t.Fatalf("%v should be less than 1@T6", base)
	}
	if (TieredValue{Tier: 6, Value: 1.0}).Compare(base) != 1 {
		t.Fatalf("compare should be antisymmetric")
	}
}

func TestTieredValue_ShiftRoundTrip(t *testing.T) {
	cases := []TieredValue{
		{Tier: 0, Value: 1},
		{Tier: 30, Value: 0.002},
		{Tier: -12, Value: -7.5},
		{Tier: 3, Value: 12345.678},
	}
	for _, v := range cases {
		for _, t2 := range []int{-40, -1, 0, 2, 17, 55} {
			got := v.ShiftTier(t2).ShiftTier(v.Tier)
			if got.Tier != v.Tier || math.Abs(got.Value-v.Value) > 1e-9*math.Max(1, math.Abs(v.Value)) {
				t.Fatalf("round trip %v via %d: got %v", v, t2, got)
			}
		}
	}
}

func TestTierEquivalence(t *testing.T) {
	if f := TierEquivalence(3, 5); math.Abs(f-phi.TierRatio*phi.TierRatio) > 1e-12 {
		t.Fatalf("equivalence: %v", f)
	}
	if f := TierEquivalence(5, 5); f != 1 {
		t.Fatalf("identity equivalence: %v", f)
	}
}

func TestTieredValue_Normalize(t *testing.T) {
	v := TieredValue{Tier: 2, Value: 10}
	n := v.Normalize()
	if n.Tier != 3 || math.Abs(n.Value-10/phi.TierRatio) > 1e-12 {
		t.Fatalf("one step up: %v", n)
	}
	if !n.Equal(v) {
		t.Fatalf("normalize changed magnitude")
	}

	c := TieredValue{Tier: 0, Value: -0.01}.Canonical()
	if mag := math.Abs(c.Value); mag < 1 || mag >= phi.TierRatio {
		t.Fatalf("canonical out of band: %v", c)
	}
	if c.Value > 0 {
		t.Fatalf("sign not preserved: %v", c)
	}

	zero := TieredValue{Tier: 4}
	if zero.Normalize() != zero {
		t.Fatalf("zero should not move")
	}
}

func TestTieredValue_AddValue(t *testing.T) {
	v := TieredValue{Tier: 1, Value: 1}
	v.AddValue(2, 1)
	if v.Tier != 1 || math.Abs(v.Value-(1+phi.TierRatio)) > 1e-12 {
		t.Fatalf("add across tiers: %v", v)
	}
	sum := TieredValue{Tier: 0, Value: 2}.Add(TieredValue{Tier: 0, Value: 3})
	if sum.Value != 5 {
		t.Fatalf("add same tier: %v", sum)
	}
}

func TestTieredValue_Clamp(t *testing.T) {
	v := TieredValue{Tier: 0, Value: 1}.ShiftTier(phi.MaxTier * 4)
	if v.Tier != phi.MaxTier {
		t.Fatalf("tier not clamped: %d", v.Tier)
	}
}

func TestTieredValue_NormalizeIsOneShift(t *testing.T) {
	cases := []struct {
		v    TieredValue
		step int
	}{
		{TieredValue{Tier: 0, Value: 500}, 1},
		{TieredValue{Tier: -3, Value: -0.2}, -1},
		{TieredValue{Tier: 7, Value: 1}, 0},
		{TieredValue{Tier: 7, Value: -1.5}, 0},
	}
	for _, c := range cases {
		got := c.v.Normalize()
		if got != c.v.ShiftTier(c.v.Tier+c.step) {
			t.Fatalf("normalize %v: got %v, want a shift of %d", c.v, got, c.step)
		}
	}
}
