package economy

import (
	"fmt"
	"math"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"
)

// PropertyInfo is one actor's ledger for one product.
//
// Owned stock is split into an unreserved pool, a general reserve, and three
// overlapping desire reserves (specific product, product class, want). The
// desire reserves view the same physical units through different lenses, so
// only their maximum counts toward the total:
//
//	TotalProperty == Unreserved + Reserved + max(SpecificReserve, ClassReserve, WantReserve)
//
// A PropertyInfo is not safe for concurrent use. Each one is owned by exactly
// one actor, and an actor is owned by exactly one market worker per day.
type PropertyInfo struct {
	TotalProperty float64 `json:"total_property"`

	Unreserved      float64 `json:"unreserved"`
	Reserved        float64 `json:"reserved"`
	SpecificReserve float64 `json:"specific_reserve"`
	ClassReserve    float64 `json:"class_reserve"`
	WantReserve     float64 `json:"want_reserve"`

	// Targets the owner wants each reserve to reach.
	SpecificTarget float64 `json:"specific_target"`
	ClassTarget    float64 `json:"class_target"`
	WantTarget     float64 `json:"want_target"`

	// Daily flow, reset by NewDay.
	Rollover float64 `json:"rollover"`
	Received float64 `json:"received"`
	Spent    float64 `json:"spent"`
	Consumed float64 `json:"consumed"`
	Used     float64 `json:"used"`
	Lost     float64 `json:"lost"`
}

// NewPropertyInfo creates a ledger holding qty unreserved units.
func NewPropertyInfo(qty float64) *PropertyInfo {
	p := &PropertyInfo{}
	p.AddProperty(qty)
	return p
}

// AddProperty adds qty to the unreserved pool. A negative qty removes instead.
func (p *PropertyInfo) AddProperty(qty float64) {
	if qty < 0 {
		p.Remove(-qty)
		return
	}
	p.TotalProperty += qty
	p.Unreserved += qty
}

// Available returns everything not held for a desire.
func (p *PropertyInfo) Available() float64 {
	return p.Unreserved + p.Reserved
}

// MaxSpecReserve returns the largest of the three overlapping reserves.
func (p *PropertyInfo) MaxSpecReserve() float64 {
	return math.Max(p.SpecificReserve, math.Max(p.ClassReserve, p.WantReserve))
}

// ShiftToReserved moves up to qty from unreserved to the general reserve and
// returns what could not be moved.
func (p *PropertyInfo) ShiftToReserved(qty float64) float64 {
	mustNonNegative("property", "shift_to_reserved", qty)
	moved := math.Min(qty, p.Unreserved)
	p.Unreserved -= moved
	p.Reserved += moved
	return qty - moved
}

// ShiftToSpecificReserve grows the specific-product reserve by up to qty.
func (p *PropertyInfo) ShiftToSpecificReserve(qty float64) float64 {
	mustNonNegative("property", "shift_to_specific_reserve", qty)
	return p.shiftToPool(&p.SpecificReserve, math.Max(p.ClassReserve, p.WantReserve), qty)
}

// ShiftToClassReserve grows the product-class reserve by up to qty.
func (p *PropertyInfo) ShiftToClassReserve(qty float64) float64 {
	mustNonNegative("property", "shift_to_class_reserve", qty)
	return p.shiftToPool(&p.ClassReserve, math.Max(p.SpecificReserve, p.WantReserve), qty)
}

// ShiftToWantReserve grows the want-derived reserve by up to qty.
func (p *PropertyInfo) ShiftToWantReserve(qty float64) float64 {
	mustNonNegative("property", "shift_to_want_reserve", qty)
	return p.shiftToPool(&p.WantReserve, math.Max(p.SpecificReserve, p.ClassReserve), qty)
}

// shiftToPool sources growth of one desire reserve in order: units already
// held by the other two reserves (relabelled for free), the general reserve,
// then unreserved stock. Returns the unmet remainder.
func (p *PropertyInfo) shiftToPool(pool *float64, otherMax, qty float64) float64 {
	if gap := otherMax - *pool; gap > 0 {
		free := math.Min(qty, gap)
		*pool += free
		qty -= free
	}
	if qty <= 0 {
		return 0
	}
	fromReserved := math.Min(qty, p.Reserved)
	p.Reserved -= fromReserved
	*pool += fromReserved
	qty -= fromReserved

	fromUnreserved := math.Min(qty, p.Unreserved)
	p.Unreserved -= fromUnreserved
	*pool += fromUnreserved
	return qty - fromUnreserved
}

// Remove takes qty out of the ledger: unreserved first, then the general
// reserve, then the desire reserves together. Returns the unmet remainder.
// A negative qty adds instead.
func (p *PropertyInfo) Remove(qty float64) float64 {
	if qty < 0 {
		p.AddProperty(-qty)
		return 0
	}
	rem := qty

	take := math.Min(rem, p.Unreserved)
	p.Unreserved -= take
	rem -= take

	take = math.Min(rem, p.Reserved)
	p.Reserved -= take
	rem -= take

	take = math.Min(rem, p.MaxSpecReserve())
	if take > 0 {
		p.SpecificReserve = math.Max(p.SpecificReserve-take, 0)
		p.ClassReserve = math.Max(p.ClassReserve-take, 0)
		p.WantReserve = math.Max(p.WantReserve-take, 0)
		rem -= take
	}

	p.TotalProperty -= qty - rem
	p.snapZero()
	return rem
}

// Expend removes qty from the unreserved pool only and records it as spent.
func (p *PropertyInfo) Expend(qty float64) error {
	mustNonNegative("property", "expend", qty)
	if qty > p.Unreserved+phi.Epsilon {
		return fmt.Errorf("expend %g of %g unreserved: %w", qty, p.Unreserved, ErrOverExpenditure)
	}
	qty = math.Min(qty, p.Unreserved)
	p.Unreserved -= qty
	p.TotalProperty -= qty
	p.Spent += qty
	p.snapZero()
	return nil
}

// Receive adds qty and records it as received.
func (p *PropertyInfo) Receive(qty float64) {
	mustNonNegative("property", "receive", qty)
	p.AddProperty(qty)
	p.Received += qty
}

// TransferTo moves qty unreserved units into dst, recording spent and received.
func (p *PropertyInfo) TransferTo(dst *PropertyInfo, qty float64) error {
	if err := p.Expend(qty); err != nil {
		return err
	}
	dst.Receive(qty)
	return nil
}

// Consume removes up to qty as consumed and returns the amount consumed.
func (p *PropertyInfo) Consume(qty float64) float64 {
	mustNonNegative("property", "consume", qty)
	done := qty - p.Remove(qty)
	p.Consumed += done
	return done
}

// Use removes up to qty as used by a process and returns the amount used.
func (p *PropertyInfo) Use(qty float64) float64 {
	mustNonNegative("property", "use", qty)
	done := qty - p.Remove(qty)
	p.Used += done
	return done
}

// Lose removes up to qty as lost (decay, theft) and returns the amount lost.
func (p *PropertyInfo) Lose(qty float64) float64 {
	mustNonNegative("property", "lose", qty)
	done := qty - p.Remove(qty)
	p.Lost += done
	return done
}

// ResetReserves folds every reserve back into the unreserved pool.
func (p *PropertyInfo) ResetReserves() {
	p.Unreserved = p.TotalProperty
	p.Reserved = 0
	p.SpecificReserve = 0
	p.ClassReserve = 0
	p.WantReserve = 0
}

// NewDay records the opening stock and clears the daily flow.
func (p *PropertyInfo) NewDay() {
	p.Rollover = p.TotalProperty
	p.Received = 0
	p.Spent = 0
	p.Consumed = 0
	p.Used = 0
	p.Lost = 0
}

// IsEmpty reports whether nothing is owned and nothing is targeted.
func (p *PropertyInfo) IsEmpty() bool {
	return p.TotalProperty <= phi.Epsilon &&
		p.SpecificTarget == 0 && p.ClassTarget == 0 && p.WantTarget == 0
}

// Check verifies the ledger identity and that no field is negative.
func (p *PropertyInfo) Check() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"total_property", p.TotalProperty},
		{"unreserved", p.Unreserved},
		{"reserved", p.Reserved},
		{"specific_reserve", p.SpecificReserve},
		{"class_reserve", p.ClassReserve},
		{"want_reserve", p.WantReserve},
	}
	for _, f := range fields {
		if f.v < -phi.Epsilon {
			return &InvariantError{Ledger: "property", Op: "check", Detail: fmt.Sprintf("%s is negative (%g)", f.name, f.v)}
		}
	}
	sum := p.Unreserved + p.Reserved + p.MaxSpecReserve()
	if math.Abs(p.TotalProperty-sum) > phi.Epsilon*math.Max(1, p.TotalProperty) {
		return &InvariantError{
			Ledger: "property",
			Op:     "check",
			Detail: fmt.Sprintf("total %g != unreserved %g + reserved %g + max reserve %g",
				p.TotalProperty, p.Unreserved, p.Reserved, p.MaxSpecReserve()),
		}
	}
	return nil
}

// snapZero clears float dust left by repeated subtraction.
func (p *PropertyInfo) snapZero() {
	for _, f := range []*float64{&p.TotalProperty, &p.Unreserved, &p.Reserved,
		&p.SpecificReserve, &p.ClassReserve, &p.WantReserve} {
		if math.Abs(*f) < phi.Epsilon {
			*f = 0
		}
	}
}
