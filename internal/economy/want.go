package economy

import (
	"fmt"
	"math"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"
)

// WantInfo tracks one actor's stock of one want across a day. Wants are not
// tradable; they are produced by consuming or owning products and spent on
// desires.
//
// Expected is signed: positive is production already promised for today,
// negative is consumption already promised against future production.
type WantInfo struct {
	TotalCurrent float64 `json:"total_current"`
	DayStart     float64 `json:"day_start"`
	Gained       float64 `json:"gained"`
	Expected     float64 `json:"expected"`
	Expended     float64 `json:"expended"`
	Consumed     float64 `json:"consumed"`
	Lost         float64 `json:"lost"`
}

// NewWantInfo creates a want ledger opening the day with dayStart units.
func NewWantInfo(dayStart float64) *WantInfo {
	mustNonNegative("want", "new", dayStart)
	return &WantInfo{TotalCurrent: dayStart, DayStart: dayStart}
}

// NewDay rebases the ledger on the current stock. Unrealized expectations
// lapse rather than carry over.
func (w *WantInfo) NewDay() {
	w.DayStart = w.TotalCurrent
	w.Gained = 0
	w.Expected = 0
	w.Expended = 0
	w.Consumed = 0
	w.Lost = 0
}

// Consumable is what a consumer may draw on, counting promised production.
func (w *WantInfo) Consumable() float64 {
	return w.TotalCurrent + w.Expected
}

// Expendable is current stock less any promised consumption.
func (w *WantInfo) Expendable() float64 {
	return w.TotalCurrent + math.Min(w.Expected, 0)
}

// Expect records a promise of future production (v > 0) or consumption (v < 0).
func (w *WantInfo) Expect(v float64) {
	w.Expected += v
}

// Add records v newly produced units.
func (w *WantInfo) Add(v float64) error {
	if v <= 0 {
		return nonPositive("add", v)
	}
	w.TotalCurrent += v
	w.Gained += v
	return nil
}

// Expend spends v units outright. It fails, leaving the ledger untouched,
// if afterwards nothing would remain expendable.
func (w *WantInfo) Expend(v float64) error {
	if v <= 0 {
		return nonPositive("expend", v)
	}
	after := w.TotalCurrent - v + math.Min(w.Expected, 0)
	if after <= 0 {
		return fmt.Errorf("expend %g leaves %g expendable: %w", v, after, ErrWantUnderflow)
	}
	w.TotalCurrent -= v
	w.Expended += v
	return nil
}

// Realize turns v units of expectation into actual stock. v must share the
// sign of Expected and not exceed it in magnitude.
func (w *WantInfo) Realize(v float64) error {
	if v == 0 {
		return nil
	}
	if math.Signbit(v) != math.Signbit(w.Expected) || w.Expected == 0 {
		return fmt.Errorf("realize %g against expected %g: %w", v, w.Expected, ErrRealizeMismatch)
	}
	if math.Abs(v) > math.Abs(w.Expected)+phi.Epsilon {
		return fmt.Errorf("realize %g exceeds expected %g: %w", v, w.Expected, ErrRealizeMismatch)
	}
	if w.TotalCurrent+v < -phi.Epsilon {
		return fmt.Errorf("realize %g from %g: %w", v, w.TotalCurrent, ErrWantUnderflow)
	}
	w.apply(v)
	w.Expected -= v
	if math.Abs(w.Expected) < phi.Epsilon {
		w.Expected = 0
	}
	return nil
}

// RealizeAll folds every outstanding expectation into stock.
func (w *WantInfo) RealizeAll() error {
	if w.TotalCurrent+w.Expected < -phi.Epsilon {
		return fmt.Errorf("realize all %g from %g: %w", w.Expected, w.TotalCurrent, ErrWantUnderflow)
	}
	w.apply(w.Expected)
	w.Expected = 0
	return nil
}

func (w *WantInfo) apply(v float64) {
	w.TotalCurrent += v
	if v > 0 {
		w.Gained += v
	} else {
		w.Consumed -= v
	}
	if w.TotalCurrent < 0 {
		w.TotalCurrent = 0
	}
}

// Consume uses v units, drawing on current stock first and then on expected
// production for the shortfall.
func (w *WantInfo) Consume(v float64) error {
	if v <= 0 {
		return nonPositive("consume", v)
	}
	if v > w.Consumable()+phi.Epsilon {
		return fmt.Errorf("consume %g of %g consumable: %w", v, w.Consumable(), ErrWantUnderflow)
	}
	fromCurrent := math.Min(v, w.TotalCurrent)
	w.TotalCurrent -= fromCurrent
	w.Expected -= v - fromCurrent
	w.Consumed += v
	if math.Abs(w.TotalCurrent) < phi.Epsilon {
		w.TotalCurrent = 0
	}
	return nil
}

// Lose drops up to v units of current stock and returns the amount lost.
func (w *WantInfo) Lose(v float64) float64 {
	mustNonNegative("want", "lose", v)
	lost := math.Min(v, w.TotalCurrent)
	w.TotalCurrent -= lost
	w.Lost += lost
	return lost
}

// Check verifies current stock is not negative.
func (w *WantInfo) Check() error {
	if w.TotalCurrent < -phi.Epsilon {
		return &InvariantError{Ledger: "want", Op: "check", Detail: fmt.Sprintf("total_current is negative (%g)", w.TotalCurrent)}
	}
	return nil
}

func nonPositive(op string, v float64) error {
	return &InvariantError{Ledger: "want", Op: op, Detail: fmt.Sprintf("value %g must be positive", v)}
}
