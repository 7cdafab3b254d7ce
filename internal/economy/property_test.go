package economy

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"
)

func assertBooks(t *testing.T, p *PropertyInfo) {
	t.Helper()
	if err := p.Check(); err != nil {
		t.Fatalf("ledger broken: %v (%+v)", err, *p)
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPropertyInfo_ReservationOverlap(t *testing.T) {
	p := NewPropertyInfo(10)
	assertBooks(t, p)

	if excess := p.ShiftToSpecificReserve(4); excess != 0 {
		t.Fatalf("specific excess: got %v want 0", excess)
	}
	assertBooks(t, p)
	if excess := p.ShiftToClassReserve(4); excess != 0 {
		t.Fatalf("class excess: got %v want 0", excess)
	}
	assertBooks(t, p)

	if p.ClassReserve != 4 || p.SpecificReserve != 4 {
		t.Fatalf("reserves: specific=%v class=%v", p.SpecificReserve, p.ClassReserve)
	}
	if p.Unreserved != 6 {
		t.Fatalf("class reserve should come from overlap, unreserved=%v", p.Unreserved)
	}
	if p.TotalProperty != 10 {
		t.Fatalf("total changed: %v", p.TotalProperty)
	}
}

func TestPropertyInfo_ShiftSourcingOrder(t *testing.T) {
	p := NewPropertyInfo(10)
	p.ShiftToReserved(3)
	assertBooks(t, p)
	p.ShiftToSpecificReserve(2) // all from general reserve
	assertBooks(t, p)
	if p.Reserved != 1 || p.Unreserved != 7 || p.SpecificReserve != 2 {
		t.Fatalf("after specific: %+v", *p)
	}

	// 2 free from overlap, 1 from reserve, 2 from unreserved.
	excess := p.ShiftToWantReserve(5)
	assertBooks(t, p)
	if excess != 0 {
		t.Fatalf("excess %v", excess)
	}
	if p.WantReserve != 5 || p.Reserved != 0 || p.Unreserved != 5 {
		t.Fatalf("after want: %+v", *p)
	}

	// Ask for more than exists.
	excess = p.ShiftToClassReserve(20)
	assertBooks(t, p)
	if !approx(excess, 10) {
		t.Fatalf("class excess: got %v want 10", excess)
	}
	if p.ClassReserve != 10 || p.Unreserved != 0 {
		t.Fatalf("after class: %+v", *p)
	}
}

func TestPropertyInfo_ShiftToReservedExcess(t *testing.T) {
	p := NewPropertyInfo(2)
	if excess := p.ShiftToReserved(5); excess != 3 {
		t.Fatalf("excess: got %v want 3", excess)
	}
	assertBooks(t, p)
	if p.Available() != 2 {
		t.Fatalf("available: %v", p.Available())
	}
}

func TestPropertyInfo_RemoveOrder(t *testing.T) {
	p := NewPropertyInfo(10)
	p.ShiftToReserved(2)
	p.ShiftToSpecificReserve(4)
	p.ShiftToClassReserve(2)
	assertBooks(t, p)
	// unreserved 6, reserved 0 (spent on specific), specific 4, class 2
	if excess := p.Remove(7); excess != 0 {
		t.Fatalf("excess %v", excess)
	}
	assertBooks(t, p)
	if p.Unreserved != 0 || p.SpecificReserve != 3 || p.ClassReserve != 1 {
		t.Fatalf("after remove: %+v", *p)
	}

	excess := p.Remove(10)
	assertBooks(t, p)
	if !approx(excess, 7) {
		t.Fatalf("excess: got %v want 7", excess)
	}
	if p.TotalProperty != 0 || p.MaxSpecReserve() != 0 {
		t.Fatalf("not emptied: %+v", *p)
	}
}

func TestPropertyInfo_NegativeDelegates(t *testing.T) {
	p := NewPropertyInfo(5)
	p.AddProperty(-2)
	assertBooks(t, p)
	if p.TotalProperty != 3 {
		t.Fatalf("total: %v", p.TotalProperty)
	}
	p.Remove(-4)
	assertBooks(t, p)
	if p.TotalProperty != 7 || p.Unreserved != 7 {
		t.Fatalf("after negative remove: %+v", *p)
	}
}

func TestPropertyInfo_Expend(t *testing.T) {
	p := NewPropertyInfo(5)
	p.ShiftToReserved(3)
	if err := p.Expend(3); !errors.Is(err, ErrOverExpenditure) {
		t.Fatalf("expected over-expenditure, got %v", err)
	}
	assertBooks(t, p)
	if p.Unreserved != 2 {
		t.Fatalf("failed expend mutated ledger: %+v", *p)
	}
	if err := p.Expend(2); err != nil {
		t.Fatalf("expend: %v", err)
	}
	assertBooks(t, p)
	if p.Spent != 2 || p.TotalProperty != 3 {
		t.Fatalf("after expend: %+v", *p)
	}
}

func TestPropertyInfo_TransferAndFlows(t *testing.T) {
	src := NewPropertyInfo(4)
	dst := &PropertyInfo{}
	if err := src.TransferTo(dst, 3); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	assertBooks(t, src)
	assertBooks(t, dst)
	if dst.Received != 3 || src.Spent != 3 || dst.TotalProperty != 3 {
		t.Fatalf("flows: src=%+v dst=%+v", *src, *dst)
	}

	dst.Use(1)
	dst.Consume(1)
	dst.Lose(5)
	assertBooks(t, dst)
	if dst.Used != 1 || dst.Consumed != 1 || dst.Lost != 1 {
		t.Fatalf("flows: %+v", *dst)
	}

	dst.NewDay()
	if dst.Received != 0 || dst.Used != 0 || dst.Rollover != 0 {
		t.Fatalf("new day: %+v", *dst)
	}
	if !dst.IsEmpty() {
		t.Fatalf("expected empty ledger")
	}
}

func TestPropertyInfo_ResetReserves(t *testing.T) {
	p := NewPropertyInfo(8)
	p.ShiftToReserved(1)
	p.ShiftToWantReserve(3)
	p.ShiftToSpecificReserve(5)
	assertBooks(t, p)
	p.ResetReserves()
	assertBooks(t, p)
	if p.Unreserved != 8 || p.Reserved != 0 || p.MaxSpecReserve() != 0 {
		t.Fatalf("reset: %+v", *p)
	}
}

func TestPropertyInfo_NegativeShiftIsInvariantViolation(t *testing.T) {
	p := NewPropertyInfo(1)
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrInvariant) {
			t.Fatalf("expected invariant panic, got %v", r)
		}
	}()
	p.ShiftToClassReserve(-1)
}

func TestPropertyInfo_ConservationSequence(t *testing.T) {
	p := &PropertyInfo{}
	ops := []func(){
		func() { p.AddProperty(12) },
		func() { p.ShiftToSpecificReserve(3) },
		func() { p.ShiftToReserved(2) },
		func() { p.ShiftToWantReserve(6) },
		func() { p.Remove(4) },
		func() { p.ShiftToClassReserve(9) },
		func() { p.AddProperty(1.5) },
		func() { p.Remove(0.25) },
		func() { p.ShiftToSpecificReserve(7) },
		func() { p.Remove(100) },
		func() { p.AddProperty(3) },
	}
	for i, op := range ops {
		op()
		if err := p.Check(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}
}

func TestPropertyInfo_ConservationRandomSequence(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		p, other := &PropertyInfo{}, &PropertyInfo{}
		held := 0.0 // what p should own, tracked outside the ledger
		qty := func() float64 { return math.Round(rng.Float64()*800) / 100 }

		for step := 0; step < 400; step++ {
			q := qty()
			op := rng.Intn(12)
			switch op {
			case 0:
				p.AddProperty(q)
				held += q
			case 1:
				held -= q - p.Remove(q)
			case 2:
				p.ShiftToReserved(q)
			case 3:
				p.ShiftToSpecificReserve(q)
			case 4:
				p.ShiftToClassReserve(q)
			case 5:
				p.ShiftToWantReserve(q)
			case 6:
				before := p.Unreserved
				err := p.Expend(q)
				if (err == nil) != (q <= before+phi.Epsilon) {
					t.Fatalf("seed %d step %d: expend %g of %g unreserved: %v", seed, step, q, before, err)
				}
				if err == nil {
					held -= math.Min(q, before)
				}
			case 7:
				held -= p.Consume(q)
			case 8:
				held -= p.Use(q)
			case 9:
				held -= p.Lose(q)
			case 10:
				before := p.Unreserved
				if err := p.TransferTo(other, q); err == nil {
					held -= math.Min(q, before)
				}
			case 11:
				p.ResetReserves()
			}
			if err := p.Check(); err != nil {
				t.Fatalf("seed %d step %d op %d qty %g: %v", seed, step, op, q, err)
			}
			if err := other.Check(); err != nil {
				t.Fatalf("seed %d step %d: receiver: %v", seed, step, err)
			}
			if math.Abs(p.TotalProperty-held) > 1e-6 {
				t.Fatalf("seed %d step %d op %d: total %g, expected %g", seed, step, op, p.TotalProperty, held)
			}
		}
	}
}
