package actors

import (
	"context"
	"fmt"
	"math"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"
)

// Firm runs one production process in one market. It buys the inputs it
// lacks, runs the process as many times as its inputs allow, and sells its
// outputs at a markup over the market price.
type Firm struct {
	ID       ID       `json:"id"`
	Name     string   `json:"name"`
	Market   uint64   `json:"market"`
	Process  uint64   `json:"process"`
	Property Property `json:"property"`

	Runs    int     `json:"runs"`    // process runs completed today
	Spent   float64 `json:"spent"`   // AMV paid for inputs today
	Revenue float64 `json:"revenue"` // AMV from sales today
}

// NewFirm creates a firm with empty ledgers.
func NewFirm(id ID, name string, market, process uint64) *Firm {
	return &Firm{ID: id, Name: name, Market: market, Process: process, Property: make(Property)}
}

func (f *Firm) ActorID() ID     { return f.ID }
func (f *Firm) ActorKind() Kind { return KindFirm }

// Sells returns the firm's process outputs.
func (f *Firm) Sells(cat *catalog.Catalog) []uint64 {
	pr, ok := cat.Process(f.Process)
	if !ok {
		return nil
	}
	out := make([]uint64, 0, len(pr.Outputs))
	for _, a := range pr.Outputs {
		out = append(out, a.Product)
	}
	return out
}

// Buys returns the firm's process inputs.
func (f *Firm) Buys(cat *catalog.Catalog) []uint64 {
	pr, ok := cat.Process(f.Process)
	if !ok {
		return nil
	}
	out := make([]uint64, 0, len(pr.Inputs))
	for _, a := range pr.Inputs {
		out = append(out, a.Product)
	}
	return out
}

// Stock returns how much of product the firm owns.
func (f *Firm) Stock(product uint64) float64 { return f.Property.Stock(product) }

// RunMarketDay buys inputs, produces, sells until the market ends the day,
// then decays stock and posts Finished.
func (f *Firm) RunMarketDay(ctx context.Context, port Port, env *DayEnv) (err error) {
	defer recoverInvariant(f.ID, &err)

	cat := env.Catalog
	pr, ok := cat.Process(f.Process)
	if !ok {
		return fmt.Errorf("firm %d: unknown process %d", f.ID, f.Process)
	}
	if f.Property == nil {
		f.Property = make(Property)
	}
	f.Property.NewDay()
	f.Property.ResetReserves()
	f.Runs, f.Spent, f.Revenue = 0, 0, 0

	outputs := make(map[uint64]bool, len(pr.Outputs))
	for _, a := range pr.Outputs {
		outputs[a.Product] = true
	}
	s := newSession(f.ID, port, env, env.ShoppingTime*float64(pr.DailyRuns), func(o Offer) OfferResult {
		if !outputs[o.Product] {
			return OfferResult{Outcome: NotSuccessful, Reason: "not for sale"}
		}
		res := sellFrom(f.Property[o.Product], f.Property.Ledger(cat.Money()), o, env.Price(o.Product)*(1+env.Markup))
		f.Revenue += res.Payment
		return res
	})

	if err := f.gatherInputs(ctx, s, env, pr); err != nil {
		return err
	}
	f.produce(pr)

	if err := s.doneShopping(); err != nil {
		return err
	}
	if err := s.idle(ctx); err != nil {
		return err
	}

	f.Property.Decay(cat)
	f.Property.ResetReserves()
	f.Property.Prune()
	if err := f.Property.Check(f.ID); err != nil {
		return err
	}
	return s.finish()
}

// gatherInputs holds what the firm already owns for a full day of runs in
// the general reserve and buys the rest.
func (f *Firm) gatherInputs(ctx context.Context, s *session, env *DayEnv, pr catalog.Process) error {
	money := f.Property.Ledger(env.Catalog.Money())
	for _, in := range pr.Inputs {
		l := f.Property.Ledger(in.Product)
		need := in.Amount * float64(pr.DailyRuns)
		short := l.ShiftToReserved(need)
		if !positive(short) {
			continue
		}
		res, err := s.buy(ctx, purchase{product: in.Product, qty: short, money: money, goods: l})
		if err != nil {
			return err
		}
		f.Spent += res.spent
		l.ShiftToReserved(res.bought)
		if res.outcome == NoTime {
			break
		}
	}
	return nil
}

// produce runs the process as often as the held inputs allow.
func (f *Firm) produce(pr catalog.Process) {
	runs := pr.DailyRuns
	for _, in := range pr.Inputs {
		held := 0.0
		if l, ok := f.Property[in.Product]; ok {
			held = l.Reserved
		}
		runs = min(runs, int(math.Floor(held/in.Amount+phi.Epsilon)))
	}
	if runs <= 0 {
		return
	}
	for _, in := range pr.Inputs {
		l := f.Property[in.Product]
		l.ResetReserves()
		l.Use(in.Amount * float64(runs))
	}
	for _, out := range pr.Outputs {
		f.Property.Ledger(out.Product).AddProperty(out.Amount * float64(runs))
	}
	f.Runs = runs
}
