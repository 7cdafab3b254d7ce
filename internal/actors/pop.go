package actors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/demographics"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/economy"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"
)

// Pop is a group of people of one species and culture living in one market.
// It works, shops for its desires, and consumes.
type Pop struct {
	ID      ID      `json:"id"`
	Name    string  `json:"name"`
	Market  uint64  `json:"market"`
	Species uint64  `json:"species"`
	Culture uint64  `json:"culture"`
	Size    float64 `json:"size"`

	Property Property                     `json:"property"`
	Wants    map[uint64]*economy.WantInfo `json:"wants"`
	Memory   PopMemory                    `json:"memory"`
	Desires  []Desire                     `json:"desires"`

	// Satisfaction is today's covered desire, each tier weighted by its
	// place on the tier scale and expressed at tier 0.
	Satisfaction economy.TieredValue `json:"satisfaction"`
	Spent        float64             `json:"spent"`  // AMV paid out today
	Earned       float64             `json:"earned"` // AMV taken in today
}

// NewPop creates a pop with empty ledgers.
func NewPop(id ID, name string, market, species, culture uint64, size float64) *Pop {
	return &Pop{
		ID:       id,
		Name:     name,
		Market:   market,
		Species:  species,
		Culture:  culture,
		Size:     size,
		Property: make(Property),
		Wants:    make(map[uint64]*economy.WantInfo),
		Memory:   make(PopMemory),
	}
}

func (p *Pop) ActorID() ID     { return p.ID }
func (p *Pop) ActorKind() Kind { return KindPop }

// Sells returns the labor products; a pop sells nothing else.
func (p *Pop) Sells(cat *catalog.Catalog) []uint64 { return cat.LaborProducts() }

// Stock returns how much of product the pop owns.
func (p *Pop) Stock(product uint64) float64 { return p.Property.Stock(product) }

// Buys returns the products that could serve the pop's current desires.
func (p *Pop) Buys(cat *catalog.Catalog) []uint64 {
	seen := make(map[uint64]bool)
	for _, d := range p.Desires {
		switch d.Kind {
		case demographics.KindProduct:
			seen[d.Target] = true
		case demographics.KindClass:
			for _, id := range cat.ProductsInClass(d.Target) {
				seen[id] = true
			}
		case demographics.KindWant:
			for _, id := range cat.WantSources(d.Target) {
				seen[id] = true
			}
			for _, id := range cat.OwnershipSources(d.Target) {
				seen[id] = true
			}
		}
	}
	out := make([]uint64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Pop) want(id uint64) *economy.WantInfo {
	w, ok := p.Wants[id]
	if !ok {
		w = &economy.WantInfo{}
		p.Wants[id] = w
	}
	return w
}

// RunMarketDay works, shops, answers labor offers until the market ends the
// day, then consumes and posts Finished.
func (p *Pop) RunMarketDay(ctx context.Context, port Port, env *DayEnv) (err error) {
	defer recoverInvariant(p.ID, &err)

	if err := p.beginDay(env); err != nil {
		return err
	}
	s := newSession(p.ID, port, env, env.ShoppingTime*p.Size, func(o Offer) OfferResult {
		return p.answer(env, o)
	})
	if err := p.shop(ctx, s, env); err != nil {
		return err
	}
	if err := s.doneShopping(); err != nil {
		return err
	}
	if err := s.idle(ctx); err != nil {
		return err
	}
	if err := p.endDay(env); err != nil {
		return err
	}
	return s.finish()
}

func (p *Pop) beginDay(env *DayEnv) error {
	cat := env.Catalog
	if p.Property == nil {
		p.Property = make(Property)
	}
	if p.Wants == nil {
		p.Wants = make(map[uint64]*economy.WantInfo)
	}
	steps, err := env.Demographics.Desires(p.Species, p.Culture, p.Size)
	if err != nil {
		return fmt.Errorf("pop %d: %w", p.ID, err)
	}
	p.Desires = desiresFrom(steps)
	p.Satisfaction = economy.TieredValue{}
	p.Spent, p.Earned = 0, 0

	p.Property.NewDay()
	for _, w := range p.Wants {
		w.NewDay()
	}

	if labor := env.Demographics.LaborPerCapita(p.Species) * p.Size; labor > 0 {
		for _, id := range cat.LaborProducts() {
			p.Property.Ledger(id).AddProperty(labor)
		}
	}
	for _, id := range p.Property.IDs() {
		p.expectOwnership(cat, id, p.Property[id].TotalProperty)
	}

	reserve(p.Desires, p.Property, p.Wants, cat)
	return nil
}

// expectOwnership promises today's want yield from owning qty of product.
func (p *Pop) expectOwnership(cat *catalog.Catalog, product uint64, qty float64) {
	if !positive(qty) {
		return
	}
	for _, y := range cat.Products[product].OwnershipWants {
		p.want(y.Want).Expect(y.Amount * qty)
	}
}

func (p *Pop) shop(ctx context.Context, s *session, env *DayEnv) error {
	cat := env.Catalog
	money := p.Property.Ledger(cat.Money())
	need := make([]float64, len(p.Desires))
	for i, d := range p.Desires {
		need[i] = d.Shortfall()
	}

	for _, item := range shoppingList(p.Desires, env, p.Memory) {
		if !positive(need[item.desire]) {
			continue
		}
		qty := need[item.desire] / item.per
		if item.own {
			qty = math.Ceil(qty - phi.Epsilon)
		}
		res, err := s.buy(ctx, purchase{
			product: item.product,
			qty:     qty,
			money:   money,
			goods:   p.Property.Ledger(item.product),
			memory:  &p.Memory,
		})
		if err != nil {
			return err
		}
		p.Spent += res.spent
		if item.own {
			p.expectOwnership(cat, item.product, res.bought)
		}
		need[item.desire] -= res.bought * item.per
		if res.outcome == NoTime {
			break
		}
	}
	return nil
}

// answer sells labor at the market price.
func (p *Pop) answer(env *DayEnv, o Offer) OfferResult {
	prod, ok := env.Catalog.Product(o.Product)
	if !ok || !prod.Labor {
		return OfferResult{Outcome: NotSuccessful, Reason: "not for sale"}
	}
	res := sellFrom(p.Property[o.Product], p.Property.Ledger(env.Catalog.Money()), o, env.Price(o.Product))
	p.Earned += res.Payment
	return res
}

// endDay consumes what is reserved for desires, realizes wants, decays
// stock and prunes empty ledgers.
func (p *Pop) endDay(env *DayEnv) error {
	cat := env.Catalog
	reserve(p.Desires, p.Property, p.Wants, cat)

	for _, id := range p.Property.IDs() {
		l := p.Property[id]
		qty := l.MaxSpecReserve()
		if !positive(qty) {
			continue
		}
		l.ResetReserves()
		done := l.Consume(qty)
		if !positive(done) {
			continue
		}
		for _, y := range cat.Products[id].ConsumptionWants {
			if err := p.want(y.Want).Add(y.Amount * done); err != nil {
				return wantErr(p.ID, y.Want, err)
			}
		}
	}

	for i := range p.Desires {
		d := &p.Desires[i]
		if d.Kind == demographics.KindWant {
			d.Covered = 0
			if w, ok := p.Wants[d.Target]; ok {
				if take := math.Min(d.Amount, w.Consumable()); positive(take) {
					if err := w.Consume(take); err != nil {
						return wantErr(p.ID, d.Target, err)
					}
					d.Covered = take
				}
			}
		}
		p.Satisfaction.AddValue(-d.Tier, d.Fraction())
	}

	for _, id := range sortedWantIDs(p.Wants) {
		w := p.Wants[id]
		if err := w.RealizeAll(); err != nil {
			return &economy.InvariantError{Ledger: "want", ID: uint64(p.ID), Op: "realize_all", Detail: err.Error()}
		}
		if rate := cat.Wants[id].Decay; rate > 0 && w.TotalCurrent > 0 {
			w.Lose(w.TotalCurrent * rate)
		}
		if err := w.Check(); err != nil {
			return err.(*economy.InvariantError).WithID(uint64(p.ID))
		}
		if w.TotalCurrent <= phi.Epsilon && w.Expected == 0 {
			delete(p.Wants, id)
		}
	}

	p.Property.Decay(cat)
	p.Property.ResetReserves()
	p.Property.Prune()
	return p.Property.Check(p.ID)
}

func sortedWantIDs(m map[uint64]*economy.WantInfo) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// wantErr stamps invariant violations with the pop id and wraps anything else.
func wantErr(pop ID, want uint64, err error) error {
	var ie *economy.InvariantError
	if errors.As(err, &ie) {
		return ie.WithID(uint64(pop))
	}
	return fmt.Errorf("pop %d want %d: %w", pop, want, err)
}
