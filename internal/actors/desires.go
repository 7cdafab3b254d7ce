package actors

import (
	"math"
	"sort"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/demographics"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/economy"
)

// Desire is one tier of a pop's wants, sized for the whole pop.
// Lower tiers are more urgent and are satisfied first.
type Desire struct {
	Kind   demographics.DesireKind `json:"kind"`
	Target uint64                  `json:"target"` // product, class or want id
	Tier   int                     `json:"tier"`
	Amount float64                 `json:"amount"`

	// Covered is how much of Amount the pop's holdings cover, as of the last
	// reservation pass.
	Covered float64 `json:"covered"`
}

// Shortfall is the uncovered part of the desire.
func (d Desire) Shortfall() float64 {
	return math.Max(d.Amount-d.Covered, 0)
}

// Fraction is the covered share of the desire in [0, 1].
func (d Desire) Fraction() float64 {
	if d.Amount <= 0 {
		return 1
	}
	return math.Min(d.Covered/d.Amount, 1)
}

func desiresFrom(steps []demographics.DesireStep) []Desire {
	out := make([]Desire, len(steps))
	for i, s := range steps {
		out[i] = Desire{Kind: s.Kind, Target: s.ID, Tier: s.Tier, Amount: s.Amount}
	}
	return out
}

// reserve walks desires in tier order and earmarks holdings for each one,
// using the specific, class and want pools. Every reservation is released
// first, so the pass can be repeated after the holdings change.
func reserve(desires []Desire, prop Property, wants map[uint64]*economy.WantInfo, cat *catalog.Catalog) {
	prop.ResetReserves()
	committed := make(map[uint64]float64) // want stock already promised to earlier desires

	for i := range desires {
		d := &desires[i]
		d.Covered = 0
		switch d.Kind {
		case demographics.KindProduct:
			if l, ok := prop[d.Target]; ok {
				l.SpecificTarget += d.Amount
				d.Covered = d.Amount - l.ShiftToSpecificReserve(d.Amount)
			}

		case demographics.KindClass:
			remaining := d.Amount
			for _, id := range cat.ProductsInClass(d.Target) {
				l, ok := prop[id]
				if !ok || !positive(remaining) {
					continue
				}
				l.ClassTarget += remaining
				remaining = l.ShiftToClassReserve(remaining)
			}
			d.Covered = d.Amount - remaining

		case demographics.KindWant:
			remaining := d.Amount
			if w, ok := wants[d.Target]; ok {
				free := w.Consumable() - committed[d.Target]
				take := math.Max(math.Min(free, remaining), 0)
				committed[d.Target] += take
				remaining -= take
			}
			for _, id := range cat.WantSources(d.Target) {
				l, ok := prop[id]
				if !ok || !positive(remaining) {
					continue
				}
				yield := cat.ConsumptionYield(id, d.Target)
				units := remaining / yield
				l.WantTarget += units
				got := units - l.ShiftToWantReserve(units)
				remaining -= got * yield
			}
			d.Covered = d.Amount - math.Max(remaining, 0)
		}
	}
}

// shoppingItem is one product a pop might buy toward one desire.
type shoppingItem struct {
	desire  int
	product uint64
	per     float64 // desire units per product unit
	own     bool    // satisfies through ownership rather than consumption
	value   economy.TieredValue
}

// shoppingList lists the products that could close each desire's shortfall,
// most valuable first. Value is the seller success rate per unit of price,
// anchored at the desire's tier so urgent desires outrank luxuries.
func shoppingList(desires []Desire, env *DayEnv, mem PopMemory) []shoppingItem {
	cat := env.Catalog
	var items []shoppingItem
	add := func(i int, product uint64, per float64, own bool) {
		price := env.Price(product)
		if price <= 0 || per <= 0 || len(env.Sellers[product]) == 0 {
			return
		}
		rate := mem.Get(product).SuccessRate
		items = append(items, shoppingItem{
			desire:  i,
			product: product,
			per:     per,
			own:     own,
			value:   economy.TieredValue{Tier: -desires[i].Tier, Value: rate * per / price},
		})
	}
	for i, d := range desires {
		if !positive(d.Shortfall()) {
			continue
		}
		switch d.Kind {
		case demographics.KindProduct:
			add(i, d.Target, 1, false)
		case demographics.KindClass:
			for _, id := range cat.ProductsInClass(d.Target) {
				add(i, id, 1, false)
			}
		case demographics.KindWant:
			for _, id := range cat.WantSources(d.Target) {
				add(i, id, cat.ConsumptionYield(id, d.Target), false)
			}
			for _, id := range cat.OwnershipSources(d.Target) {
				add(i, id, cat.OwnershipYield(id, d.Target), true)
			}
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[j].value.Less(items[i].value) })
	return items
}
