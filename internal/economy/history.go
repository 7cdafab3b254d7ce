// Package economy provides the per-actor ledgers, tiered valuation, and the
// market price history that every actor reads during a market day.
package economy

import (
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"
)

// HistoryEntry is the running price state for one product in one market.
type HistoryEntry struct {
	Product   uint64  `json:"product"`
	Price     float64 `json:"price"`      // AMV per unit
	BasePrice float64 `json:"base_price"` // catalog base value
	Supply    float64 `json:"supply"`     // offered at day start
	Demand    float64 `json:"demand"`     // requested in buy offers
	Volume    float64 `json:"volume"`     // units traded
	Turnover  float64 `json:"turnover"`   // AMV traded
	Days      int     `json:"days"`       // settlements recorded
}

// History holds a market's price state. Actors read it during the day; only
// the owning market writes it, during settlement.
type History struct {
	Entries map[uint64]*HistoryEntry `json:"entries"`
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{Entries: make(map[uint64]*HistoryEntry)}
}

// Seed registers a product at its base value if it is not tracked yet.
func (h *History) Seed(product uint64, base float64) {
	if _, ok := h.Entries[product]; ok {
		return
	}
	h.Entries[product] = &HistoryEntry{Product: product, Price: base, BasePrice: base}
}

// Price returns the current price of a product.
func (h *History) Price(product uint64) (float64, bool) {
	if h == nil {
		return 0, false
	}
	e, ok := h.Entries[product]
	if !ok {
		return 0, false
	}
	return e.Price, true
}

// ResolvePrice calculates price from the demand/supply ratio, bounded by a
// floor and a ceiling derived from the base value.
func (e *HistoryEntry) ResolvePrice() float64 {
	supply := e.Supply
	if supply < phi.Agnosis {
		supply = phi.Agnosis // prevent division by zero
	}
	demand := e.Demand
	if demand < phi.Agnosis {
		demand = phi.Agnosis
	}

	price := e.BasePrice * (demand / supply)

	floor := e.BasePrice * phi.Agnosis
	ceiling := e.BasePrice * phi.Totality
	if price < floor {
		price = floor
	}
	if price > ceiling {
		price = ceiling
	}
	return price
}

// Settle records one day of activity and moves the price toward both the
// supply/demand target and the average realised price.
func (h *History) Settle(product uint64, supply, demand, volume, turnover float64) {
	e, ok := h.Entries[product]
	if !ok {
		return
	}
	e.Supply = supply
	e.Demand = demand
	e.Volume = volume
	e.Turnover = turnover
	e.Days++

	if supply == 0 && demand == 0 {
		return
	}
	target := e.ResolvePrice()
	if volume > 0 {
		realised := turnover / volume
		target = target*phi.Matter + realised*(1-phi.Matter)
	}
	e.Price += (target - e.Price) * phi.Psyche
}
