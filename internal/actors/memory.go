package actors

import "github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"

// Knowledge is what a pop remembers about buying one product.
type Knowledge struct {
	SuccessRate float64 `json:"success_rate"` // MinSuccessRate..1
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	LastSeller  ID      `json:"last_seller,omitempty"`
}

// PopMemory holds per-product shopping knowledge.
type PopMemory map[uint64]*Knowledge

// Get returns the knowledge for product. Unknown products start fully trusted.
func (m PopMemory) Get(product uint64) Knowledge {
	if k, ok := m[product]; ok {
		return *k
	}
	return Knowledge{SuccessRate: 1}
}

// Record folds one offer outcome into memory. Success boosts the rate by
// Psyche toward 1; rejection decays it by Agnosis down to MinSuccessRate.
// NoTime and CancelBuy say nothing about the seller and are ignored.
func (m *PopMemory) Record(product uint64, seller ID, outcome OfferOutcome) {
	if outcome == NoTime || outcome == CancelBuy {
		return
	}
	if *m == nil {
		*m = make(PopMemory)
	}
	k, ok := (*m)[product]
	if !ok {
		k = &Knowledge{SuccessRate: 1}
		(*m)[product] = k
	}
	k.Attempts++
	if outcome == Successful {
		k.Successes++
		k.LastSeller = seller
		k.SuccessRate += (1 - k.SuccessRate) * phi.Psyche
		return
	}
	if k.LastSeller == seller {
		k.LastSeller = 0
	}
	k.SuccessRate -= k.SuccessRate * phi.Agnosis
	if k.SuccessRate < phi.MinSuccessRate {
		k.SuccessRate = phi.MinSuccessRate
	}
}
