// Package actors defines the economic actors that take part in a market day
// (pops, firms, institutions, states) and the message protocol they speak.
//
// An actor is driven by exactly one goroutine for the length of a day. It
// owns its ledgers outright and only ever touches another actor through
// messages, so no ledger needs a lock.
package actors

import (
	"context"
	"sort"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/economy"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"
)

// ID is a unique identifier for an actor. 0 is reserved for the scheduler.
type ID uint64

// Kind is the closed set of actor variants.
type Kind uint8

const (
	KindPop Kind = iota + 1
	KindFirm
	KindInstitution
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindPop:
		return "pop"
	case KindFirm:
		return "firm"
	case KindInstitution:
		return "institution"
	case KindState:
		return "state"
	}
	return "unknown"
}

// Participant is the capability every actor implements to take part in a
// market day. RunMarketDay returns once the actor has posted Finished.
type Participant interface {
	ActorID() ID
	ActorKind() Kind
	RunMarketDay(ctx context.Context, port Port, env *DayEnv) error
}

// Seller is a participant that answers buy offers for some products.
type Seller interface {
	Participant
	Sells(cat *catalog.Catalog) []uint64
	Stock(product uint64) float64
}

// Buyer is a participant that initiates buy offers for some products.
type Buyer interface {
	Participant
	Buys(cat *catalog.Catalog) []uint64
}

// Property is an actor's set of product ledgers keyed by product id.
type Property map[uint64]*economy.PropertyInfo

// Ledger returns the ledger for product, creating an empty one if needed.
func (p Property) Ledger(product uint64) *economy.PropertyInfo {
	l, ok := p[product]
	if !ok {
		l = &economy.PropertyInfo{}
		p[product] = l
	}
	return l
}

// Stock returns the total owned quantity of product.
func (p Property) Stock(product uint64) float64 {
	if l, ok := p[product]; ok {
		return l.TotalProperty
	}
	return 0
}

// NewDay rolls every ledger over to a new day.
func (p Property) NewDay() {
	for _, l := range p {
		l.NewDay()
	}
}

// ResetReserves releases every reservation and clears reservation targets.
func (p Property) ResetReserves() {
	for _, l := range p {
		l.ResetReserves()
		l.SpecificTarget = 0
		l.ClassTarget = 0
		l.WantTarget = 0
	}
}

// Decay applies each product's daily decay rate.
func (p Property) Decay(cat *catalog.Catalog) {
	for id, l := range p {
		if rate := cat.Products[id].Decay; rate > 0 && l.TotalProperty > 0 {
			l.Lose(l.TotalProperty * rate)
		}
	}
}

// Prune drops ledgers that hold nothing and target nothing.
func (p Property) Prune() {
	for id, l := range p {
		if l.IsEmpty() {
			delete(p, id)
		}
	}
}

// Check verifies every ledger, stamping failures with the owner id.
func (p Property) Check(owner ID) error {
	for _, id := range p.IDs() {
		if err := p[id].Check(); err != nil {
			if ie, ok := err.(*economy.InvariantError); ok {
				return ie.WithID(uint64(owner))
			}
			return err
		}
	}
	return nil
}

// IDs returns the product ids held, in ascending order.
func (p Property) IDs() []uint64 {
	ids := make([]uint64, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// recoverInvariant turns a ledger invariant panic into an error stamped with
// the actor id. Any other panic is re-raised.
func recoverInvariant(id ID, err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*economy.InvariantError); ok {
		*err = ie.WithID(uint64(id))
		return
	}
	panic(r)
}

func positive(v float64) bool { return v > phi.Epsilon }
