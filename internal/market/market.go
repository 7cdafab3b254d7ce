// Package market holds market membership and runs one market's day: every
// local actor in its own goroutine, talking through a market-local exchange,
// followed by price settlement and the close-out handshake on the bus.
package market

import (
	"sort"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/actors"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/economy"
)

// Market is the authoritative member list of one market plus its price
// history. Markets are peers and the unit of concurrency.
type Market struct {
	ID           uint64      `json:"id"`
	Name         string      `json:"name"`
	Pops         []actors.ID `json:"pops"`
	Firms        []actors.ID `json:"firms"`
	Institutions []actors.ID `json:"institutions"`
	States       []actors.ID `json:"states"`

	History *economy.History `json:"history"`
}

// New creates a market with history seeded from the catalog base values.
func New(id uint64, name string, cat *catalog.Catalog) *Market {
	m := &Market{ID: id, Name: name, History: economy.NewHistory()}
	m.SeedHistory(cat)
	return m
}

// SeedHistory makes sure every catalog product has a history entry.
func (m *Market) SeedHistory(cat *catalog.Catalog) {
	if m.History == nil {
		m.History = economy.NewHistory()
	}
	for _, id := range cat.ProductIDs() {
		m.History.Seed(id, cat.Products[id].BaseValue)
	}
}

// Members returns every member id.
func (m *Market) Members() []actors.ID {
	out := make([]actors.ID, 0, m.Size())
	out = append(out, m.Pops...)
	out = append(out, m.Firms...)
	out = append(out, m.Institutions...)
	out = append(out, m.States...)
	return out
}

// Size returns the number of members.
func (m *Market) Size() int {
	return len(m.Pops) + len(m.Firms) + len(m.Institutions) + len(m.States)
}

// HasPop reports whether id is a member pop.
func (m *Market) HasPop(id actors.ID) bool {
	for _, p := range m.Pops {
		if p == id {
			return true
		}
	}
	return false
}

// AddPop adds a pop, keeping the list sorted. Adding twice is a no-op.
func (m *Market) AddPop(id actors.ID) {
	if m.HasPop(id) {
		return
	}
	m.Pops = append(m.Pops, id)
	sort.Slice(m.Pops, func(i, j int) bool { return m.Pops[i] < m.Pops[j] })
}

// RemovePop drops a pop and reports whether it was a member.
func (m *Market) RemovePop(id actors.ID) bool {
	for i, p := range m.Pops {
		if p == id {
			m.Pops = append(m.Pops[:i], m.Pops[i+1:]...)
			return true
		}
	}
	return false
}

// Actors is the set of actors checked out to one market worker for a day.
type Actors struct {
	Pops         map[actors.ID]*actors.Pop
	Firms        map[actors.ID]*actors.Firm
	Institutions map[actors.ID]*actors.Institution
	States       map[actors.ID]*actors.State
}

// NewActors creates an empty set.
func NewActors() *Actors {
	return &Actors{
		Pops:         make(map[actors.ID]*actors.Pop),
		Firms:        make(map[actors.ID]*actors.Firm),
		Institutions: make(map[actors.ID]*actors.Institution),
		States:       make(map[actors.ID]*actors.State),
	}
}

// Len returns the number of actors held.
func (a *Actors) Len() int {
	return len(a.Pops) + len(a.Firms) + len(a.Institutions) + len(a.States)
}

// Participants returns every actor in ascending id order.
func (a *Actors) Participants() []actors.Participant {
	out := make([]actors.Participant, 0, a.Len())
	for _, p := range a.Pops {
		out = append(out, p)
	}
	for _, f := range a.Firms {
		out = append(out, f)
	}
	for _, i := range a.Institutions {
		out = append(out, i)
	}
	for _, s := range a.States {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID() < out[j].ActorID() })
	return out
}

// IDs returns every actor id in ascending order.
func (a *Actors) IDs() []actors.ID {
	parts := a.Participants()
	out := make([]actors.ID, len(parts))
	for i, p := range parts {
		out[i] = p.ActorID()
	}
	return out
}
