// Package engine owns the global actor and market stores and runs market
// days over them.
package engine

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/actors"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/market"
)

// Settings are the day-wide knobs handed to every market.
type Settings struct {
	DayDeadline    time.Duration // 0 = no deadline
	ShoppingTime   float64
	OfferTime      float64
	PriceTolerance float64
	Markup         float64
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		DayDeadline:    30 * time.Second,
		ShoppingTime:   1,
		OfferTime:      0.25,
		PriceTolerance: 0.2,
		Markup:         0.1,
	}
}

// Simulation holds every market and actor, keyed by id.
//
// Between days the stores are authoritative. During a day each market's
// members are checked out of them into that market's worker and checked
// back in when the day closes. Actors whose market failed stay in InFlight
// until Reconcile puts them back.
type Simulation struct {
	mu sync.RWMutex

	Markets      map[uint64]*market.Market
	Pops         map[actors.ID]*actors.Pop
	Firms        map[actors.ID]*actors.Firm
	Institutions map[actors.ID]*actors.Institution
	States       map[actors.ID]*actors.State

	// InFlight holds actors of markets whose last day did not close.
	InFlight map[uint64]*market.Actors

	Day      uint64 // last completed day
	Settings Settings
	Stats    SimStats
	Reports  []DayReport // most recent last

	relocations []Relocation
	running     atomic.Bool
}

// SimStats tracks aggregate statistics, refreshed after each day.
type SimStats struct {
	Markets         int     `json:"markets"`
	Pops            int     `json:"pops"`
	Firms           int     `json:"firms"`
	Institutions    int     `json:"institutions"`
	States          int     `json:"states"`
	InFlight        int     `json:"in_flight"`
	Population      float64 `json:"population"`
	MoneySupply     float64 `json:"money_supply"`
	AvgSatisfaction float64 `json:"avg_satisfaction"`
}

const maxReports = 64

// NewSimulation creates an empty simulation.
func NewSimulation(settings Settings) *Simulation {
	return &Simulation{
		Markets:      make(map[uint64]*market.Market),
		Pops:         make(map[actors.ID]*actors.Pop),
		Firms:        make(map[actors.ID]*actors.Firm),
		Institutions: make(map[actors.ID]*actors.Institution),
		States:       make(map[actors.ID]*actors.State),
		InFlight:     make(map[uint64]*market.Actors),
		Settings:     settings,
	}
}

// RLock takes the read lock. Readers outside a day (API, persistence) hold
// it while they look at the stores.
func (s *Simulation) RLock()   { s.mu.RLock() }
func (s *Simulation) RUnlock() { s.mu.RUnlock() }

// AddMarket registers a market.
func (s *Simulation) AddMarket(m *market.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Markets[m.ID] = m
}

// AddPop stores a pop and lists it in its market.
func (s *Simulation) AddPop(p *actors.Pop) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Markets[p.Market]
	if !ok {
		return fmt.Errorf("pop %d: unknown market %d", p.ID, p.Market)
	}
	s.Pops[p.ID] = p
	m.AddPop(p.ID)
	return nil
}

// AddFirm stores a firm and lists it in its market.
func (s *Simulation) AddFirm(f *actors.Firm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Markets[f.Market]
	if !ok {
		return fmt.Errorf("firm %d: unknown market %d", f.ID, f.Market)
	}
	s.Firms[f.ID] = f
	m.Firms = append(m.Firms, f.ID)
	return nil
}

// AddInstitution stores an institution and gives it a seat in market seat,
// which must be one of the markets it links to.
func (s *Simulation) AddInstitution(i *actors.Institution, seat uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Markets[seat]
	if !ok {
		return fmt.Errorf("institution %d: unknown market %d", i.ID, seat)
	}
	s.Institutions[i.ID] = i
	m.Institutions = append(m.Institutions, i.ID)
	return nil
}

// AddState stores a state and gives it a seat in market seat.
func (s *Simulation) AddState(st *actors.State, seat uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Markets[seat]
	if !ok {
		return fmt.Errorf("state %d: unknown market %d", st.ID, seat)
	}
	s.States[st.ID] = st
	m.States = append(m.States, st.ID)
	return nil
}

// MarketIDs returns market ids in ascending order. Caller holds a lock.
func (s *Simulation) MarketIDs() []uint64 {
	ids := make([]uint64, 0, len(s.Markets))
	for id := range s.Markets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// InFlightMarkets returns the markets whose actors await reconciliation.
func (s *Simulation) InFlightMarkets() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.InFlight))
	for id := range s.InFlight {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LastReport returns the most recent day report, or nil.
func (s *Simulation) LastReport() *DayReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Reports) == 0 {
		return nil
	}
	r := s.Reports[len(s.Reports)-1]
	return &r
}

func (s *Simulation) recordReport(r DayReport) {
	s.Reports = append(s.Reports, r)
	if len(s.Reports) > maxReports {
		s.Reports = s.Reports[len(s.Reports)-maxReports:]
	}
}

// updateStats recomputes aggregates. Caller holds the write lock.
func (s *Simulation) updateStats(money uint64) {
	st := SimStats{
		Markets:      len(s.Markets),
		Pops:         len(s.Pops),
		Firms:        len(s.Firms),
		Institutions: len(s.Institutions),
		States:       len(s.States),
	}
	for _, set := range s.InFlight {
		st.InFlight += set.Len()
	}
	sat := 0.0
	for _, p := range s.Pops {
		st.Population += p.Size
		st.MoneySupply += p.Stock(money)
		sat += p.Satisfaction.Value
	}
	for _, f := range s.Firms {
		st.MoneySupply += f.Stock(money)
	}
	if len(s.Pops) > 0 {
		st.AvgSatisfaction = sat / float64(len(s.Pops))
	}
	s.Stats = st
}
