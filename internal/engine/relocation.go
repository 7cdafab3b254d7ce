package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/actors"
)

// ErrNotInFlight is returned by Reconcile for a market with nothing pending.
var ErrNotInFlight = errors.New("market has no actors in flight")

// Relocation moves a pop from one market to another between days.
type Relocation struct {
	Pop  actors.ID `json:"pop"`
	From uint64    `json:"from"`
	To   uint64    `json:"to"`
}

// StageRelocation queues a move for the start of the next day. It waits for
// a running day to finish.
func (s *Simulation) StageRelocation(r Relocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.Pops[r.Pop]
	if !ok {
		return fmt.Errorf("relocate: unknown pop %d", r.Pop)
	}
	if p.Market != r.From {
		return fmt.Errorf("relocate: pop %d is in market %d, not %d", r.Pop, p.Market, r.From)
	}
	if _, ok := s.Markets[r.To]; !ok {
		return fmt.Errorf("relocate: unknown market %d", r.To)
	}
	if r.From == r.To {
		return fmt.Errorf("relocate: pop %d already in market %d", r.Pop, r.To)
	}
	s.relocations = append(s.relocations, r)
	return nil
}

// PendingRelocations returns a copy of the staged moves.
func (s *Simulation) PendingRelocations() []Relocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Relocation(nil), s.relocations...)
}

// applyRelocations performs staged moves. A move whose pop has since changed
// market or vanished is dropped. Caller holds the write lock.
func (s *Simulation) applyRelocations() int {
	applied := 0
	for _, r := range s.relocations {
		p, ok := s.Pops[r.Pop]
		from, fok := s.Markets[r.From]
		to, tok := s.Markets[r.To]
		if !ok || !fok || !tok || p.Market != r.From {
			slog.Warn("dropping stale relocation", "pop", r.Pop, "from", r.From, "to", r.To)
			continue
		}
		from.RemovePop(r.Pop)
		to.AddPop(r.Pop)
		p.Market = r.To
		applied++
	}
	s.relocations = nil
	return applied
}

// Reconcile returns the actors of a failed market to the stores.
func (s *Simulation) Reconcile(market uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.InFlight[market]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNotInFlight, market)
	}
	s.merge(set)
	delete(s.InFlight, market)
	n := set.Len()
	s.Stats.InFlight -= n
	slog.Info("market reconciled", "market", market, "actors", n)
	return n, nil
}
