package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/actors"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/bus"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/demographics"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/economy"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/market"
)

var (
	// ErrDayDeadline is returned when the markets do not all close in time.
	ErrDayDeadline = errors.New("market day deadline exceeded")

	// ErrDayInProgress is returned when a day is started while one is running.
	ErrDayInProgress = errors.New("market day already in progress")

	// ErrUnreconciled is returned while actors from a failed day are in flight.
	ErrUnreconciled = errors.New("actors in flight from a failed day")
)

// DayReport describes one market day, successful or not.
type DayReport struct {
	RunID     string            `json:"run_id"`
	Day       uint64            `json:"day"`
	Started   time.Time         `json:"started"`
	Elapsed   time.Duration     `json:"elapsed"`
	Relocated int               `json:"relocated"`
	Markets   []*market.Summary `json:"markets"`
	InFlight  []uint64          `json:"in_flight,omitempty"`
	Error     string            `json:"error,omitempty"`
	Stats     SimStats          `json:"stats"`
}

// OK reports whether the day closed cleanly.
func (r *DayReport) OK() bool { return r.Error == "" }

// RunMarketDay runs one simulated day across every market and blocks until
// it has fully completed.
//
// Each market's members are checked out of the global stores and handed to
// a worker goroutine of their own. Workers share one broadcast bus. When a
// worker's actors have all finished it announces CloseMarket and waits; once
// every worker has announced, each gets a ConfirmClose, the workers are
// joined, and their actors are checked back in.
//
// A missing member aborts the day before any worker starts and leaves the
// stores as they were. A worker failure, bus fault or missed deadline aborts
// the day: markets that had already closed are checked back in, the others
// stay in InFlight until Reconcile.
func (s *Simulation) RunMarketDay(ctx context.Context, cat *catalog.Catalog, demo *demographics.Demographics) (*DayReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrDayInProgress
	}
	defer s.running.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.Day + 1
	report := &DayReport{RunID: uuid.NewString(), Day: day, Started: time.Now()}
	log := slog.With("run", report.RunID, "day", day)

	fail := func(err error) (*DayReport, error) {
		report.Error = err.Error()
		report.Elapsed = time.Since(report.Started)
		report.InFlight = s.inFlightIDs()
		s.updateStats(cat.Money())
		report.Stats = s.Stats
		s.recordReport(*report)
		log.Error("market day failed", "err", err, "in_flight", report.InFlight)
		return report, err
	}

	if len(s.InFlight) > 0 {
		return fail(fmt.Errorf("%w: markets %v", ErrUnreconciled, s.inFlightIDs()))
	}

	report.Relocated = s.applyRelocations()
	parts, err := s.partition()
	if err != nil {
		return fail(err)
	}
	log.Info("market day started", "markets", len(parts), "pops", len(s.Pops), "relocated", report.Relocated)

	dctx := ctx
	if s.Settings.DayDeadline > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, s.Settings.DayDeadline)
		defer cancel()
	}

	env := actors.DayEnv{
		Day:            day,
		Catalog:        cat,
		Demographics:   demo,
		ShoppingTime:   s.Settings.ShoppingTime,
		OfferTime:      s.Settings.OfferTime,
		PriceTolerance: s.Settings.PriceTolerance,
		Markup:         s.Settings.Markup,
	}
	summaries, closed, err := s.dispatch(dctx, parts, env)

	for _, id := range sortedKeys(parts) {
		if closed[id] {
			s.merge(parts[id])
		} else {
			s.InFlight[id] = parts[id]
		}
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", ErrDayDeadline, err)
		}
		report.Markets = summaries
		return fail(err)
	}

	s.Day = day
	s.updateStats(cat.Money())
	report.Markets = summaries
	report.Elapsed = time.Since(report.Started)
	report.Stats = s.Stats
	s.recordReport(*report)
	log.Info("market day complete",
		"elapsed", report.Elapsed,
		"population", fmt.Sprintf("%.0f", s.Stats.Population),
		"money", fmt.Sprintf("%.2f", s.Stats.MoneySupply),
		"avg_satisfaction", fmt.Sprintf("%.3f", s.Stats.AvgSatisfaction),
	)
	return report, nil
}

// partition checks every market's members out of the stores. On a missing
// member it puts back what it took and returns an invariant error.
func (s *Simulation) partition() (map[uint64]*market.Actors, error) {
	parts := make(map[uint64]*market.Actors, len(s.Markets))
	for _, mid := range s.MarketIDs() {
		m := s.Markets[mid]
		set := market.NewActors()
		parts[mid] = set

		missing := func(kind string, id actors.ID) error {
			for _, taken := range parts {
				s.merge(taken)
			}
			return &economy.InvariantError{
				Ledger: "actor",
				ID:     uint64(id),
				Op:     "partition",
				Detail: fmt.Sprintf("market %d lists %s %d but it is not in storage or is listed twice", mid, kind, id),
			}
		}
		for _, id := range m.Pops {
			p, ok := s.Pops[id]
			if !ok {
				return nil, missing("pop", id)
			}
			delete(s.Pops, id)
			set.Pops[id] = p
		}
		for _, id := range m.Firms {
			f, ok := s.Firms[id]
			if !ok {
				return nil, missing("firm", id)
			}
			delete(s.Firms, id)
			set.Firms[id] = f
		}
		for _, id := range m.Institutions {
			i, ok := s.Institutions[id]
			if !ok {
				return nil, missing("institution", id)
			}
			delete(s.Institutions, id)
			set.Institutions[id] = i
		}
		for _, id := range m.States {
			st, ok := s.States[id]
			if !ok {
				return nil, missing("state", id)
			}
			delete(s.States, id)
			set.States[id] = st
		}
	}
	return parts, nil
}

// merge checks a market's actors back into the stores.
func (s *Simulation) merge(set *market.Actors) {
	for id, p := range set.Pops {
		s.Pops[id] = p
	}
	for id, f := range set.Firms {
		s.Firms[id] = f
	}
	for id, i := range set.Institutions {
		s.Institutions[id] = i
	}
	for id, st := range set.States {
		s.States[id] = st
	}
}

// dispatch runs one worker per market and the close-out barrier. It returns
// the summaries of closed markets and which markets closed.
func (s *Simulation) dispatch(ctx context.Context, parts map[uint64]*market.Actors, env actors.DayEnv) ([]*market.Summary, map[uint64]bool, error) {
	closed := make(map[uint64]bool, len(parts))
	if len(parts) == 0 {
		return nil, closed, nil
	}

	hub := bus.New()
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()
	defer func() {
		stopHub()
		<-hubDone
	}()

	// Every handle subscribes before any worker starts so no CloseMarket or
	// ConfirmClose can be published ahead of its reader.
	ctl, err := hub.Subscribe()
	if err != nil {
		return nil, closed, err
	}
	ids := sortedKeys(parts)
	subs := make(map[uint64]*bus.Subscription, len(ids))
	for _, id := range ids {
		sub, err := hub.Subscribe()
		if err != nil {
			return nil, closed, err
		}
		subs[id] = sub
	}

	var (
		mu        sync.Mutex
		summaries = make(map[uint64]*market.Summary, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		m, set, sub := s.Markets[id], parts[id], subs[id]
		g.Go(func() error {
			sum, err := market.RunDay(gctx, m, set, env, hub, sub)
			if err != nil {
				return fmt.Errorf("market %d: %w", id, err)
			}
			mu.Lock()
			summaries[id] = sum
			mu.Unlock()
			return nil
		})
	}

	// Barrier: collect CloseMarket from every worker before confirming any.
	var barrierErr error
	for len(closed) < len(ids) {
		msg, err := ctl.Receive(gctx)
		if err != nil {
			barrierErr = err
			break
		}
		if msg.Kind != bus.CloseMarket {
			continue
		}
		if _, ok := parts[msg.Sender]; !ok {
			slog.Warn("close from unknown market", "market", msg.Sender)
			continue
		}
		if closed[msg.Sender] {
			slog.Warn("duplicate close", "market", msg.Sender)
			continue
		}
		closed[msg.Sender] = true
	}

	if barrierErr == nil {
		for _, id := range ids {
			if err := hub.Publish(bus.Message{Kind: bus.ConfirmClose, Sender: bus.Scheduler, Receiver: id}); err != nil {
				barrierErr = err
				break
			}
		}
	}
	werr := g.Wait()

	out := make([]*market.Summary, 0, len(summaries))
	for _, id := range ids {
		if sum, ok := summaries[id]; ok {
			out = append(out, sum)
		}
	}
	switch {
	case werr != nil:
		return out, closed, werr
	case barrierErr != nil:
		return out, closed, barrierErr
	}
	return out, closed, nil
}

func (s *Simulation) inFlightIDs() []uint64 {
	return sortedKeys(s.InFlight)
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
