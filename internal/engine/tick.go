package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/demographics"
)

// Engine drives the simulation one market day at a time.
type Engine struct {
	Sim          *Simulation
	Catalog      *catalog.Catalog
	Demographics *demographics.Demographics

	Interval time.Duration // wall time between days, 0 = back to back
	MaxDays  uint64        // stop after this many days, 0 = unbounded

	// OnDay runs after every day, successful or not, outside the store lock.
	OnDay func(r *DayReport)

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

// NewEngine creates an engine over sim.
func NewEngine(sim *Simulation, cat *catalog.Catalog, demo *demographics.Demographics) *Engine {
	return &Engine{
		Sim:          sim,
		Catalog:      cat,
		Demographics: demo,
		Interval:     time.Second,
		resume:       make(chan struct{}, 1),
	}
}

// Step runs a single market day.
func (e *Engine) Step(ctx context.Context) (*DayReport, error) {
	r, err := e.Sim.RunMarketDay(ctx, e.Catalog, e.Demographics)
	if r != nil && e.OnDay != nil {
		e.OnDay(r)
	}
	return r, err
}

// Run loops over market days until ctx is cancelled or MaxDays is reached.
// A failed day pauses the engine; Resume continues once the failed markets
// have been reconciled.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("simulation engine started", "day", e.Sim.Day, "interval", e.Interval)
	defer slog.Info("simulation engine stopped", "day", e.Sim.Day)

	var ran uint64
	for e.MaxDays == 0 || ran < e.MaxDays {
		if err := e.waitUnpaused(ctx); err != nil {
			return nil
		}

		start := time.Now()
		if _, err := e.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("pausing after failed day", "err", err)
			e.Pause()
			continue
		}
		ran++

		if elapsed := time.Since(start); elapsed < e.Interval {
			select {
			case <-time.After(e.Interval - elapsed):
			case <-ctx.Done():
				return nil
			}
		}
	}
	return nil
}

// Pause stops the loop before its next day.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

// Resume lets a paused loop continue.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	select {
	case e.resume <- struct{}{}:
	default:
	}
}

// Paused reports whether the loop is paused.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Engine) waitUnpaused(ctx context.Context) error {
	for e.Paused() {
		select {
		case <-e.resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}
