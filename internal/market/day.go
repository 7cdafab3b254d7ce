package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/actors"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/bus"
	"golang.org/x/sync/errgroup"
)

// ErrNotFinished is returned when an actor's day returns without it having
// posted Finished.
var ErrNotFinished = errors.New("actor returned without finishing")

// Summary is one market's account of its day.
type Summary struct {
	Market   uint64             `json:"market"`
	Day      uint64             `json:"day"`
	Actors   int                `json:"actors"`
	Sellers  int                `json:"sellers"`
	Buyers   int                `json:"buyers"`
	Offers   int                `json:"offers"`
	Trades   int                `json:"trades"`
	Volume   map[uint64]float64 `json:"volume"`
	Turnover float64            `json:"turnover"`
	Prices   map[uint64]float64 `json:"prices"`
	Elapsed  time.Duration      `json:"elapsed"`
}

// RunDay runs one market day for the checked-out actors in set.
//
// Every actor runs in its own goroutine against a market-local exchange.
// When all of them have finished, the market settles its price history,
// publishes CloseMarket on the bus and blocks until the scheduler answers
// with a ConfirmClose addressed to it. sub must have been subscribed before
// the scheduler can publish that confirmation.
//
// env supplies the day-wide settings; RunDay fills in the market-specific
// fields on its own copy.
func RunDay(ctx context.Context, m *Market, set *Actors, env actors.DayEnv, hub *bus.Hub, sub *bus.Subscription) (*Summary, error) {
	start := time.Now()
	log := slog.With("market", m.ID, "day", env.Day)

	parts := set.Participants()
	ids := make([]actors.ID, len(parts))
	for i, p := range parts {
		ids[i] = p.ActorID()
	}

	env.Market = m.ID
	env.History = m.History
	env.Sellers = make(map[uint64][]actors.ID)
	sum := &Summary{Market: m.ID, Day: env.Day, Actors: len(parts)}
	sellers := make(map[uint64][]actors.Seller)
	for _, p := range parts {
		if s, ok := p.(actors.Seller); ok {
			sum.Sellers++
			for _, product := range s.Sells(env.Catalog) {
				env.Sellers[product] = append(env.Sellers[product], p.ActorID())
				sellers[product] = append(sellers[product], s)
			}
		}
		if b, ok := p.(actors.Buyer); ok && len(b.Buys(env.Catalog)) > 0 {
			sum.Buyers++
		}
	}

	ex := newExchange(ids)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range parts {
		g.Go(func() error {
			id := p.ActorID()
			if err := p.RunMarketDay(gctx, ex.port(id), &env); err != nil {
				return fmt.Errorf("%s %d: %w", p.ActorKind(), id, err)
			}
			if !ex.hasFinished(id) {
				return fmt.Errorf("%s %d: %w", p.ActorKind(), id, ErrNotFinished)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("market day failed", "err", err)
		return nil, err
	}
	<-ex.closed

	settle(m, ex, sellers, sum)
	sum.Offers = ex.offers
	sum.Trades = ex.trades
	sum.Elapsed = time.Since(start)

	if err := hub.Publish(bus.Message{Kind: bus.CloseMarket, Sender: m.ID, Receiver: bus.Scheduler}); err != nil {
		return nil, fmt.Errorf("market %d: publish close: %w", m.ID, err)
	}
	log.Info("market closed", "actors", sum.Actors, "trades", sum.Trades, "turnover", fmt.Sprintf("%.2f", sum.Turnover))

	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			return nil, fmt.Errorf("market %d: awaiting confirm: %w", m.ID, err)
		}
		if msg.Kind == bus.ConfirmClose && msg.Receiver == m.ID {
			return sum, nil
		}
	}
}

// settle folds the day's tally into the market history. Supply is what was
// traded plus what the product's sellers still hold.
func settle(m *Market, ex *exchange, sellers map[uint64][]actors.Seller, sum *Summary) {
	sum.Volume = make(map[uint64]float64)
	sum.Prices = make(map[uint64]float64)
	for product, e := range m.History.Entries {
		t := ex.tally[product]
		if t == nil {
			t = &tally{}
		}
		supply := t.volume
		for _, s := range sellers[product] {
			supply += s.Stock(product)
		}
		m.History.Settle(product, supply, t.demand, t.volume, t.turnover)
		if t.volume > 0 {
			sum.Volume[product] = t.volume
		}
		sum.Turnover += t.turnover
		sum.Prices[product] = e.Price
	}
}
