// Package genesis builds a starting world: markets, pops, firms,
// institutions and states with seeded endowments.
package genesis

import (
	"fmt"
	"log/slog"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/actors"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/demographics"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/engine"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/entropy"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/market"
)

// Config holds world generation parameters.
type Config struct {
	Seed            int64   `toml:"seed"` // 0 = random
	Markets         int     `toml:"markets"`
	PopsPerMarket   int     `toml:"pops_per_market"`
	PopSize         float64 `toml:"pop_size"`
	FirmsPerMarket  int     `toml:"firms_per_market"`
	MarketsPerState int     `toml:"markets_per_state"`
	PopCoin         float64 `toml:"pop_coin"`  // per member
	FirmCoin        float64 `toml:"firm_coin"` // per firm
	Endowment       float64 `toml:"endowment"` // days of desire held at start
}

// DefaultConfig returns a reasonable starting configuration.
func DefaultConfig() Config {
	return Config{
		Markets:         4,
		PopsPerMarket:   6,
		PopSize:         20,
		FirmsPerMarket:  4,
		MarketsPerState: 4,
		PopCoin:         10,
		FirmCoin:        400,
		Endowment:       2,
	}
}

// SmallTestConfig returns a tiny world for rapid iteration.
func SmallTestConfig() Config {
	return Config{
		Seed:            42,
		Markets:         2,
		PopsPerMarket:   2,
		PopSize:         5,
		FirmsPerMarket:  2,
		MarketsPerState: 2,
		PopCoin:         10,
		FirmCoin:        100,
		Endowment:       1,
	}
}

// Generate creates a complete starting world and stores it in a new
// simulation.
func Generate(cfg Config, cat *catalog.Catalog, demo *demographics.Demographics, settings engine.Settings) (*engine.Simulation, error) {
	if cfg.Markets <= 0 {
		return nil, fmt.Errorf("genesis: need at least one market")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = entropy.Seed()
	}
	sp := NewSpawner(seed)
	abundance := newAbundance(seed)
	sim := engine.NewSimulation(settings)

	species := demo.SpeciesIDs()
	cultures := demo.CultureIDs()
	processes := cat.ProcessIDs()
	money := cat.Money()

	perState := cfg.MarketsPerState
	if perState <= 0 {
		perState = cfg.Markets
	}

	var (
		mids     []uint64
		nextProc int
		state    *actors.State
	)
	for i := 0; i < cfg.Markets; i++ {
		m := market.New(sp.MarketID(), sp.PlaceName(), cat)
		sim.AddMarket(m)
		mids = append(mids, m.ID)

		for j := 0; j < cfg.PopsPerMarket; j++ {
			culture := uint64(0)
			if len(cultures) > 0 {
				culture = cultures[sp.Pick(len(cultures))]
			}
			size := math.Max(1, math.Round(cfg.PopSize*sp.Jitter(0.3)))
			p := actors.NewPop(sp.ActorID(), sp.PopName(), m.ID, species[sp.Pick(len(species))], culture, size)
			p.Property.Ledger(money).AddProperty(cfg.PopCoin * size)
			if err := endowPop(p, cfg, cat, demo, abundance, i); err != nil {
				return nil, err
			}
			if err := sim.AddPop(p); err != nil {
				return nil, err
			}
		}

		for j := 0; j < cfg.FirmsPerMarket && len(processes) > 0; j++ {
			pid := processes[nextProc%len(processes)]
			nextProc++
			proc, _ := cat.Process(pid)
			f := actors.NewFirm(sp.ActorID(), proc.Name, m.ID, pid)
			f.Property.Ledger(money).AddProperty(cfg.FirmCoin)
			for _, out := range proc.Outputs {
				runs := float64(max(proc.DailyRuns, 1))
				f.Property.Ledger(out.Product).AddProperty(out.Amount * runs * abundance.at(i, out.Product))
			}
			if err := sim.AddFirm(f); err != nil {
				return nil, err
			}
		}

		inst := &actors.Institution{ID: sp.ActorID(), Name: m.Name + " guild", Markets: []uint64{m.ID}, Property: make(actors.Property)}
		if err := sim.AddInstitution(inst, m.ID); err != nil {
			return nil, err
		}

		// A state spans a run of markets and holds its seat in the first.
		if i%perState == 0 {
			state = &actors.State{ID: sp.ActorID(), Name: "crown of " + m.Name, Property: make(actors.Property)}
			if err := sim.AddState(state, m.ID); err != nil {
				return nil, err
			}
		}
		state.Markets = append(state.Markets, m.ID)
	}

	slog.Info("world generated",
		"seed", seed,
		"markets", len(mids),
		"pops", len(sim.Pops),
		"firms", len(sim.Firms),
		"states", len(sim.States),
	)
	return sim, nil
}

// endowPop gives a pop a few days of the specific and class goods it
// desires, scaled by local abundance.
func endowPop(p *actors.Pop, cfg Config, cat *catalog.Catalog, demo *demographics.Demographics, ab *abundance, idx int) error {
	steps, err := demo.Desires(p.Species, p.Culture, p.Size)
	if err != nil {
		return fmt.Errorf("pop %d: %w", p.ID, err)
	}
	for _, st := range steps {
		var product uint64
		switch st.Kind {
		case demographics.KindProduct:
			product = st.ID
		case demographics.KindClass:
			members := cat.ProductsInClass(st.ID)
			if len(members) == 0 {
				continue
			}
			product = members[0]
		default:
			continue
		}
		p.Property.Ledger(product).AddProperty(st.Amount * cfg.Endowment * ab.at(idx, product))
	}
	return nil
}

// abundance is a smooth field over (market, product) in [0.5, 1.5].
type abundance struct {
	noise opensimplex.Noise
}

func newAbundance(seed int64) *abundance {
	return &abundance{noise: opensimplex.NewNormalized(seed + 7)}
}

func (a *abundance) at(market int, product uint64) float64 {
	x := float64(market) * 0.37
	y := float64(product) * 0.61
	return 0.5 + octaveNoise(a.noise, x, y, 3, 0.5, 0.5)
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
