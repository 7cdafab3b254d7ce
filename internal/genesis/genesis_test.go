package genesis

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/demographics"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/engine"
)

func shipped(t *testing.T) (*catalog.Catalog, *demographics.Demographics) {
	t.Helper()
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "..", "..", "configs")
	cat, err := catalog.Load(filepath.Join(root, "catalog.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	demo, err := demographics.Load(filepath.Join(root, "demographics.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	return cat, demo
}

func TestGenerate_Counts(t *testing.T) {
	cat, demo := shipped(t)
	cfg := SmallTestConfig()
	sim, err := Generate(cfg, cat, demo, engine.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if len(sim.Markets) != cfg.Markets {
		t.Errorf("markets = %d", len(sim.Markets))
	}
	if len(sim.Pops) != cfg.Markets*cfg.PopsPerMarket {
		t.Errorf("pops = %d", len(sim.Pops))
	}
	if len(sim.Firms) != cfg.Markets*cfg.FirmsPerMarket {
		t.Errorf("firms = %d", len(sim.Firms))
	}
	if len(sim.Institutions) != cfg.Markets {
		t.Errorf("institutions = %d", len(sim.Institutions))
	}
	if len(sim.States) != 1 {
		t.Errorf("states = %d", len(sim.States))
	}

	// Every institution and state holds exactly one seat.
	seats := make(map[uint64]int)
	for _, m := range sim.Markets {
		for _, id := range m.Institutions {
			seats[uint64(id)]++
		}
		for _, id := range m.States {
			seats[uint64(id)]++
		}
	}
	for id, n := range seats {
		if n != 1 {
			t.Errorf("actor %d has %d seats", id, n)
		}
	}
	for _, st := range sim.States {
		if len(st.Markets) != cfg.Markets {
			t.Errorf("state spans %v", st.Markets)
		}
	}
	for _, p := range sim.Pops {
		if p.Size < 1 || p.Stock(cat.Money()) <= 0 {
			t.Errorf("pop %d: size %v money %v", p.ID, p.Size, p.Stock(cat.Money()))
		}
		if !sim.Markets[p.Market].HasPop(p.ID) {
			t.Errorf("pop %d not listed in market %d", p.ID, p.Market)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	cat, demo := shipped(t)
	a, err := Generate(SmallTestConfig(), cat, demo, engine.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(SmallTestConfig(), cat, demo, engine.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	for id, p := range a.Pops {
		q, ok := b.Pops[id]
		if !ok || p.Size != q.Size || p.Culture != q.Culture || p.Name != q.Name {
			t.Fatalf("pop %d differs between runs", id)
		}
		for _, pid := range p.Property.IDs() {
			if p.Stock(pid) != q.Stock(pid) {
				t.Errorf("pop %d product %d: %v vs %v", id, pid, p.Stock(pid), q.Stock(pid))
			}
		}
	}
}

func TestGenerate_RejectsEmptyWorld(t *testing.T) {
	cat, demo := shipped(t)
	cfg := SmallTestConfig()
	cfg.Markets = 0
	if _, err := Generate(cfg, cat, demo, engine.DefaultSettings()); err == nil {
		t.Fatal("expected error")
	}
}

func TestGenerate_WorldRunsADay(t *testing.T) {
	cat, demo := shipped(t)
	sim, err := Generate(SmallTestConfig(), cat, demo, engine.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	r, err := sim.RunMarketDay(context.Background(), cat, demo)
	if err != nil {
		t.Fatalf("day: %v", err)
	}
	if r.Day != 1 || len(r.Markets) != 2 {
		t.Errorf("report %+v", r)
	}
}

func TestAbundance_Range(t *testing.T) {
	a := newAbundance(1)
	for m := 0; m < 10; m++ {
		for p := uint64(1); p < 10; p++ {
			v := a.at(m, p)
			if v < 0.5 || v > 1.5 {
				t.Fatalf("abundance(%d, %d) = %v", m, p, v)
			}
		}
	}
}
