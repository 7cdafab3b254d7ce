package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/actors"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/engine"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/market"
)

func world(t *testing.T) *engine.Simulation {
	t.Helper()
	sim := engine.NewSimulation(engine.DefaultSettings())
	m := &market.Market{ID: 3, Name: "Oakford"}
	sim.AddMarket(m)
	p := actors.NewPop(1, "the Larks", 3, 1, 0, 8)
	p.Property.Ledger(1).AddProperty(25)
	if err := sim.AddPop(p); err != nil {
		t.Fatal(err)
	}
	f := actors.NewFirm(2, "baking", 3, 2)
	f.Property.Ledger(4).AddProperty(9)
	if err := sim.AddFirm(f); err != nil {
		t.Fatal(err)
	}
	if err := sim.AddState(&actors.State{ID: 5, Name: "crown", Markets: []uint64{3}, Property: actors.Property{}}, 3); err != nil {
		t.Fatal(err)
	}
	sim.Day = 12
	return sim
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snaps", Name(12))
	if err := Write(path, Take(world(t))); err != nil {
		t.Fatal(err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	if h.Day != 12 || h.Pops != 1 || h.Markets != 1 || h.Version != Version {
		t.Errorf("header = %+v", h)
	}

	snap, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	sim := snap.Restore(engine.DefaultSettings())
	if sim.Day != 12 {
		t.Errorf("day = %d", sim.Day)
	}
	if got := sim.Pops[1].Stock(1); got != 25 {
		t.Errorf("pop coin = %v", got)
	}
	if got := sim.Firms[2].Stock(4); got != 9 {
		t.Errorf("firm bread = %v", got)
	}
	if !sim.Markets[3].HasPop(1) || len(sim.Markets[3].States) != 1 {
		t.Errorf("market members = %+v", sim.Markets[3])
	}
}

func TestRead_MissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.zst")); err == nil {
		t.Fatal("expected error")
	}
}

func TestName(t *testing.T) {
	if got := Name(42); got != "day-00000042.json.zst" {
		t.Errorf("Name(42) = %q", got)
	}
}
