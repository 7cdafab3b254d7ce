package demographics

import (
	"path/filepath"
	"runtime"
	"testing"
)

const sample = `
species:
  - id: 1
    name: human
    labor_per_capita: 1.5
    desires:
      - {kind: class, id: 10, amount: 1, start_tier: 0, steps: 3, tier_step: 2}
      - {kind: want, id: 2, amount: 0.5, start_tier: 1}
cultures:
  - id: 7
    name: riverfolk
    desires:
      - {kind: product, id: 5, amount: 0.25, start_tier: 3}
`

func TestDesires_ExpandsAndOrders(t *testing.T) {
	d, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	steps, err := d.Desires(1, 7, 10)
	if err != nil {
		t.Fatalf("desires: %v", err)
	}
	wantTiers := []int{0, 1, 2, 3, 4}
	if len(steps) != len(wantTiers) {
		t.Fatalf("steps: got %d want %d (%+v)", len(steps), len(wantTiers), steps)
	}
	for i, s := range steps {
		if s.Tier != wantTiers[i] {
			t.Fatalf("step %d tier: got %d want %d", i, s.Tier, wantTiers[i])
		}
	}
	if steps[1].Kind != KindWant || steps[1].Amount != 5 {
		t.Fatalf("want step: %+v", steps[1])
	}
	if steps[3].Kind != KindProduct || steps[3].Amount != 2.5 {
		t.Fatalf("culture step: %+v", steps[3])
	}
	if d.LaborPerCapita(1) != 1.5 {
		t.Fatalf("labor per capita: %v", d.LaborPerCapita(1))
	}
}

func TestDesires_UnknownCultureIgnored(t *testing.T) {
	d, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	steps, err := d.Desires(1, 99, 1)
	if err != nil {
		t.Fatalf("desires: %v", err)
	}
	if len(steps) != 4 {
		t.Fatalf("steps: %d", len(steps))
	}
	if _, err := d.Desires(42, 7, 1); err == nil {
		t.Fatalf("expected unknown species error")
	}
}

func TestParse_RejectsBadTemplates(t *testing.T) {
	cases := map[string]string{
		"kind":    "species: [{id: 1, desires: [{kind: vibe, id: 1, amount: 1}]}]",
		"amount":  "species: [{id: 1, desires: [{kind: want, id: 1, amount: 0}]}]",
		"steps":   "species: [{id: 1, desires: [{kind: want, id: 1, amount: 1, steps: -1}]}]",
		"empty":   "cultures: []",
		"garbage": "species: {",
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoad_ShippedFile(t *testing.T) {
	_, file, _, _ := runtime.Caller(0)
	path := filepath.Join(filepath.Dir(file), "..", "..", "configs", "demographics.yaml")
	d, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(d.SpeciesIDs()) == 0 || len(d.CultureIDs()) == 0 {
		t.Fatalf("shipped demographics are empty")
	}
}
