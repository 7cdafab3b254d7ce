// Package demographics holds the species and culture desire templates pops
// use to size their wants and property targets. Read-only during a day.
package demographics

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DesireKind says what a desire is satisfied by.
type DesireKind string

const (
	KindProduct DesireKind = "product" // one specific product
	KindClass   DesireKind = "class"   // any product of a class
	KindWant    DesireKind = "want"    // a want, via products that yield it
)

// DesireTemplate describes a per-capita desire spanning one or more tiers.
type DesireTemplate struct {
	Kind      DesireKind `yaml:"kind" json:"kind"`
	ID        uint64     `yaml:"id" json:"id"`
	Amount    float64    `yaml:"amount" json:"amount"` // per capita per step
	StartTier int        `yaml:"start_tier" json:"start_tier"`
	Steps     int        `yaml:"steps" json:"steps"`         // 0 means 1
	TierStep  int        `yaml:"tier_step" json:"tier_step"` // tiers between steps
}

type Species struct {
	ID             uint64           `yaml:"id" json:"id"`
	Name           string           `yaml:"name" json:"name"`
	LaborPerCapita float64          `yaml:"labor_per_capita" json:"labor_per_capita"`
	Desires        []DesireTemplate `yaml:"desires" json:"desires"`
}

type Culture struct {
	ID      uint64           `yaml:"id" json:"id"`
	Name    string           `yaml:"name" json:"name"`
	Desires []DesireTemplate `yaml:"desires" json:"desires"`
}

// Demographics indexes species and cultures by id.
type Demographics struct {
	Species  map[uint64]Species
	Cultures map[uint64]Culture
}

type document struct {
	Species  []Species `yaml:"species"`
	Cultures []Culture `yaml:"cultures"`
}

// Load reads a demographics YAML file.
func Load(path string) (*Demographics, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Parse decodes and validates demographics YAML.
func Parse(raw []byte) (*Demographics, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("demographics yaml: %w", err)
	}
	d := &Demographics{
		Species:  make(map[uint64]Species, len(doc.Species)),
		Cultures: make(map[uint64]Culture, len(doc.Cultures)),
	}
	for _, s := range doc.Species {
		if err := validate(s.Desires); err != nil {
			return nil, fmt.Errorf("species %d: %w", s.ID, err)
		}
		d.Species[s.ID] = s
	}
	for _, c := range doc.Cultures {
		if err := validate(c.Desires); err != nil {
			return nil, fmt.Errorf("culture %d: %w", c.ID, err)
		}
		d.Cultures[c.ID] = c
	}
	if len(d.Species) == 0 {
		return nil, fmt.Errorf("no species defined")
	}
	return d, nil
}

func validate(ds []DesireTemplate) error {
	for i, t := range ds {
		switch t.Kind {
		case KindProduct, KindClass, KindWant:
		default:
			return fmt.Errorf("desire %d: unknown kind %q", i, t.Kind)
		}
		if t.Amount <= 0 {
			return fmt.Errorf("desire %d: amount must be positive", i)
		}
		if t.Steps < 0 || t.TierStep < 0 {
			return fmt.Errorf("desire %d: negative steps", i)
		}
	}
	return nil
}

// Templates returns the combined desire templates for a species and culture,
// ordered by start tier. An unknown culture contributes nothing.
func (d *Demographics) Templates(species, culture uint64) ([]DesireTemplate, error) {
	s, ok := d.Species[species]
	if !ok {
		return nil, fmt.Errorf("unknown species %d", species)
	}
	out := append([]DesireTemplate(nil), s.Desires...)
	if c, ok := d.Cultures[culture]; ok {
		out = append(out, c.Desires...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTier < out[j].StartTier })
	return out, nil
}

// LaborPerCapita returns the daily labor a species member produces.
func (d *Demographics) LaborPerCapita(species uint64) float64 {
	return d.Species[species].LaborPerCapita
}

// SpeciesIDs returns species ids in ascending order.
func (d *Demographics) SpeciesIDs() []uint64 {
	return sortedKeys(d.Species)
}

// CultureIDs returns culture ids in ascending order.
func (d *Demographics) CultureIDs() []uint64 {
	return sortedKeys(d.Cultures)
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DesireStep is one tier of an expanded desire, sized for a whole pop.
type DesireStep struct {
	Kind   DesireKind
	ID     uint64
	Tier   int
	Amount float64
}

// Desires expands the species and culture templates for a pop of size
// members into per-tier steps, ordered by tier. Steps on the same tier keep
// template order.
func (d *Demographics) Desires(species, culture uint64, size float64) ([]DesireStep, error) {
	ts, err := d.Templates(species, culture)
	if err != nil {
		return nil, err
	}
	var out []DesireStep
	for _, t := range ts {
		steps := t.Steps
		if steps == 0 {
			steps = 1
		}
		stride := t.TierStep
		if stride == 0 {
			stride = 1
		}
		for i := 0; i < steps; i++ {
			out = append(out, DesireStep{
				Kind:   t.Kind,
				ID:     t.ID,
				Tier:   t.StartTier + i*stride,
				Amount: t.Amount * size,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out, nil
}
