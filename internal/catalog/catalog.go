// Package catalog holds the static reference data for a session: products,
// wants, processes, skills and technologies. It is loaded once and is
// read-only while a market day runs.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.schema.json
var schemaJSON string

// Yield is an amount of a want produced per unit of a product.
type Yield struct {
	Want   uint64  `yaml:"want" json:"want"`
	Amount float64 `yaml:"amount" json:"amount"`
}

// Amount is a quantity of a product.
type Amount struct {
	Product uint64  `yaml:"product" json:"product"`
	Amount  float64 `yaml:"amount" json:"amount"`
}

// Product is a directly ownable, tradable good.
type Product struct {
	ID        uint64  `yaml:"id" json:"id"`
	Name      string  `yaml:"name" json:"name"`
	Class     uint64  `yaml:"class" json:"class,omitempty"` // 0 = no class
	BaseValue float64 `yaml:"base_value" json:"base_value"` // AMV
	Decay     float64 `yaml:"decay" json:"decay,omitempty"` // fraction lost per day
	Currency  bool    `yaml:"currency" json:"currency,omitempty"`
	Labor     bool    `yaml:"labor" json:"labor,omitempty"`

	ConsumptionWants []Yield `yaml:"consumption_wants" json:"consumption_wants,omitempty"`
	OwnershipWants   []Yield `yaml:"ownership_wants" json:"ownership_wants,omitempty"`
}

// Want is an abstract, non-tradable desire satisfied through products.
type Want struct {
	ID    uint64  `yaml:"id" json:"id"`
	Name  string  `yaml:"name" json:"name"`
	Decay float64 `yaml:"decay" json:"decay,omitempty"`
}

// Process turns input products into output products.
type Process struct {
	ID         uint64   `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	Inputs     []Amount `yaml:"inputs" json:"inputs,omitempty"`
	Outputs    []Amount `yaml:"outputs" json:"outputs"`
	DailyRuns  int      `yaml:"daily_runs" json:"daily_runs,omitempty"`
	Skill      uint64   `yaml:"skill" json:"skill,omitempty"`
	Technology uint64   `yaml:"technology" json:"technology,omitempty"`
}

type Skill struct {
	ID   uint64 `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

type Technology struct {
	ID   uint64 `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

type document struct {
	Products     []Product    `yaml:"products"`
	Wants        []Want       `yaml:"wants"`
	Processes    []Process    `yaml:"processes"`
	Skills       []Skill      `yaml:"skills"`
	Technologies []Technology `yaml:"technologies"`
}

// Catalog is the indexed, validated reference data.
type Catalog struct {
	Products     map[uint64]Product
	Wants        map[uint64]Want
	Processes    map[uint64]Process
	Skills       map[uint64]Skill
	Technologies map[uint64]Technology

	money       uint64
	classes     map[uint64][]uint64 // class id -> products
	wantSources map[uint64][]uint64 // want id -> products yielding it on consumption
	ownSources  map[uint64][]uint64 // want id -> products yielding it while owned
}

// Load reads and validates a catalog YAML file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse validates raw YAML against the catalog schema and indexes it.
func Parse(raw []byte) (*Catalog, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog yaml: %w", err)
	}
	return build(doc)
}

func validateSchema(raw []byte) error {
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("catalog yaml: %w", err)
	}
	// Round-trip through JSON so the validator sees JSON-native types.
	b, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("catalog yaml: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("catalog yaml: %w", err)
	}
	schema, err := jsonschema.CompileString("catalog.schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile catalog schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("catalog schema: %w", err)
	}
	return nil
}

func build(doc document) (*Catalog, error) {
	c := &Catalog{
		Products:     make(map[uint64]Product, len(doc.Products)),
		Wants:        make(map[uint64]Want, len(doc.Wants)),
		Processes:    make(map[uint64]Process, len(doc.Processes)),
		Skills:       make(map[uint64]Skill, len(doc.Skills)),
		Technologies: make(map[uint64]Technology, len(doc.Technologies)),
		classes:      make(map[uint64][]uint64),
		wantSources:  make(map[uint64][]uint64),
		ownSources:   make(map[uint64][]uint64),
	}
	for _, w := range doc.Wants {
		if _, dup := c.Wants[w.ID]; dup {
			return nil, fmt.Errorf("duplicate want id %d", w.ID)
		}
		c.Wants[w.ID] = w
	}
	for _, s := range doc.Skills {
		c.Skills[s.ID] = s
	}
	for _, t := range doc.Technologies {
		c.Technologies[t.ID] = t
	}
	for _, p := range doc.Products {
		if _, dup := c.Products[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product id %d", p.ID)
		}
		if p.Currency {
			if c.money != 0 {
				return nil, fmt.Errorf("products %d and %d both marked currency", c.money, p.ID)
			}
			c.money = p.ID
		}
		for _, y := range append(append([]Yield(nil), p.ConsumptionWants...), p.OwnershipWants...) {
			if _, ok := c.Wants[y.Want]; !ok {
				return nil, fmt.Errorf("product %d yields unknown want %d", p.ID, y.Want)
			}
		}
		c.Products[p.ID] = p
	}
	if c.money == 0 {
		return nil, fmt.Errorf("no currency product")
	}

	for _, pr := range doc.Processes {
		for _, a := range append(append([]Amount(nil), pr.Inputs...), pr.Outputs...) {
			if _, ok := c.Products[a.Product]; !ok {
				return nil, fmt.Errorf("process %d references unknown product %d", pr.ID, a.Product)
			}
		}
		if pr.Skill != 0 {
			if _, ok := c.Skills[pr.Skill]; !ok {
				return nil, fmt.Errorf("process %d references unknown skill %d", pr.ID, pr.Skill)
			}
		}
		if pr.Technology != 0 {
			if _, ok := c.Technologies[pr.Technology]; !ok {
				return nil, fmt.Errorf("process %d references unknown technology %d", pr.ID, pr.Technology)
			}
		}
		if pr.DailyRuns == 0 {
			pr.DailyRuns = 1
		}
		c.Processes[pr.ID] = pr
	}

	for _, id := range c.ProductIDs() {
		p := c.Products[id]
		if p.Class != 0 {
			c.classes[p.Class] = append(c.classes[p.Class], id)
		}
		for _, y := range p.ConsumptionWants {
			c.wantSources[y.Want] = append(c.wantSources[y.Want], id)
		}
		for _, y := range p.OwnershipWants {
			c.ownSources[y.Want] = append(c.ownSources[y.Want], id)
		}
	}
	return c, nil
}

// Product looks up a product by id.
func (c *Catalog) Product(id uint64) (Product, bool) {
	p, ok := c.Products[id]
	return p, ok
}

// Process looks up a process by id.
func (c *Catalog) Process(id uint64) (Process, bool) {
	p, ok := c.Processes[id]
	return p, ok
}

// Money returns the id of the currency product.
func (c *Catalog) Money() uint64 { return c.money }

// ProductsInClass returns the products of a class in id order.
func (c *Catalog) ProductsInClass(class uint64) []uint64 { return c.classes[class] }

// WantSources returns the products that yield a want when consumed, in id order.
func (c *Catalog) WantSources(want uint64) []uint64 { return c.wantSources[want] }

// OwnershipSources returns the products that yield a want while owned, in id order.
func (c *Catalog) OwnershipSources(want uint64) []uint64 { return c.ownSources[want] }

// ConsumptionYield returns how much of a want one unit of product yields when consumed.
func (c *Catalog) ConsumptionYield(product, want uint64) float64 {
	for _, y := range c.Products[product].ConsumptionWants {
		if y.Want == want {
			return y.Amount
		}
	}
	return 0
}

// OwnershipYield returns how much of a want one owned unit of product yields per day.
func (c *Catalog) OwnershipYield(product, want uint64) float64 {
	for _, y := range c.Products[product].OwnershipWants {
		if y.Want == want {
			return y.Amount
		}
	}
	return 0
}

// ProductIDs returns every product id in ascending order.
func (c *Catalog) ProductIDs() []uint64 {
	ids := make([]uint64, 0, len(c.Products))
	for id := range c.Products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ProcessIDs returns every process id in ascending order.
func (c *Catalog) ProcessIDs() []uint64 {
	ids := make([]uint64, 0, len(c.Processes))
	for id := range c.Processes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LaborProducts returns the products flagged as labor, in id order.
func (c *Catalog) LaborProducts() []uint64 {
	var out []uint64
	for _, id := range c.ProductIDs() {
		if c.Products[id].Labor {
			out = append(out, id)
		}
	}
	return out
}
