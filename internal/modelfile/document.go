// Package modelfile reads model documents: the molecule types, rules,
// initial species and timed events of a simulation, written in YAML.
//
// A document is decoded into plain structs, then resolved into in-memory
// definitions. Resolution collects every problem it finds into a
// ValidationError rather than stopping at the first.
package modelfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Document is the YAML form of a model.
type Document struct {
	Name          string            `yaml:"name"`
	Settings      SettingsDoc       `yaml:"settings"`
	Modifications []ModificationDoc `yaml:"modifications"`
	Mols          []MolDoc          `yaml:"mols"`
	Rules         []RuleDoc         `yaml:"rules"`
	Species       []SpeciesDoc      `yaml:"species"`
	Reactions     []ReactionDoc     `yaml:"reactions"`
	Events        []EventDoc        `yaml:"events"`
	// Dump lists dump columns: time, volume, reactions, species, the name
	// of a species entry, or family:<species entry>.
	Dump []string `yaml:"dump"`
}

// SettingsDoc overrides run configuration for this model.
type SettingsDoc struct {
	Depth             *int     `yaml:"depth"`
	Volume            *float64 `yaml:"volume"`
	StopTime          *float64 `yaml:"stop_time"`
	RateExtrapolation string   `yaml:"rate_extrapolation"`
}

// ModificationDoc declares a modification such as a phosphate group.
type ModificationDoc struct {
	Name        string  `yaml:"name"`
	WeightDelta float64 `yaml:"weight_delta"`
}

// MolDoc declares a mol type.
type MolDoc struct {
	Name string `yaml:"name"`
	// Kind is "small" or "mod". Empty means mod when mod sites are given.
	Kind         string           `yaml:"kind"`
	Weight       float64          `yaml:"weight"`
	BindingSites []BindingSiteDoc `yaml:"binding_sites"`
	ModSites     []ModSiteDoc     `yaml:"mod_sites"`
}

// BindingSiteDoc declares a binding site and its shapes.
type BindingSiteDoc struct {
	Name    string   `yaml:"name"`
	Shapes  []string `yaml:"shapes"`
	Default string   `yaml:"default"`
}

// ModSiteDoc declares a modification site.
type ModSiteDoc struct {
	Name    string `yaml:"name"`
	Default string `yaml:"default"`
}

// ComplexDoc describes a connected complex. Bindings are written
// "<mol>.<site>-<mol>.<site>" with mol positions counted from zero.
type ComplexDoc struct {
	Mols     []MolRefDoc `yaml:"mols"`
	Bindings []string    `yaml:"bindings"`
}

// MolRefDoc is one mol of a complex with optional non-default state. It
// can be written as a bare mol name.
type MolRefDoc struct {
	Mol    string            `yaml:"mol"`
	Shapes map[string]string `yaml:"shapes"`
	Mods   map[string]string `yaml:"mods"`
}

// UnmarshalYAML accepts a scalar mol name or a mapping.
func (m *MolRefDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		m.Mol = node.Value
		return nil
	}
	type plain MolRefDoc
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*m = MolRefDoc(p)
	return nil
}

// SideDoc is one end of a binding rule.
type SideDoc struct {
	Mol     string   `yaml:"mol"`
	Site    string   `yaml:"site"`
	Allowed []string `yaml:"allowed"`
	Bound   string   `yaml:"bound"`
	Unbound string   `yaml:"unbound"`
}

// PredicateDoc is a condition on the mols matched by a pattern. Exactly
// one field is set.
type PredicateDoc struct {
	All   []PredicateDoc `yaml:"all"`
	Any   []PredicateDoc `yaml:"any"`
	Not   *PredicateDoc  `yaml:"not"`
	Mod   *SiteIsDoc     `yaml:"mod"`
	Shape *SiteIsDoc     `yaml:"shape"`
}

// SiteIsDoc tests the state of one site of a pattern mol.
type SiteIsDoc struct {
	Mol  int    `yaml:"mol"`
	Site string `yaml:"site"`
	Is   string `yaml:"is"`
}

// ExchangeDoc lists what a transform rule changes.
type ExchangeDoc struct {
	Mods      []ModExchangeDoc      `yaml:"mods"`
	SmallMols []SmallMolExchangeDoc `yaml:"small_mols"`
}

// ModExchangeDoc sets a modification site of a pattern mol.
type ModExchangeDoc struct {
	Mol  int    `yaml:"mol"`
	Site string `yaml:"site"`
	To   string `yaml:"to"`
}

// SmallMolExchangeDoc replaces a pattern mol with another mol type.
type SmallMolExchangeDoc struct {
	Mol int    `yaml:"mol"`
	To  string `yaml:"to"`
}

// RuleDoc declares a rule. Type selects which fields apply.
type RuleDoc struct {
	Name          string  `yaml:"name"`
	Type          string  `yaml:"type"`
	Rate          float64 `yaml:"rate"`
	Extrapolation string  `yaml:"extrapolation"`

	// dimer and decomp
	Left  *SideDoc `yaml:"left"`
	Right *SideDoc `yaml:"right"`

	// transform
	Pattern       *ComplexDoc   `yaml:"pattern"`
	When          *PredicateDoc `yaml:"when"`
	Exchange      ExchangeDoc   `yaml:"exchange"`
	ExtraReactant *ComplexDoc   `yaml:"extra_reactant"`
	ExtraProduct  *ComplexDoc   `yaml:"extra_product"`
}

// SpeciesDoc injects copies of a complex.
type SpeciesDoc struct {
	Name       string     `yaml:"name"`
	Complex    ComplexDoc `yaml:"complex"`
	Population int64      `yaml:"population"`
	Time       float64    `yaml:"time"`
}

// ReactionDoc is a reaction given directly rather than generated by a
// rule. Its sides name species entries.
type ReactionDoc struct {
	Name      string    `yaml:"name"`
	Reactants []TermDoc `yaml:"reactants"`
	Products  []TermDoc `yaml:"products"`
	Rate      float64   `yaml:"rate"`
}

// TermDoc is a species entry with its multiplicity, written either as a
// bare name or as {species: name, mult: n}.
type TermDoc struct {
	Species string `yaml:"species"`
	Mult    int    `yaml:"mult"`
}

// UnmarshalYAML accepts a scalar species name or a mapping.
func (t *TermDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Species = node.Value
		t.Mult = 1
		return nil
	}
	type plain TermDoc
	p := plain{Mult: 1}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = TermDoc(p)
	return nil
}

// EventDoc is a timed change. Exactly one action field is set.
type EventDoc struct {
	At               float64  `yaml:"at"`
	Volume           *float64 `yaml:"volume"`
	ScaleVolume      *float64 `yaml:"scale_volume"`
	Stop             bool     `yaml:"stop"`
	NoMoreGeneration bool     `yaml:"no_more_generation"`
}

// Parse decodes a YAML document. Unknown fields are rejected.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	return &doc, nil
}
