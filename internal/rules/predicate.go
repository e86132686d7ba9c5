package rules

import (
	"fmt"

	"github.com/nvandessel/plexsim/internal/chem"
	"github.com/nvandessel/plexsim/internal/plex"
)

// StateView returns the state of pattern mol i in the complex under test.
type StateView func(i int) *chem.MolState

// Predicate is a boolean test over the states of a rule's pattern mols.
type Predicate interface {
	Eval(v StateView) bool
	// Validate checks the predicate only refers to positions the pattern has.
	Validate(pattern *plex.Plex) error
}

// True always holds.
type True struct{}

func (True) Eval(StateView) bool { return true }
func (True) Validate(*plex.Plex) error { return nil }

// ModIs holds when modification site Site of pattern mol Mol carries Mod.
type ModIs struct {
	Mol  int
	Site int
	Mod  *chem.Modification
}

func (p ModIs) Eval(v StateView) bool { return v(p.Mol).Mods[p.Site] == p.Mod }

func (p ModIs) Validate(pattern *plex.Plex) error {
	if p.Mol < 0 || p.Mol >= len(pattern.Mols) {
		return fmt.Errorf("predicate refers to mol %d outside the pattern", p.Mol)
	}
	m := pattern.Mols[p.Mol]
	if p.Site < 0 || p.Site >= len(m.ModSites) {
		return fmt.Errorf("predicate refers to modification site %d, which %s does not have", p.Site, m.Name)
	}
	if p.Mod == nil {
		return fmt.Errorf("predicate on %s.%s has no modification", m.Name, m.ModSites[p.Site].Name)
	}
	return nil
}

// ShapeIs holds when binding site Site of pattern mol Mol is in Shape.
type ShapeIs struct {
	Mol   int
	Site  int
	Shape int
}

func (p ShapeIs) Eval(v StateView) bool { return v(p.Mol).Shapes[p.Site] == p.Shape }

func (p ShapeIs) Validate(pattern *plex.Plex) error {
	if p.Mol < 0 || p.Mol >= len(pattern.Mols) {
		return fmt.Errorf("predicate refers to mol %d outside the pattern", p.Mol)
	}
	m := pattern.Mols[p.Mol]
	if p.Site < 0 || p.Site >= len(m.BindingSites) {
		return fmt.Errorf("predicate refers to binding site %d, which %s does not have", p.Site, m.Name)
	}
	if p.Shape < 0 || p.Shape >= len(m.BindingSites[p.Site].Shapes) {
		return fmt.Errorf("predicate refers to shape %d, which %s.%s does not have",
			p.Shape, m.Name, m.BindingSites[p.Site].Name)
	}
	return nil
}

// And holds when every operand holds.
type And []Predicate

func (p And) Eval(v StateView) bool {
	for _, q := range p {
		if !q.Eval(v) {
			return false
		}
	}
	return true
}

func (p And) Validate(pattern *plex.Plex) error { return validateAll(p, pattern) }

// Or holds when any operand holds.
type Or []Predicate

func (p Or) Eval(v StateView) bool {
	for _, q := range p {
		if q.Eval(v) {
			return true
		}
	}
	return false
}

func (p Or) Validate(pattern *plex.Plex) error { return validateAll(p, pattern) }

// Not inverts its operand.
type Not struct{ P Predicate }

func (p Not) Eval(v StateView) bool { return !p.P.Eval(v) }

func (p Not) Validate(pattern *plex.Plex) error {
	if p.P == nil {
		return fmt.Errorf("negation without operand")
	}
	return p.P.Validate(pattern)
}

func validateAll(ps []Predicate, pattern *plex.Plex) error {
	for _, q := range ps {
		if q == nil {
			return fmt.Errorf("nil predicate operand")
		}
		if err := q.Validate(pattern); err != nil {
			return err
		}
	}
	return nil
}
