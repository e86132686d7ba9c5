package network

import (
	"math"

	"github.com/nvandessel/plexsim/internal/fault"
)

// ExplicitGenerator owns the reactions a model lists directly instead of
// leaving them to a rule.
const ExplicitGenerator = explicitGenerator("explicit")

type explicitGenerator string

func (g explicitGenerator) Name() string { return string(g) }

// AddExplicitReaction interns a reaction that no rule generates. Explicit
// reactions are keyed by name, so two of them may share their terms.
// Repeated species in a side are merged.
func (s *Store) AddExplicitReaction(name string, reactants, products []Term, rate float64) (*Reaction, error) {
	entity := "reaction " + name
	if name == "" {
		return nil, fault.Configf("reaction", "name is required")
	}
	if len(reactants) == 0 {
		return nil, fault.Configf(entity, "needs at least one reactant")
	}
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fault.Configf(entity, "rate %g must be a non-negative number", rate)
	}
	count := SpeciesID(s.SpeciesCount())
	merge := func(side []Term) ([]Term, error) {
		var out []Term
	next:
		for _, t := range side {
			if t.Species < 0 || t.Species >= count {
				return nil, fault.Configf(entity, "unknown species s%d", t.Species)
			}
			if t.Mult < 1 {
				return nil, fault.Configf(entity, "multiplicity %d of s%d must be positive", t.Mult, t.Species)
			}
			for i := range out {
				if out[i].Species == t.Species {
					out[i].Mult += t.Mult
					continue next
				}
			}
			out = append(out, t)
		}
		return out, nil
	}
	in, err := merge(reactants)
	if err != nil {
		return nil, err
	}
	out, err := merge(products)
	if err != nil {
		return nil, err
	}

	r, created, err := s.InternReaction(ExplicitGenerator, name, func() (*Reaction, error) {
		return &Reaction{Reactants: in, Products: out, Rate: rate}, nil
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fault.Configf(entity, "duplicate explicit reaction")
	}
	return r, nil
}
