package network

import (
	"strconv"
	"strings"

	"github.com/nvandessel/plexsim/internal/chem"
	"github.com/nvandessel/plexsim/internal/plex"
)

// SpeciesID is the arena handle of a species.
type SpeciesID int

// ReactionID is the arena handle of a reaction.
type ReactionID int

// ParamVector holds one interned mol state per mol of a complex.
type ParamVector []*chem.MolState

// Key returns the interning key of the vector. States are interned, so
// their IDs identify them.
func (v ParamVector) Key() string {
	var b strings.Builder
	for i, st := range v {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(st.ID))
	}
	return b.String()
}

// Reindex moves every state through iso.
func (v ParamVector) Reindex(iso plex.Isomorphism) ParamVector {
	return plex.Permute(iso, v)
}

// Clone returns a copy that can be modified independently.
func (v ParamVector) Clone() ParamVector {
	return append(ParamVector(nil), v...)
}

// Weight sums the state weights.
func (v ParamVector) Weight() float64 {
	var w float64
	for _, st := range v {
		w += st.Weight()
	}
	return w
}

// Complex is a plex together with the state of each of its mols, in plex
// order. It is the input form of a species before recognition.
type Complex struct {
	Plex   *plex.Plex
	Params ParamVector
}

// ExpansionState is how far the rules have explored from a species.
type ExpansionState int

const (
	// Unexplored species have never been notified.
	Unexplored ExpansionState = iota
	// Notified species have been notified below the depth limit.
	Notified
	// FullyExpanded species have been notified at the depth limit.
	FullyExpanded
)

func (e ExpansionState) String() string {
	switch e {
	case Notified:
		return "notified"
	case FullyExpanded:
		return "fully-expanded"
	default:
		return "unexplored"
	}
}

// Species is a family member with a particular state vector. Only the
// population changes after creation.
type Species struct {
	ID         SpeciesID
	Family     *Family
	Params     ParamVector
	Population int64

	notified   int
	reactantOf []ReactionID
	productOf  []ReactionID
}

// Tag is the stable external name of the species.
func (s *Species) Tag() string { return "s" + strconv.Itoa(int(s.ID)) }

// Weight returns the total weight of the complex.
func (s *Species) Weight() float64 { return s.Params.Weight() }

// Name renders the member states in paradigm order, e.g. "A(x=bound)-B".
func (s *Species) Name() string {
	parts := make([]string, len(s.Params))
	for i, st := range s.Params {
		parts[i] = st.String()
	}
	return strings.Join(parts, "-")
}

// NotifiedDepth returns the deepest notification so far, or -1.
func (s *Species) NotifiedDepth() int { return s.notified }

// ReactantOf returns the reactions consuming this species.
func (s *Species) ReactantOf() []ReactionID { return s.reactantOf }

// ProductOf returns the reactions producing this species.
func (s *Species) ProductOf() []ReactionID { return s.productOf }

// Generator is whatever produced a reaction, usually a rule.
type Generator interface {
	Name() string
}

// Term is one species of a reaction side with its multiplicity.
type Term struct {
	Species SpeciesID
	Mult    int
}

// Terms groups species into terms, merging repeats. Order of first
// appearance is kept.
func Terms(ids ...SpeciesID) []Term {
	var out []Term
outer:
	for _, id := range ids {
		for i := range out {
			if out[i].Species == id {
				out[i].Mult++
				continue outer
			}
		}
		out = append(out, Term{Species: id, Mult: 1})
	}
	return out
}

// Reaction converts reactants into products at a fixed rate.
type Reaction struct {
	ID        ReactionID
	Generator Generator
	Key       string
	Reactants []Term
	Products  []Term
	Rate      float64
}

// Tag is the stable external name of the reaction.
func (r *Reaction) Tag() string { return "r" + strconv.Itoa(int(r.ID)) }

// Order is the total reactant multiplicity.
func (r *Reaction) Order() int {
	n := 0
	for _, t := range r.Reactants {
		n += t.Mult
	}
	return n
}

// Delta returns the population change of id when the reaction fires once.
func (r *Reaction) Delta(id SpeciesID) int64 {
	var d int64
	for _, t := range r.Reactants {
		if t.Species == id {
			d -= int64(t.Mult)
		}
	}
	for _, t := range r.Products {
		if t.Species == id {
			d += int64(t.Mult)
		}
	}
	return d
}
