package rules

import (
	"fmt"

	"github.com/nvandessel/plexsim/internal/chem"
	"github.com/nvandessel/plexsim/internal/fault"
	"github.com/nvandessel/plexsim/internal/network"
	"github.com/nvandessel/plexsim/internal/plex"
)

// DecompRule breaks a binding between two sites. The complex falls apart
// into its remaining connected components; breaking a ring leaves one.
type DecompRule struct {
	base

	// Left and Right name the ends of the binding. Their Allowed shapes
	// gate which bindings may break; their Bound shapes are ignored. The
	// freed sites take LeftUnbound and RightUnbound, or their defaults.
	Left         DimerSide
	Right        DimerSide
	LeftUnbound  string
	RightUnbound string
	Rate         float64
	Extrapolator Extrapolator
}

// NewDecomp creates an unbinding rule for the binding between the sides.
func NewDecomp(name string, left, right DimerSide, rate float64) *DecompRule {
	return &DecompRule{base: base{name: name}, Left: left, Right: right, Rate: rate}
}

// Kind implements Rule.
func (r *DecompRule) Kind() string { return "decomp" }

// Validate reports sites and shapes that do not exist.
func (r *DecompRule) Validate() error {
	entity := fmt.Sprintf("rule %q", r.name)
	if err := r.Left.validate(entity, "left"); err != nil {
		return err
	}
	if err := r.Right.validate(entity, "right"); err != nil {
		return err
	}
	for _, u := range []struct {
		side  DimerSide
		shape string
	}{{r.Left, r.LeftUnbound}, {r.Right, r.RightUnbound}} {
		if u.shape != "" && u.side.Mol.ShapeIndex(u.side.Site, u.shape) < 0 {
			return fault.Configf(entity, "site %s.%s has no shape %q",
				u.side.Mol.Name, u.side.Mol.BindingSites[u.side.Site].Name, u.shape)
		}
	}
	if r.Rate < 0 {
		return fault.Configf(entity, "rate %g is negative", r.Rate)
	}
	return nil
}

func (r *DecompRule) attach(e *Engine) error {
	r.engine = e
	if r.Extrapolator == nil {
		r.Extrapolator = e.extrap
	}
	return nil
}

func (r *DecompRule) matches(p *plex.Plex, a, b plex.SiteRef) bool {
	return p.Mols[a.Mol] == r.Left.Mol && a.Site == r.Left.Site &&
		p.Mols[b.Mol] == r.Right.Mol && b.Site == r.Right.Site
}

func (r *DecompRule) connect(f *network.Family) {
	p := f.Paradigm
	for j, b := range p.Bindings {
		var emb plex.Embedding
		switch {
		case r.matches(p, b.A, b.B):
			emb = plex.Embedding{Mols: []int{b.A.Mol, b.B.Mol}, Bindings: []int{j}}
		case r.matches(p, b.B, b.A):
			emb = plex.Embedding{Mols: []int{b.B.Mol, b.A.Mol}, Bindings: []int{j}}
		default:
			continue
		}
		f.Connect(r, emb)
	}
}

// Respond splits sp at the binding named by emb.
func (r *DecompRule) Respond(sp *network.Species, emb plex.Embedding, depth int) error {
	l, rt := emb.Mols[0], emb.Mols[1]
	if !r.Left.allows(sp.Params[l]) || !r.Right.allows(sp.Params[rt]) {
		return nil
	}
	store := r.engine.store

	p := sp.Family.Paradigm.Clone()
	j := emb.Bindings[0]
	p.Bindings = append(p.Bindings[:j:j], p.Bindings[j+1:]...)

	params := sp.Params.Clone()
	params[l] = unbind(params[l], r.Left.Site, r.LeftUnbound)
	params[rt] = unbind(params[rt], r.Right.Site, r.RightUnbound)

	var products []network.SpeciesID
	var fresh []*network.Species
	for _, comp := range p.Components() {
		sub := make(network.ParamVector, len(comp))
		for i, m := range comp {
			sub[i] = params[m]
		}
		prod, created, err := store.InternComplex(network.Complex{Plex: p.Sub(comp), Params: sub})
		if err != nil {
			return fmt.Errorf("rule %q: %w", r.name, err)
		}
		products = append(products, prod.ID)
		if created {
			fresh = append(fresh, prod)
		}
	}

	reactants := []network.SpeciesID{sp.ID}
	rate := r.Extrapolator.Rate(r.Rate, nil, []float64{sp.Weight()})
	return r.finish(r, sp, reactionKey(store, reactants, products), reactants, products, fresh, rate, depth)
}

// unbind puts a freed site into the given shape, or its default shape when
// none is given.
func unbind(st *chem.MolState, site int, shape string) *chem.MolState {
	if shape == "" {
		shape = st.Mol.BindingSites[site].DefaultShape
	}
	return st.WithShape(site, st.Mol.ShapeIndex(site, shape))
}
