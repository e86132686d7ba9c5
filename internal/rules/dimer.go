package rules

import (
	"fmt"
	"slices"

	"github.com/nvandessel/plexsim/internal/chem"
	"github.com/nvandessel/plexsim/internal/fault"
	"github.com/nvandessel/plexsim/internal/network"
	"github.com/nvandessel/plexsim/internal/plex"
)

// DimerSide is one half of a binding: a binding site on a mol type.
type DimerSide struct {
	Mol  *chem.Mol
	Site int
	// Allowed lists the shapes the site must be in to bind. Empty allows any.
	Allowed []string
	// Bound is the shape the site takes once bound. Empty keeps the shape.
	Bound string
}

func (s DimerSide) allows(st *chem.MolState) bool {
	return len(s.Allowed) == 0 || slices.Contains(s.Allowed, st.Shape(s.Site))
}

// bound returns the state st takes once its site is bound.
func (s DimerSide) bound(st *chem.MolState) *chem.MolState {
	if s.Bound == "" {
		return st
	}
	return st.WithShape(s.Site, s.Mol.ShapeIndex(s.Site, s.Bound))
}

func (s DimerSide) validate(entity, label string) error {
	if s.Mol == nil {
		return fault.Configf(entity, "%s side has no mol", label)
	}
	if s.Site < 0 || s.Site >= len(s.Mol.BindingSites) {
		return fault.Configf(entity, "%s side: %s has no binding site %d", label, s.Mol.Name, s.Site)
	}
	site := &s.Mol.BindingSites[s.Site]
	for _, sh := range s.Allowed {
		if site.ShapeIndex(sh) < 0 {
			return fault.Configf(entity, "%s side: site %s.%s has no shape %q", label, s.Mol.Name, site.Name, sh)
		}
	}
	if s.Bound != "" && site.ShapeIndex(s.Bound) < 0 {
		return fault.Configf(entity, "%s side: site %s.%s has no shape %q", label, s.Mol.Name, site.Name, s.Bound)
	}
	return nil
}

type registration struct {
	sp  *network.Species
	pos int
}

// DimerRule binds a free site on one complex to a free site on another.
// Every notified species is registered under the sides it can play and
// paired with everything registered under the opposite side so far.
type DimerRule struct {
	base

	Left         DimerSide
	Right        DimerSide
	Rate         float64
	Extrapolator Extrapolator

	registry   [2][]registration
	registered [2]map[registration]bool
	refWeights []float64
}

// NewDimer creates a binding rule between the two sides.
func NewDimer(name string, left, right DimerSide, rate float64) *DimerRule {
	return &DimerRule{base: base{name: name}, Left: left, Right: right, Rate: rate}
}

// Kind implements Rule.
func (r *DimerRule) Kind() string { return "dimer" }

// Homo reports whether both sides are the same site of the same mol.
func (r *DimerRule) Homo() bool {
	return r.Left.Mol == r.Right.Mol && r.Left.Site == r.Right.Site
}

// Validate reports sides that do not exist on their mols.
func (r *DimerRule) Validate() error {
	entity := fmt.Sprintf("rule %q", r.name)
	if err := r.Left.validate(entity, "left"); err != nil {
		return err
	}
	if err := r.Right.validate(entity, "right"); err != nil {
		return err
	}
	if r.Rate < 0 {
		return fault.Configf(entity, "rate %g is negative", r.Rate)
	}
	return nil
}

func (r *DimerRule) attach(e *Engine) error {
	r.engine = e
	if r.Extrapolator == nil {
		r.Extrapolator = e.extrap
	}
	ctx := e.store.States()
	r.refWeights = []float64{ctx.DefaultState(r.Left.Mol).Weight(), ctx.DefaultState(r.Right.Mol).Weight()}
	r.registered = [2]map[registration]bool{{}, {}}
	return nil
}

func (r *DimerRule) side(i int) DimerSide {
	if i == 0 {
		return r.Left
	}
	return r.Right
}

func (r *DimerRule) connect(f *network.Family) {
	sides := 2
	if r.Homo() {
		sides = 1
	}
	for i := 0; i < sides; i++ {
		s := r.side(i)
		for m, mol := range f.Paradigm.Mols {
			if mol != s.Mol {
				continue
			}
			if _, bound := f.Paradigm.BindingAt(plex.SiteRef{Mol: m, Site: s.Site}); bound {
				continue
			}
			f.Connect(&dimerFeature{rule: r, side: i}, plex.Embedding{Mols: []int{m}})
		}
	}
}

// dimerFeature is a free site that can play one side of a dimer rule.
type dimerFeature struct {
	rule *DimerRule
	side int
}

func (d *dimerFeature) Name() string { return d.rule.name }

func (d *dimerFeature) Respond(sp *network.Species, emb plex.Embedding, depth int) error {
	r := d.rule
	s := r.side(d.side)
	pos := emb.Mols[0]
	if !s.allows(sp.Params[pos]) {
		return nil
	}

	me := registration{sp: sp, pos: pos}
	if !r.registered[d.side][me] {
		r.registered[d.side][me] = true
		r.registry[d.side] = append(r.registry[d.side], me)
	}

	other := 1 - d.side
	if r.Homo() {
		other = 0
	}
	// Pairing can register more species, so work on a copy.
	partners := append([]registration(nil), r.registry[other]...)
	for _, p := range partners {
		var err error
		if d.side == 0 {
			err = r.pair(sp, me, p, depth)
		} else {
			err = r.pair(sp, p, me, depth)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// pair binds left to right and interns the reaction.
func (r *DimerRule) pair(trigger *network.Species, left, right registration, depth int) error {
	store := r.engine.store
	lp, rp := left.sp.Family.Paradigm, right.sp.Family.Paradigm
	joined, err := plex.Join(lp, rp,
		plex.SiteRef{Mol: left.pos, Site: r.Left.Site},
		plex.SiteRef{Mol: right.pos, Site: r.Right.Site})
	if err != nil {
		return fmt.Errorf("rule %q: joining %s and %s: %w", r.name, left.sp.Tag(), right.sp.Tag(), err)
	}

	params := append(left.sp.Params.Clone(), right.sp.Params...)
	off := len(lp.Mols)
	params[left.pos] = r.Left.bound(params[left.pos])
	params[off+right.pos] = r.Right.bound(params[off+right.pos])

	product, created, err := store.InternComplex(network.Complex{Plex: joined, Params: params})
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.name, err)
	}

	reactants := []network.SpeciesID{left.sp.ID, right.sp.ID}
	products := []network.SpeciesID{product.ID}
	var fresh []*network.Species
	if created {
		fresh = append(fresh, product)
	}
	rate := r.Extrapolator.Rate(r.Rate, r.refWeights, []float64{left.sp.Weight(), right.sp.Weight()})
	return r.finish(r, trigger, reactionKey(store, reactants, products), reactants, products, fresh, rate, depth)
}
