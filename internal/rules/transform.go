package rules

import (
	"fmt"

	"github.com/nvandessel/plexsim/internal/chem"
	"github.com/nvandessel/plexsim/internal/fault"
	"github.com/nvandessel/plexsim/internal/network"
	"github.com/nvandessel/plexsim/internal/plex"
)

// SmallMolExchange replaces pattern mol Mol with a mol of another type,
// e.g. ATP for ADP. The replacement must have the same binding sites.
type SmallMolExchange struct {
	Mol         int
	Replacement *chem.Mol
}

// ModExchange sets modification site Site of pattern mol Mol to Mod. When a
// small-mol exchange also targets Mol, Site indexes the replacement's sites.
type ModExchange struct {
	Mol  int
	Site int
	Mod  *chem.Modification
}

// TransformRule rewrites the mols matched by a pattern in place. With a
// single-mol pattern it is a uni-rule; with a larger connected pattern it
// is an omni-rule and fires once for every embedding of the pattern.
type TransformRule struct {
	base

	Pattern           *plex.Plex
	Predicate         Predicate
	SmallMolExchanges []SmallMolExchange
	ModExchanges      []ModExchange
	// ExtraReactant and ExtraProduct are explicit species consumed and
	// released alongside the trigger, e.g. ATP and ADP.
	ExtraReactant *network.Complex
	ExtraProduct  *network.Complex
	Rate          float64
	Extrapolator  Extrapolator

	extraReactant *network.Species
	extraProduct  *network.Species
	refWeights    []float64
}

// NewTransform creates a transform rule over pattern.
func NewTransform(name string, pattern *plex.Plex, rate float64) *TransformRule {
	return &TransformRule{base: base{name: name}, Pattern: pattern, Rate: rate}
}

// Kind implements Rule.
func (r *TransformRule) Kind() string {
	if r.Pattern != nil && len(r.Pattern.Mols) > 1 {
		return "omni"
	}
	return "uni"
}

// Validate reports exchanges and predicates that point outside the pattern.
func (r *TransformRule) Validate() error {
	entity := fmt.Sprintf("rule %q", r.name)
	if r.Pattern == nil {
		return fault.Configf(entity, "pattern is required")
	}
	if err := r.Pattern.Validate(); err != nil {
		return fault.WrapConfig(err, entity, "invalid pattern")
	}
	if r.Rate < 0 {
		return fault.Configf(entity, "rate %g is negative", r.Rate)
	}
	if len(r.SmallMolExchanges) == 0 && len(r.ModExchanges) == 0 {
		return fault.Configf(entity, "rule changes nothing")
	}

	for _, x := range r.SmallMolExchanges {
		if x.Mol < 0 || x.Mol >= len(r.Pattern.Mols) {
			return fault.Configf(entity, "small-mol exchange targets mol %d outside the pattern", x.Mol)
		}
		orig := r.Pattern.Mols[x.Mol]
		if x.Replacement == nil {
			return fault.Configf(entity, "small-mol exchange on %s has no replacement", orig.Name)
		}
		if len(x.Replacement.BindingSites) != len(orig.BindingSites) {
			return fault.Configf(entity, "replacement %s does not have the binding sites of %s",
				x.Replacement.Name, orig.Name)
		}
		for i := range orig.BindingSites {
			if orig.BindingSites[i].Name != x.Replacement.BindingSites[i].Name {
				return fault.Configf(entity, "replacement %s has no site %q",
					x.Replacement.Name, orig.BindingSites[i].Name)
			}
		}
	}
	for _, x := range r.ModExchanges {
		if x.Mol < 0 || x.Mol >= len(r.Pattern.Mols) {
			return fault.Configf(entity, "modification exchange targets mol %d outside the pattern", x.Mol)
		}
		m := r.FinalMol(x.Mol)
		if x.Site < 0 || x.Site >= len(m.ModSites) {
			return fault.Configf(entity, "modification exchange targets site %d, which %s does not have",
				x.Site, m.Name)
		}
		if x.Mod == nil {
			return fault.Configf(entity, "modification exchange on %s.%s has no modification",
				m.Name, m.ModSites[x.Site].Name)
		}
	}
	if r.Predicate != nil {
		if err := r.Predicate.Validate(r.Pattern); err != nil {
			return fault.WrapConfig(err, entity, "invalid predicate")
		}
	}
	return nil
}

// FinalMol returns the mol type at pattern position i after the rule's
// small-mol exchanges.
func (r *TransformRule) FinalMol(i int) *chem.Mol {
	m := r.Pattern.Mols[i]
	for _, x := range r.SmallMolExchanges {
		if x.Mol == i && x.Replacement != nil {
			m = x.Replacement
		}
	}
	return m
}

func (r *TransformRule) attach(e *Engine) error {
	r.engine = e
	if r.Extrapolator == nil {
		r.Extrapolator = e.extrap
	}
	store := e.store

	var patternWeight float64
	for _, m := range r.Pattern.Mols {
		patternWeight += store.States().DefaultState(m).Weight()
	}
	r.refWeights = []float64{patternWeight}

	if r.ExtraReactant != nil {
		sp, _, err := store.InternComplex(*r.ExtraReactant)
		if err != nil {
			return fmt.Errorf("extra reactant: %w", err)
		}
		r.extraReactant = sp
		r.refWeights = append(r.refWeights, sp.Weight())
	}
	if r.ExtraProduct != nil {
		sp, _, err := store.InternComplex(*r.ExtraProduct)
		if err != nil {
			return fmt.Errorf("extra product: %w", err)
		}
		r.extraProduct = sp
	}
	return nil
}

func (r *TransformRule) connect(f *network.Family) {
	for _, emb := range plex.Embeddings(r.Pattern, f.Paradigm) {
		f.Connect(r, emb)
	}
}

// Respond builds the product of applying the rule at emb and interns the
// reaction from sp to it.
func (r *TransformRule) Respond(sp *network.Species, emb plex.Embedding, depth int) error {
	view := func(i int) *chem.MolState { return sp.Params[emb.Mols[i]] }
	if r.Predicate != nil && !r.Predicate.Eval(view) {
		return nil
	}

	store := r.engine.store
	p := sp.Family.Paradigm.Clone()
	params := sp.Params.Clone()
	for _, x := range r.SmallMolExchanges {
		t := emb.Mols[x.Mol]
		p.Mols[t] = x.Replacement
		params[t] = replacementState(store.States(), params[t], x.Replacement)
	}
	for _, x := range r.ModExchanges {
		t := emb.Mols[x.Mol]
		params[t] = params[t].WithMod(x.Site, x.Mod)
	}

	product, created, err := store.InternComplex(network.Complex{Plex: p, Params: params})
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.name, err)
	}
	if product == sp {
		// Already in the target state.
		return nil
	}

	reactants := []network.SpeciesID{sp.ID}
	actual := []float64{sp.Weight()}
	if r.extraReactant != nil {
		reactants = append(reactants, r.extraReactant.ID)
		actual = append(actual, r.extraReactant.Weight())
	}
	products := []network.SpeciesID{product.ID}
	if r.extraProduct != nil {
		products = append(products, r.extraProduct.ID)
	}

	var fresh []*network.Species
	if created {
		fresh = append(fresh, product)
	}
	rate := r.Extrapolator.Rate(r.Rate, r.refWeights, actual)
	key := reactionKey(store, reactants, products)
	return r.finish(r, sp, key, reactants, products, fresh, rate, depth)
}

// replacementState gives the new mol its default state, keeping the shapes
// of binding sites the replacement can also take.
func replacementState(ctx *chem.Context, old *chem.MolState, repl *chem.Mol) *chem.MolState {
	st := ctx.DefaultState(repl)
	for i, sh := range old.Shapes {
		if old.Mol.BindingSites[i].Shapes[sh] == st.Shape(i) {
			continue
		}
		if idx := repl.ShapeIndex(i, old.Mol.BindingSites[i].Shapes[sh]); idx >= 0 {
			st = st.WithShape(i, idx)
		}
	}
	return st
}
