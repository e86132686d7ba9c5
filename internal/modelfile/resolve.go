package modelfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nvandessel/plexsim/internal/chem"
	"github.com/nvandessel/plexsim/internal/dump"
	"github.com/nvandessel/plexsim/internal/fault"
	"github.com/nvandessel/plexsim/internal/network"
	"github.com/nvandessel/plexsim/internal/plex"
	"github.com/nvandessel/plexsim/internal/rules"
)

// Model is a resolved document, ready to be simulated. Its rules have
// been validated but are not yet attached to an engine.
type Model struct {
	Name     string
	States   *chem.Context
	Rules    []rules.Rule
	Species   []SpeciesDef
	Reactions []ReactionDef
	Events    []EventDef
	Dump     []DumpDef
	Settings Settings
}

// Settings are per-model overrides of the run configuration. Nil fields
// and empty strings defer to the configuration.
type Settings struct {
	Depth        *int
	Volume       *float64
	StopTime     *float64
	Extrapolator rules.Extrapolator
	// RateExtrapolation is the validated name Extrapolator was parsed from.
	RateExtrapolation string
}

// SpeciesDef injects Population copies of a complex at Time.
type SpeciesDef struct {
	Name       string
	Complex    network.Complex
	Population int64
	Time       float64
}

// ReactionDef is an explicit reaction. Terms index Model.Species.
type ReactionDef struct {
	Name      string
	Reactants []TermDef
	Products  []TermDef
	Rate      float64
}

// TermDef is one side entry of an explicit reaction.
type TermDef struct {
	Species int
	Mult    int
}

// EventKind selects the action of a timed event.
type EventKind int

const (
	SetVolume EventKind = iota
	ScaleVolume
	Stop
	NoMoreGeneration
)

func (k EventKind) String() string {
	switch k {
	case SetVolume:
		return "volume"
	case ScaleVolume:
		return "scale_volume"
	case Stop:
		return "stop"
	case NoMoreGeneration:
		return "no_more_generation"
	default:
		return "unknown"
	}
}

// EventDef is a timed change.
type EventDef struct {
	Kind  EventKind
	Time  float64
	Value float64
}

// DumpDef is a dump column. Species indexes Model.Species for the
// per-species kinds and is -1 otherwise.
type DumpDef struct {
	Kind    dump.Kind
	Species int
}

// Load reads and resolves the model at path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fault.WrapConfig(err, path, "malformed model")
	}
	m, err := Resolve(doc)
	if err != nil {
		return nil, fault.WrapConfig(err, path, "invalid model")
	}
	return m, nil
}

// Resolve turns a document into definitions. All issues are reported
// together in a *ValidationError.
func Resolve(doc *Document) (*Model, error) {
	r := &resolver{ctx: chem.NewContext(), verr: &ValidationError{}}
	m := &Model{Name: doc.Name, States: r.ctx}

	m.Settings = r.settings(doc.Settings)
	for _, d := range doc.Modifications {
		r.check(r.ctx.AddModification(&chem.Modification{Name: d.Name, WeightDelta: d.WeightDelta}))
	}
	for _, d := range doc.Mols {
		if mol, ok := r.mol(d); ok {
			r.check(r.ctx.AddMol(mol))
		}
	}

	names := make(map[string]bool)
	for i, d := range doc.Rules {
		entity := fmt.Sprintf("rule %q", d.Name)
		if d.Name == "" {
			r.verr.Addf(fmt.Sprintf("rule at index %d", i), "name is required")
			continue
		}
		if names[d.Name] {
			r.verr.Addf(entity, "duplicate rule name")
			continue
		}
		if d.Name == network.ExplicitGenerator.Name() {
			r.verr.Addf(entity, "name is reserved for explicit reactions")
			continue
		}
		names[d.Name] = true
		if rule, ok := r.rule(entity, d); ok {
			if err := rule.Validate(); err != nil {
				r.check(err)
				continue
			}
			m.Rules = append(m.Rules, rule)
		}
	}

	speciesIdx := make(map[string]int)
	for i, d := range doc.Species {
		entity := fmt.Sprintf("species %q", d.Name)
		if d.Name == "" {
			entity = fmt.Sprintf("species at index %d", i)
		} else if _, dup := speciesIdx[d.Name]; dup {
			r.verr.Addf(entity, "duplicate species name")
			continue
		}
		if d.Population < 0 {
			r.verr.Addf(entity, "population %d is negative", d.Population)
		}
		if d.Time < 0 {
			r.verr.Addf(entity, "time %g is negative", d.Time)
		}
		c, ok := r.complex(entity, d.Complex, true)
		if !ok {
			continue
		}
		if d.Name != "" {
			speciesIdx[d.Name] = len(m.Species)
		}
		m.Species = append(m.Species, SpeciesDef{Name: d.Name, Complex: c, Population: d.Population, Time: d.Time})
	}

	reactionNames := make(map[string]bool)
	for i, d := range doc.Reactions {
		rd, ok := r.reaction(i, d, speciesIdx)
		if reactionNames[rd.Name] {
			r.verr.Addf(fmt.Sprintf("reaction %q", rd.Name), "duplicate reaction name")
			continue
		}
		reactionNames[rd.Name] = true
		if ok {
			m.Reactions = append(m.Reactions, rd)
		}
	}

	for i, d := range doc.Events {
		if ev, ok := r.event(fmt.Sprintf("event at index %d", i), d); ok {
			m.Events = append(m.Events, ev)
		}
	}

	for _, col := range doc.Dump {
		if dd, ok := r.dumpColumn(col, speciesIdx); ok {
			m.Dump = append(m.Dump, dd)
		}
	}

	if r.verr.HasIssues() {
		return nil, r.verr
	}
	return m, nil
}

type resolver struct {
	ctx  *chem.Context
	verr *ValidationError
}

// check records err, unwrapping configuration faults to their entity and message.
func (r *resolver) check(err error) {
	if err == nil {
		return
	}
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Entity != "" {
		msg := fe.Msg
		if fe.Err != nil {
			msg += ": " + fe.Err.Error()
		}
		r.verr.Addf(fe.Entity, "%s", msg)
		return
	}
	r.verr.Add(err.Error())
}

func (r *resolver) settings(d SettingsDoc) Settings {
	s := Settings{Depth: d.Depth, Volume: d.Volume, StopTime: d.StopTime}
	if d.Depth != nil && *d.Depth < 0 {
		r.verr.Addf("settings", "depth %d is negative", *d.Depth)
	}
	if d.Volume != nil && *d.Volume <= 0 {
		r.verr.Addf("settings", "volume %g must be positive", *d.Volume)
	}
	if d.StopTime != nil && *d.StopTime <= 0 {
		r.verr.Addf("settings", "stop_time %g must be positive", *d.StopTime)
	}
	if d.RateExtrapolation != "" {
		ex, err := rules.ParseExtrapolation(d.RateExtrapolation)
		if err != nil {
			r.verr.Addf("settings", "%v", err)
		}
		s.Extrapolator = ex
		s.RateExtrapolation = d.RateExtrapolation
	}
	return s
}

// reaction resolves an explicit reaction. Unnamed reactions are named by
// their position.
func (r *resolver) reaction(i int, d ReactionDoc, speciesIdx map[string]int) (ReactionDef, bool) {
	rd := ReactionDef{Name: d.Name, Rate: d.Rate}
	if rd.Name == "" {
		rd.Name = fmt.Sprintf("reaction%d", i)
	}
	entity := fmt.Sprintf("reaction %q", rd.Name)
	ok := true
	if len(d.Reactants) == 0 {
		r.verr.Addf(entity, "needs at least one reactant")
		ok = false
	}
	if d.Rate < 0 {
		r.verr.Addf(entity, "rate %g is negative", d.Rate)
		ok = false
	}
	side := func(ts []TermDoc) []TermDef {
		out := make([]TermDef, 0, len(ts))
		for _, t := range ts {
			idx, found := speciesIdx[t.Species]
			if !found {
				r.verr.Addf(entity, "no species entry named %q", t.Species)
				ok = false
				continue
			}
			if t.Mult < 1 {
				r.verr.Addf(entity, "multiplicity %d of %q must be positive", t.Mult, t.Species)
				ok = false
				continue
			}
			out = append(out, TermDef{Species: idx, Mult: t.Mult})
		}
		return out
	}
	rd.Reactants = side(d.Reactants)
	rd.Products = side(d.Products)
	return rd, ok
}

func (r *resolver) mol(d MolDoc) (*chem.Mol, bool) {
	entity := fmt.Sprintf("mol %q", d.Name)
	mol := &chem.Mol{Name: d.Name, Weight: d.Weight}
	switch d.Kind {
	case "small":
		mol.Kind = chem.SmallMol
	case "mod":
		mol.Kind = chem.ModMol
	case "":
		if len(d.ModSites) > 0 {
			mol.Kind = chem.ModMol
		}
	default:
		r.verr.Addf(entity, "unknown kind %q (valid: small, mod)", d.Kind)
		return nil, false
	}
	for _, s := range d.BindingSites {
		mol.BindingSites = append(mol.BindingSites, chem.BindingSite{
			Name: s.Name, Shapes: s.Shapes, DefaultShape: s.Default})
	}
	ok := true
	for _, s := range d.ModSites {
		mod, found := r.ctx.Modification(s.Default)
		if !found {
			r.verr.Addf(entity, "mod site %q has unknown default modification %q", s.Name, s.Default)
			ok = false
			continue
		}
		mol.ModSites = append(mol.ModSites, chem.ModSite{Name: s.Name, Default: mod})
	}
	return mol, ok
}

func (r *resolver) lookupMol(entity, name string) (*chem.Mol, bool) {
	m, ok := r.ctx.Mol(name)
	if !ok {
		r.verr.Addf(entity, "unknown mol %q", name)
	}
	return m, ok
}

// complex resolves a complex document. States are resolved only when
// withStates is set; patterns carry structure alone.
func (r *resolver) complex(entity string, d ComplexDoc, withStates bool) (network.Complex, bool) {
	if len(d.Mols) == 0 {
		r.verr.Addf(entity, "complex has no mols")
		return network.Complex{}, false
	}
	p := plex.New()
	params := make(network.ParamVector, 0, len(d.Mols))
	ok := true
	for i, ref := range d.Mols {
		mol, found := r.lookupMol(entity, ref.Mol)
		if !found {
			ok = false
			continue
		}
		p.AddMol(mol)
		if withStates {
			st, stOK := r.state(fmt.Sprintf("%s mol %d", entity, i), mol, ref)
			ok = ok && stOK
			params = append(params, st)
		}
	}
	if !ok {
		return network.Complex{}, false
	}

	for _, b := range d.Bindings {
		a, c, err := parseBinding(p, b)
		if err == nil {
			err = p.Bind(a, c)
		}
		if err != nil {
			r.verr.Addf(entity, "binding %q: %v", b, err)
			ok = false
		}
	}
	if !ok {
		return network.Complex{}, false
	}
	if err := p.Validate(); err != nil {
		r.verr.Addf(entity, "%v", err)
		return network.Complex{}, false
	}
	return network.Complex{Plex: p, Params: params}, true
}

func (r *resolver) state(entity string, mol *chem.Mol, ref MolRefDoc) (*chem.MolState, bool) {
	st := r.ctx.DefaultState(mol)
	ok := true
	for site, shape := range ref.Shapes {
		i := mol.BindingSiteIndex(site)
		if i < 0 {
			r.verr.Addf(entity, "%s has no binding site %q", mol.Name, site)
			ok = false
			continue
		}
		sh := mol.ShapeIndex(i, shape)
		if sh < 0 {
			r.verr.Addf(entity, "site %s.%s has no shape %q", mol.Name, site, shape)
			ok = false
			continue
		}
		st = st.WithShape(i, sh)
	}
	for site, name := range ref.Mods {
		i := mol.ModSiteIndex(site)
		if i < 0 {
			r.verr.Addf(entity, "%s has no modification site %q", mol.Name, site)
			ok = false
			continue
		}
		mod, found := r.ctx.Modification(name)
		if !found {
			r.verr.Addf(entity, "unknown modification %q", name)
			ok = false
			continue
		}
		st = st.WithMod(i, mod)
	}
	return st, ok
}

// parseBinding reads "<mol>.<site>-<mol>.<site>".
func parseBinding(p *plex.Plex, s string) (plex.SiteRef, plex.SiteRef, error) {
	ends := strings.Split(s, "-")
	if len(ends) != 2 {
		return plex.SiteRef{}, plex.SiteRef{}, errors.New(`want "<mol>.<site>-<mol>.<site>"`)
	}
	var refs [2]plex.SiteRef
	for i, end := range ends {
		molStr, site, found := strings.Cut(strings.TrimSpace(end), ".")
		if !found {
			return plex.SiteRef{}, plex.SiteRef{}, fmt.Errorf("%q is not <mol>.<site>", end)
		}
		m, err := strconv.Atoi(molStr)
		if err != nil || m < 0 || m >= len(p.Mols) {
			return plex.SiteRef{}, plex.SiteRef{}, fmt.Errorf("mol position %q is out of range", molStr)
		}
		si := p.Mols[m].BindingSiteIndex(site)
		if si < 0 {
			return plex.SiteRef{}, plex.SiteRef{}, fmt.Errorf("%s has no binding site %q", p.Mols[m].Name, site)
		}
		refs[i] = plex.SiteRef{Mol: m, Site: si}
	}
	return refs[0], refs[1], nil
}

func (r *resolver) side(entity, label string, d *SideDoc) (rules.DimerSide, bool) {
	if d == nil {
		r.verr.Addf(entity, "%s side is required", label)
		return rules.DimerSide{}, false
	}
	mol, ok := r.lookupMol(entity, d.Mol)
	if !ok {
		return rules.DimerSide{}, false
	}
	site := mol.BindingSiteIndex(d.Site)
	if site < 0 {
		r.verr.Addf(entity, "%s side: %s has no binding site %q", label, mol.Name, d.Site)
		return rules.DimerSide{}, false
	}
	return rules.DimerSide{Mol: mol, Site: site, Allowed: d.Allowed, Bound: d.Bound}, true
}

func (r *resolver) rule(entity string, d RuleDoc) (rules.Rule, bool) {
	var extrap rules.Extrapolator
	if d.Extrapolation != "" {
		ex, err := rules.ParseExtrapolation(d.Extrapolation)
		if err != nil {
			r.verr.Addf(entity, "%v", err)
			return nil, false
		}
		extrap = ex
	}

	switch d.Type {
	case "dimer":
		left, lok := r.side(entity, "left", d.Left)
		right, rok := r.side(entity, "right", d.Right)
		if !lok || !rok {
			return nil, false
		}
		rule := rules.NewDimer(d.Name, left, right, d.Rate)
		rule.Extrapolator = extrap
		return rule, true

	case "decomp":
		left, lok := r.side(entity, "left", d.Left)
		right, rok := r.side(entity, "right", d.Right)
		if !lok || !rok {
			return nil, false
		}
		rule := rules.NewDecomp(d.Name, left, right, d.Rate)
		rule.LeftUnbound = d.Left.Unbound
		rule.RightUnbound = d.Right.Unbound
		rule.Extrapolator = extrap
		return rule, true

	case "transform":
		return r.transform(entity, d, extrap)

	default:
		r.verr.Addf(entity, "unknown rule type %q (valid: transform, dimer, decomp)", d.Type)
		return nil, false
	}
}

func (r *resolver) transform(entity string, d RuleDoc, extrap rules.Extrapolator) (rules.Rule, bool) {
	if d.Pattern == nil {
		r.verr.Addf(entity, "pattern is required")
		return nil, false
	}
	pat, ok := r.complex(entity+" pattern", *d.Pattern, false)
	if !ok {
		return nil, false
	}
	rule := rules.NewTransform(d.Name, pat.Plex, d.Rate)
	rule.Extrapolator = extrap

	if d.When != nil {
		pred, pok := r.predicate(entity, pat.Plex, *d.When)
		if !pok {
			return nil, false
		}
		rule.Predicate = pred
	}

	for _, x := range d.Exchange.SmallMols {
		if x.Mol < 0 || x.Mol >= len(pat.Plex.Mols) {
			r.verr.Addf(entity, "small-mol exchange targets mol %d outside the pattern", x.Mol)
			ok = false
			continue
		}
		repl, found := r.lookupMol(entity, x.To)
		if !found {
			ok = false
			continue
		}
		rule.SmallMolExchanges = append(rule.SmallMolExchanges, rules.SmallMolExchange{Mol: x.Mol, Replacement: repl})
	}
	for _, x := range d.Exchange.Mods {
		if x.Mol < 0 || x.Mol >= len(pat.Plex.Mols) {
			r.verr.Addf(entity, "modification exchange targets mol %d outside the pattern", x.Mol)
			ok = false
			continue
		}
		// Mod sites are named on the mol left in place after small-mol exchanges.
		mol := rule.FinalMol(x.Mol)
		site := mol.ModSiteIndex(x.Site)
		if site < 0 {
			r.verr.Addf(entity, "modification exchange targets site %q, which %s does not have", x.Site, mol.Name)
			ok = false
			continue
		}
		mod, found := r.ctx.Modification(x.To)
		if !found {
			r.verr.Addf(entity, "unknown modification %q", x.To)
			ok = false
			continue
		}
		rule.ModExchanges = append(rule.ModExchanges, rules.ModExchange{Mol: x.Mol, Site: site, Mod: mod})
	}

	if d.ExtraReactant != nil {
		c, cok := r.complex(entity+" extra reactant", *d.ExtraReactant, true)
		ok = ok && cok
		rule.ExtraReactant = &c
	}
	if d.ExtraProduct != nil {
		c, cok := r.complex(entity+" extra product", *d.ExtraProduct, true)
		ok = ok && cok
		rule.ExtraProduct = &c
	}
	return rule, ok
}

func (r *resolver) predicate(entity string, pattern *plex.Plex, d PredicateDoc) (rules.Predicate, bool) {
	set := 0
	for _, b := range []bool{d.All != nil, d.Any != nil, d.Not != nil, d.Mod != nil, d.Shape != nil} {
		if b {
			set++
		}
	}
	if set != 1 {
		r.verr.Addf(entity, "predicate must set exactly one of all, any, not, mod, shape")
		return nil, false
	}

	list := func(ds []PredicateDoc) ([]rules.Predicate, bool) {
		out := make([]rules.Predicate, 0, len(ds))
		ok := true
		for _, sub := range ds {
			p, pok := r.predicate(entity, pattern, sub)
			ok = ok && pok
			out = append(out, p)
		}
		return out, ok
	}

	switch {
	case d.All != nil:
		ps, ok := list(d.All)
		return rules.And(ps), ok
	case d.Any != nil:
		ps, ok := list(d.Any)
		return rules.Or(ps), ok
	case d.Not != nil:
		p, ok := r.predicate(entity, pattern, *d.Not)
		return rules.Not{P: p}, ok
	}

	is := d.Mod
	if is == nil {
		is = d.Shape
	}
	if is.Mol < 0 || is.Mol >= len(pattern.Mols) {
		r.verr.Addf(entity, "predicate refers to mol %d outside the pattern", is.Mol)
		return nil, false
	}
	mol := pattern.Mols[is.Mol]
	if d.Mod != nil {
		site := mol.ModSiteIndex(is.Site)
		if site < 0 {
			r.verr.Addf(entity, "predicate refers to modification site %q, which %s does not have", is.Site, mol.Name)
			return nil, false
		}
		mod, found := r.ctx.Modification(is.Is)
		if !found {
			r.verr.Addf(entity, "unknown modification %q", is.Is)
			return nil, false
		}
		return rules.ModIs{Mol: is.Mol, Site: site, Mod: mod}, true
	}
	site := mol.BindingSiteIndex(is.Site)
	if site < 0 {
		r.verr.Addf(entity, "predicate refers to binding site %q, which %s does not have", is.Site, mol.Name)
		return nil, false
	}
	shape := mol.ShapeIndex(site, is.Is)
	if shape < 0 {
		r.verr.Addf(entity, "site %s.%s has no shape %q", mol.Name, is.Site, is.Is)
		return nil, false
	}
	return rules.ShapeIs{Mol: is.Mol, Site: site, Shape: shape}, true
}

func (r *resolver) event(entity string, d EventDoc) (EventDef, bool) {
	var defs []EventDef
	if d.Volume != nil {
		defs = append(defs, EventDef{Kind: SetVolume, Time: d.At, Value: *d.Volume})
	}
	if d.ScaleVolume != nil {
		defs = append(defs, EventDef{Kind: ScaleVolume, Time: d.At, Value: *d.ScaleVolume})
	}
	if d.Stop {
		defs = append(defs, EventDef{Kind: Stop, Time: d.At})
	}
	if d.NoMoreGeneration {
		defs = append(defs, EventDef{Kind: NoMoreGeneration, Time: d.At})
	}
	if len(defs) != 1 {
		r.verr.Addf(entity, "must set exactly one of volume, scale_volume, stop, no_more_generation")
		return EventDef{}, false
	}
	ev := defs[0]
	if ev.Time < 0 {
		r.verr.Addf(entity, "time %g is negative", ev.Time)
		return EventDef{}, false
	}
	if (ev.Kind == SetVolume || ev.Kind == ScaleVolume) && ev.Value <= 0 {
		r.verr.Addf(entity, "%s %g must be positive", ev.Kind, ev.Value)
		return EventDef{}, false
	}
	return ev, true
}

func (r *resolver) dumpColumn(col string, species map[string]int) (DumpDef, bool) {
	switch col {
	case "time":
		return DumpDef{Kind: dump.Time, Species: -1}, true
	case "volume":
		return DumpDef{Kind: dump.Volume, Species: -1}, true
	case "reactions":
		return DumpDef{Kind: dump.Reactions, Species: -1}, true
	case "species":
		return DumpDef{Kind: dump.SpeciesCount, Species: -1}, true
	}
	kind := dump.SpeciesPop
	name := col
	if rest, ok := strings.CutPrefix(col, "family:"); ok {
		kind = dump.FamilyPop
		name = rest
	}
	i, ok := species[name]
	if !ok {
		r.verr.Addf(fmt.Sprintf("dump column %q", col), "no species entry named %q", name)
		return DumpDef{}, false
	}
	return DumpDef{Kind: kind, Species: i}, true
}
