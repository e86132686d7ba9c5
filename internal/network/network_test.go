package network

import (
	"errors"
	"testing"

	"github.com/nvandessel/plexsim/internal/chem"
	"github.com/nvandessel/plexsim/internal/fault"
	"github.com/nvandessel/plexsim/internal/plex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx   *chem.Context
	a, b  *chem.Mol
	phos  *chem.Modification
	store *Store
}

func newFixture(t *testing.T, depth int) *fixture {
	t.Helper()
	ctx := chem.NewContext()
	none := &chem.Modification{Name: "none"}
	phos := &chem.Modification{Name: "phos", WeightDelta: 80}
	require.NoError(t, ctx.AddModification(none))
	require.NoError(t, ctx.AddModification(phos))
	a := &chem.Mol{
		Name: "A", Kind: chem.ModMol, Weight: 10,
		BindingSites: []chem.BindingSite{{Name: "x", Shapes: []string{"free", "bound"}}},
		ModSites:     []chem.ModSite{{Name: "p", Default: none}},
	}
	b := &chem.Mol{
		Name: "B", Weight: 20,
		BindingSites: []chem.BindingSite{{Name: "x", Shapes: []string{"free", "bound"}}},
	}
	require.NoError(t, ctx.AddMol(a))
	require.NoError(t, ctx.AddMol(b))
	return &fixture{ctx: ctx, a: a, b: b, phos: phos, store: NewStore(ctx, Options{MaxDepth: depth})}
}

func (fx *fixture) dimer(t *testing.T, aFirst bool) Complex {
	t.Helper()
	var p *plex.Plex
	var params ParamVector
	if aFirst {
		p = plex.New(fx.a, fx.b)
		params = ParamVector{fx.ctx.DefaultState(fx.a).WithMod(0, fx.phos), fx.ctx.DefaultState(fx.b)}
	} else {
		p = plex.New(fx.b, fx.a)
		params = ParamVector{fx.ctx.DefaultState(fx.b), fx.ctx.DefaultState(fx.a).WithMod(0, fx.phos)}
	}
	require.NoError(t, p.Bind(plex.SiteRef{Mol: 0, Site: 0}, plex.SiteRef{Mol: 1, Site: 0}))
	return Complex{Plex: p, Params: params}
}

func (fx *fixture) monomer(m *chem.Mol) Complex {
	return Complex{Plex: plex.New(m), Params: ParamVector{fx.ctx.DefaultState(m)}}
}

type gen string

func (g gen) Name() string { return string(g) }

type countingFeature struct {
	calls  []int
	onCall func(sp *Species, depth int) error
}

func (f *countingFeature) Name() string { return "counting" }

func (f *countingFeature) Respond(sp *Species, _ plex.Embedding, depth int) error {
	f.calls = append(f.calls, depth)
	if f.onCall != nil {
		return f.onCall(sp, depth)
	}
	return nil
}

type recordingListener struct {
	species   []string
	reactions []string
}

func (l *recordingListener) SpeciesCreated(sp *Species) { l.species = append(l.species, sp.Tag()) }
func (l *recordingListener) ReactionCreated(r *Reaction) {
	l.reactions = append(l.reactions, r.Tag())
}

func TestRecognizeRelabelledComplexes(t *testing.T) {
	fx := newFixture(t, 1)
	rec := fx.store.Recognizer()

	f1, _, err := rec.Recognize(fx.dimer(t, true).Plex)
	require.NoError(t, err)
	f2, _, err := rec.Recognize(fx.dimer(t, false).Plex)
	require.NoError(t, err)
	assert.Same(t, f1, f2)

	f3, _, err := rec.Recognize(plex.New(fx.a))
	require.NoError(t, err)
	assert.NotSame(t, f1, f3)
	assert.Len(t, rec.Families(), 2)

	got, ok := rec.Family(f3.ID)
	require.True(t, ok)
	assert.Same(t, f3, got)
}

func TestRecognizeRejectsDisconnected(t *testing.T) {
	fx := newFixture(t, 1)
	_, _, err := fx.store.Recognizer().Recognize(plex.New(fx.a, fx.b))
	require.Error(t, err)
	assert.True(t, errors.Is(err, plex.ErrDisconnected))
	assert.Empty(t, fx.store.Recognizer().Families())
}

func TestOnFamilyHookRunsOncePerFamily(t *testing.T) {
	fx := newFixture(t, 1)
	var seen []int
	fx.store.Recognizer().OnFamily(func(f *Family) error {
		seen = append(seen, f.ID)
		return nil
	})
	for i := 0; i < 3; i++ {
		_, _, err := fx.store.InternComplex(fx.dimer(t, i%2 == 0))
		require.NoError(t, err)
	}
	assert.Equal(t, []int{0}, seen)
}

func TestInternComplexReindexesState(t *testing.T) {
	fx := newFixture(t, 1)
	s1, created, err := fx.store.InternComplex(fx.dimer(t, true))
	require.NoError(t, err)
	assert.True(t, created)

	s2, created, err := fx.store.InternComplex(fx.dimer(t, false))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, s1, s2)
	assert.Equal(t, "s0", s1.Tag())
	assert.Equal(t, 110.0, s1.Weight())

	for i, st := range s1.Params {
		assert.Same(t, s1.Family.Paradigm.Mols[i], st.Mol)
	}
}

func TestInternSpeciesIdempotent(t *testing.T) {
	fx := newFixture(t, 1)
	f, _, err := fx.store.Recognizer().Recognize(plex.New(fx.a))
	require.NoError(t, err)

	v := ParamVector{fx.ctx.DefaultState(fx.a)}
	sp1, created := fx.store.InternSpecies(f, v)
	assert.True(t, created)
	sp2, created := fx.store.InternSpecies(f, ParamVector{fx.ctx.DefaultState(fx.a)})
	assert.False(t, created)
	assert.Same(t, sp1, sp2)

	sp3, created := fx.store.InternSpecies(f, ParamVector{fx.ctx.DefaultState(fx.a).WithMod(0, fx.phos)})
	assert.True(t, created)
	assert.NotSame(t, sp1, sp3)
	assert.Len(t, f.Members(), 2)
	assert.Equal(t, 2, fx.store.SpeciesCount())
}

func TestInternSpeciesLengthMismatchPanics(t *testing.T) {
	fx := newFixture(t, 1)
	f, _, err := fx.store.Recognizer().Recognize(plex.New(fx.a))
	require.NoError(t, err)

	var recovered error
	func() {
		defer fault.Recover(&recovered)
		fx.store.InternSpecies(f, ParamVector{})
	}()
	require.Error(t, recovered)
	assert.True(t, fault.IsKind(recovered, fault.Invariant))
}

func TestInternReactionUniqueAndWired(t *testing.T) {
	fx := newFixture(t, 1)
	l := &recordingListener{}
	fx.store.Subscribe(l)

	a, _, err := fx.store.InternComplex(fx.monomer(fx.a))
	require.NoError(t, err)
	b, _, err := fx.store.InternComplex(fx.monomer(fx.b))
	require.NoError(t, err)
	ab, _, err := fx.store.InternComplex(fx.dimer(t, true))
	require.NoError(t, err)

	builds := 0
	build := func() (*Reaction, error) {
		builds++
		return &Reaction{
			Reactants: Terms(a.ID, b.ID),
			Products:  Terms(ab.ID),
			Rate:      2,
		}, nil
	}
	r1, created, err := fx.store.InternReaction(gen("bind"), "a+b", build)
	require.NoError(t, err)
	assert.True(t, created)
	r2, created, err := fx.store.InternReaction(gen("bind"), "a+b", build)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, builds)

	assert.Equal(t, "r0", r1.Tag())
	assert.Equal(t, 2, r1.Order())
	assert.Equal(t, int64(-1), r1.Delta(a.ID))
	assert.Equal(t, int64(1), r1.Delta(ab.ID))
	assert.Equal(t, []ReactionID{r1.ID}, a.ReactantOf())
	assert.Equal(t, []ReactionID{r1.ID}, ab.ProductOf())
	assert.Equal(t, []string{"s0", "s1", "s2"}, l.species)
	assert.Equal(t, []string{"r0"}, l.reactions)

	_, _, err = fx.store.InternReaction(gen("bind"), "broken", func() (*Reaction, error) {
		return nil, errors.New("no partner")
	})
	require.Error(t, err)
	assert.Equal(t, 1, fx.store.ReactionCount())
}

func TestAddExplicitReaction(t *testing.T) {
	fx := newFixture(t, 1)
	a, _, err := fx.store.InternComplex(fx.monomer(fx.a))
	require.NoError(t, err)
	b, _, err := fx.store.InternComplex(fx.monomer(fx.b))
	require.NoError(t, err)

	r, err := fx.store.AddExplicitReaction("convert",
		[]Term{{Species: a.ID, Mult: 1}, {Species: a.ID, Mult: 1}},
		[]Term{{Species: b.ID, Mult: 1}}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "explicit", r.Generator.Name())
	assert.Equal(t, "convert", r.Key)
	assert.Equal(t, []Term{{Species: a.ID, Mult: 2}}, r.Reactants)
	assert.Equal(t, 2, r.Order())
	assert.Equal(t, []ReactionID{r.ID}, a.ReactantOf())
	assert.Equal(t, []ReactionID{r.ID}, b.ProductOf())

	// Same terms under another name is a separate reaction.
	other, err := fx.store.AddExplicitReaction("convert-again",
		[]Term{{Species: a.ID, Mult: 2}}, []Term{{Species: b.ID, Mult: 1}}, 1)
	require.NoError(t, err)
	assert.NotEqual(t, r.ID, other.ID)

	tests := []struct {
		name      string
		reactants []Term
		rate      float64
		want      string
	}{
		{"convert", []Term{{Species: a.ID, Mult: 1}}, 1, "duplicate"},
		{"", []Term{{Species: a.ID, Mult: 1}}, 1, "name is required"},
		{"empty", nil, 1, "at least one reactant"},
		{"negative", []Term{{Species: a.ID, Mult: 1}}, -1, "non-negative"},
		{"unknown", []Term{{Species: 9, Mult: 1}}, 1, "unknown species s9"},
		{"zero-mult", []Term{{Species: a.ID, Mult: 0}}, 1, "multiplicity 0"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			_, err := fx.store.AddExplicitReaction(tt.name, tt.reactants, nil, tt.rate)
			require.Error(t, err)
			assert.True(t, fault.IsKind(err, fault.Config))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Equal(t, 2, fx.store.ReactionCount())
}

func TestTermsMergesRepeats(t *testing.T) {
	assert.Equal(t, []Term{{Species: 3, Mult: 2}, {Species: 1, Mult: 1}}, Terms(3, 1, 3))
}

func TestNotifyIsIdempotentAndDepthBounded(t *testing.T) {
	fx := newFixture(t, 2)
	feature := &countingFeature{}
	fx.store.Recognizer().OnFamily(func(f *Family) error {
		f.Connect(feature, plex.Embedding{Mols: []int{0}})
		return nil
	})

	sp, _, err := fx.store.InternComplex(fx.monomer(fx.a))
	require.NoError(t, err)
	assert.Equal(t, Unexplored, fx.store.ExpansionState(sp))

	require.NoError(t, fx.store.Notify(sp, 1))
	assert.Equal(t, Notified, fx.store.ExpansionState(sp))
	require.NoError(t, fx.store.Notify(sp, 1))
	require.NoError(t, fx.store.Notify(sp, 0))
	require.NoError(t, fx.store.Notify(sp, -1))
	require.NoError(t, fx.store.Expand(sp))
	require.NoError(t, fx.store.Expand(sp))

	assert.Equal(t, []int{1, 2}, feature.calls)
	assert.Equal(t, FullyExpanded, fx.store.ExpansionState(sp))
	assert.Equal(t, 2, sp.NotifiedDepth())
}

func TestNotifyHonoursGenerationToggle(t *testing.T) {
	fx := newFixture(t, 1)
	feature := &countingFeature{}
	fx.store.Recognizer().OnFamily(func(f *Family) error {
		f.Connect(feature, plex.Embedding{Mols: []int{0}})
		return nil
	})
	sp, _, err := fx.store.InternComplex(fx.monomer(fx.b))
	require.NoError(t, err)

	fx.store.SetGenerationEnabled(false)
	assert.False(t, fx.store.GenerationEnabled())
	require.NoError(t, fx.store.Expand(sp))
	assert.Empty(t, feature.calls)
	assert.Equal(t, Unexplored, fx.store.ExpansionState(sp))

	fx.store.SetGenerationEnabled(true)
	require.NoError(t, fx.store.Expand(sp))
	assert.Equal(t, []int{1}, feature.calls)
}

func TestNotifyPropagatesFeatureErrors(t *testing.T) {
	fx := newFixture(t, 1)
	fx.store.Recognizer().OnFamily(func(f *Family) error {
		f.Connect(&countingFeature{onCall: func(*Species, int) error {
			return errors.New("boom")
		}}, plex.Embedding{Mols: []int{0}})
		return nil
	})
	sp, _, err := fx.store.InternComplex(fx.monomer(fx.a))
	require.NoError(t, err)
	err = fx.store.Expand(sp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "counting responding to s0")
}

func TestSnapshot(t *testing.T) {
	fx := newFixture(t, 1)
	a, _, err := fx.store.InternComplex(fx.monomer(fx.a))
	require.NoError(t, err)
	ab, _, err := fx.store.InternComplex(fx.dimer(t, false))
	require.NoError(t, err)
	a.Population = 5
	_, _, err = fx.store.InternReaction(gen("phos"), "k", func() (*Reaction, error) {
		return &Reaction{Reactants: Terms(a.ID, a.ID), Products: Terms(ab.ID), Rate: 0.5}, nil
	})
	require.NoError(t, err)

	snap := fx.store.Snapshot()
	require.Len(t, snap.Families, 2)
	require.Len(t, snap.Species, 2)
	require.Len(t, snap.Reactions, 1)

	assert.Equal(t, "s0", snap.Species[0].Tag)
	assert.Equal(t, int64(5), snap.Species[0].Population)
	assert.Equal(t, "unexplored", snap.Species[0].Expansion)
	assert.Equal(t, -1, snap.Species[0].Depth)
	assert.Equal(t, "phos", snap.Reactions[0].Generator)
	assert.Equal(t, []TermInfo{{Species: "s0", Mult: 2}}, snap.Reactions[0].Reactants)
	assert.Equal(t, []TermInfo{{Species: "s1", Mult: 1}}, snap.Reactions[0].Products)
	assert.Equal(t, 1, snap.Families[1].Members)
}
