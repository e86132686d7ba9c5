package plex

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/plexsim/internal/chem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func site(name string) chem.BindingSite {
	return chem.BindingSite{Name: name, Shapes: []string{"free", "bound"}}
}

var (
	molA = &chem.Mol{Name: "A", BindingSites: []chem.BindingSite{site("x"), site("y")}}
	molB = &chem.Mol{Name: "B", BindingSites: []chem.BindingSite{site("x")}}
)

func ref(m, s int) SiteRef { return SiteRef{Mol: m, Site: s} }

// chain builds A0-A1-...-B where each A binds its y to the next x.
func chain(t *testing.T, n int) *Plex {
	t.Helper()
	p := New()
	for i := 0; i < n; i++ {
		p.AddMol(molA)
	}
	b := p.AddMol(molB)
	for i := 0; i+1 < n; i++ {
		require.NoError(t, p.Bind(ref(i, 1), ref(i+1, 0)))
	}
	require.NoError(t, p.Bind(ref(n-1, 1), ref(b, 0)))
	return p
}

// shuffled relabels the mols of p with a random permutation.
func shuffled(p *Plex, r *rand.Rand) (*Plex, []int) {
	perm := r.Perm(len(p.Mols))
	out := &Plex{Mols: make([]*chem.Mol, len(p.Mols))}
	for i, m := range p.Mols {
		out.Mols[perm[i]] = m
	}
	idx := r.Perm(len(p.Bindings))
	out.Bindings = make([]Binding, len(p.Bindings))
	for i, b := range p.Bindings {
		out.Bindings[idx[i]] = NewBinding(ref(perm[b.A.Mol], b.A.Site), ref(perm[b.B.Mol], b.B.Site))
	}
	return out, perm
}

func TestBindErrors(t *testing.T) {
	p := New(molA, molB)
	require.NoError(t, p.Bind(ref(0, 1), ref(1, 0)))

	tests := []struct {
		name string
		a, b SiteRef
		want error
	}{
		{"mol out of range", ref(2, 0), ref(0, 0), ErrMolRange},
		{"site out of range", ref(1, 1), ref(0, 0), ErrSiteRange},
		{"already bound", ref(1, 0), ref(0, 0), ErrSiteBound},
		{"self", ref(0, 0), ref(0, 0), ErrSiteBound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Bind(tt.a, tt.b)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, New().Validate(), ErrEmpty)
	assert.ErrorIs(t, New(molA, molB).Validate(), ErrDisconnected)
	assert.NoError(t, chain(t, 2).Validate())

	dup := New(molA, molB, molB)
	dup.Bindings = []Binding{NewBinding(ref(0, 0), ref(1, 0)), NewBinding(ref(0, 0), ref(2, 0))}
	assert.ErrorIs(t, dup.Validate(), ErrSiteBound)
}

func TestComponentsAndSub(t *testing.T) {
	p := chain(t, 3) // A0-A1-A2-B3
	i, ok := p.BindingAt(ref(1, 1))
	require.True(t, ok)
	p.Bindings = append(p.Bindings[:i], p.Bindings[i+1:]...)

	comps := p.Components()
	assert.Equal(t, [][]int{{0, 1}, {2, 3}}, comps)

	sub := p.Sub(comps[1])
	assert.Equal(t, []*chem.Mol{molA, molB}, sub.Mols)
	assert.Equal(t, []Binding{NewBinding(ref(0, 1), ref(1, 0))}, sub.Bindings)
	assert.NoError(t, sub.Validate())
}

func TestPartnerDegreeFreeSites(t *testing.T) {
	p := chain(t, 2)
	partner, ok := p.Partner(ref(0, 1))
	require.True(t, ok)
	assert.Equal(t, ref(1, 0), partner)
	assert.Equal(t, 2, p.Degree(1))
	assert.Equal(t, []int{0}, p.FreeSites(0))
	assert.Empty(t, p.FreeSites(2))
}

func TestJoin(t *testing.T) {
	a, b := New(molA), New(molB)
	ab, err := Join(a, b, ref(0, 1), ref(0, 0))
	require.NoError(t, err)
	assert.NoError(t, ab.Validate())
	assert.Equal(t, "A,B {0.1-1.0}", ab.String())

	_, err = Join(ab, b, ref(0, 1), ref(0, 0))
	assert.ErrorIs(t, err, ErrSiteBound)
}

func TestIsomorphismSoundness(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for n := 1; n <= 5; n++ {
		p := chain(t, n)
		for trial := 0; trial < 10; trial++ {
			q, perm := shuffled(p, r)
			require.Equal(t, p.Signature(), q.Signature())

			iso, ok := FindIsomorphism(p, q)
			require.True(t, ok, "n=%d trial=%d", n, trial)
			for i := range p.Mols {
				assert.Equal(t, p.Mols[i], q.Mols[iso.Mols[i]])
			}
			// A chain has no automorphisms, so the map is the permutation.
			assert.Equal(t, perm, iso.Mols)
			for j, b := range p.Bindings {
				got := q.Bindings[iso.Bindings[j]]
				assert.Equal(t, NewBinding(iso.MapSite(b.A), iso.MapSite(b.B)), got)
			}
		}
	}
}

func TestIsomorphismCompleteness(t *testing.T) {
	// Same mols and binding count, B hangs off a different A.
	p := New(molA, molA, molB)
	require.NoError(t, p.Bind(ref(0, 1), ref(1, 0)))
	require.NoError(t, p.Bind(ref(1, 1), ref(2, 0)))

	q := New(molA, molA, molB)
	require.NoError(t, q.Bind(ref(0, 1), ref(1, 0)))
	require.NoError(t, q.Bind(ref(0, 0), ref(2, 0)))

	_, ok := FindIsomorphism(p, q)
	assert.False(t, ok)

	// Same mols, different sites on the shared binding.
	s := New(molA, molB)
	require.NoError(t, s.Bind(ref(0, 0), ref(1, 0)))
	u := New(molA, molB)
	require.NoError(t, u.Bind(ref(0, 1), ref(1, 0)))
	assert.NotEqual(t, s.Signature(), u.Signature())
	_, ok = FindIsomorphism(s, u)
	assert.False(t, ok)
}

func TestSymmetricComplex(t *testing.T) {
	// B-A-A-B through y-y: symmetric under the swap of the halves.
	p := New(molB, molA, molA, molB)
	require.NoError(t, p.Bind(ref(0, 0), ref(1, 0)))
	require.NoError(t, p.Bind(ref(1, 1), ref(2, 1)))
	require.NoError(t, p.Bind(ref(2, 0), ref(3, 0)))

	q := New(molA, molA, molB, molB)
	require.NoError(t, q.Bind(ref(0, 1), ref(1, 1)))
	require.NoError(t, q.Bind(ref(0, 0), ref(3, 0)))
	require.NoError(t, q.Bind(ref(1, 0), ref(2, 0)))

	iso, ok := FindIsomorphism(p, q)
	require.True(t, ok)
	for j, b := range p.Bindings {
		assert.Equal(t, NewBinding(iso.MapSite(b.A), iso.MapSite(b.B)), q.Bindings[iso.Bindings[j]])
	}
	back := iso.Compose(iso.Invert())
	assert.True(t, back.IsIdentity())
}

func TestCanonicalize(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 7))
	p := chain(t, 3)
	canon, iso := Canonicalize(p)
	require.NoError(t, canon.Validate())

	again, iso2 := Canonicalize(canon)
	assert.Equal(t, canon, again)
	assert.True(t, iso2.IsIdentity())

	for i := range p.Mols {
		assert.Equal(t, p.Mols[i], canon.Mols[iso.Mols[i]])
	}
	for j, b := range p.Bindings {
		assert.Equal(t, NewBinding(iso.MapSite(b.A), iso.MapSite(b.B)), canon.Bindings[iso.Bindings[j]])
	}

	q, _ := shuffled(p, r)
	qc, _ := Canonicalize(q)
	_, ok := FindIsomorphism(qc, canon)
	assert.True(t, ok)
}

func TestPermute(t *testing.T) {
	iso := Isomorphism{Mols: []int{2, 0, 1}}
	assert.Equal(t, []string{"b", "c", "a"}, Permute(iso, []string{"a", "b", "c"}))
}

func TestEmbeddings(t *testing.T) {
	pattern := New(molA, molA)
	require.NoError(t, pattern.Bind(ref(0, 1), ref(1, 0)))

	target := chain(t, 3) // A0-A1-A2-B3
	embs := Embeddings(pattern, target)
	require.Len(t, embs, 2)
	assert.Equal(t, []int{0, 1}, embs[0].Mols)
	assert.Equal(t, []int{1, 2}, embs[1].Mols)
	for _, e := range embs {
		b := target.Bindings[e.Bindings[0]]
		assert.Equal(t, NewBinding(ref(e.Mols[0], 1), ref(e.Mols[1], 0)), b)
	}

	single := Embeddings(New(molA), target)
	assert.Len(t, single, 3)
	assert.Empty(t, Embeddings(New(molB, molB), target))

	iso := Identity(len(target.Mols), len(target.Bindings))
	assert.Equal(t, embs[0], embs[0].Through(iso))
}
