package plex

import (
	"sort"

	"github.com/nvandessel/plexsim/internal/chem"
)

// Isomorphism maps the mol and binding indices of one plex onto another.
// Mols[i] is the image of mol i; Bindings[j] is the image of binding j.
type Isomorphism struct {
	Mols     []int
	Bindings []int
}

// Identity returns the identity map on a plex of the given size.
func Identity(mols, bindings int) Isomorphism {
	iso := Isomorphism{Mols: make([]int, mols), Bindings: make([]int, bindings)}
	for i := range iso.Mols {
		iso.Mols[i] = i
	}
	for i := range iso.Bindings {
		iso.Bindings[i] = i
	}
	return iso
}

// IsIdentity reports whether iso maps every index to itself.
func (iso Isomorphism) IsIdentity() bool {
	for i, m := range iso.Mols {
		if m != i {
			return false
		}
	}
	for i, b := range iso.Bindings {
		if b != i {
			return false
		}
	}
	return true
}

// Invert returns the inverse map.
func (iso Isomorphism) Invert() Isomorphism {
	inv := Isomorphism{Mols: make([]int, len(iso.Mols)), Bindings: make([]int, len(iso.Bindings))}
	for i, m := range iso.Mols {
		inv.Mols[m] = i
	}
	for i, b := range iso.Bindings {
		inv.Bindings[b] = i
	}
	return inv
}

// Compose returns the map that applies iso first, then next.
func (iso Isomorphism) Compose(next Isomorphism) Isomorphism {
	out := Isomorphism{Mols: make([]int, len(iso.Mols)), Bindings: make([]int, len(iso.Bindings))}
	for i, m := range iso.Mols {
		out.Mols[i] = next.Mols[m]
	}
	for i, b := range iso.Bindings {
		out.Bindings[i] = next.Bindings[b]
	}
	return out
}

// MapSite returns the image of a site reference.
func (iso Isomorphism) MapSite(r SiteRef) SiteRef {
	return SiteRef{Mol: iso.Mols[r.Mol], Site: r.Site}
}

// Permute re-indexes per-mol data through iso: the value of source mol i
// lands at position iso.Mols[i].
func Permute[T any](iso Isomorphism, src []T) []T {
	out := make([]T, len(src))
	for i, v := range src {
		out[iso.Mols[i]] = v
	}
	return out
}

// Embedding is an injective map of a pattern plex into a larger complex.
// Mols[i] is the target index of pattern mol i; Bindings[j] is the target
// index of pattern binding j.
type Embedding struct {
	Mols     []int
	Bindings []int
}

// Through carries an embedding across an isomorphism of its target.
func (e Embedding) Through(iso Isomorphism) Embedding {
	out := Embedding{Mols: make([]int, len(e.Mols)), Bindings: make([]int, len(e.Bindings))}
	for i, m := range e.Mols {
		out.Mols[i] = iso.Mols[m]
	}
	for i, b := range e.Bindings {
		out.Bindings[i] = iso.Bindings[b]
	}
	return out
}

// graph is the lookup view of a plex used by the matchers.
type graph struct {
	p       *Plex
	partner map[SiteRef]SiteRef
	binding map[Binding]int
	keys    []string
}

func newGraph(p *Plex) *graph {
	g := &graph{
		p:       p,
		partner: make(map[SiteRef]SiteRef, 2*len(p.Bindings)),
		binding: make(map[Binding]int, len(p.Bindings)),
		keys:    make([]string, len(p.Mols)),
	}
	for i, b := range p.Bindings {
		g.partner[b.A] = b.B
		g.partner[b.B] = b.A
		g.binding[NewBinding(b.A, b.B)] = i
	}
	for i := range p.Mols {
		g.keys[i] = p.molKey(i)
	}
	return g
}

// extend grows a mol map from a single seeded pair by walking bindings
// outward. In a connected plex every further choice is forced, so no
// backtracking is needed past the root. With exact set, unbound sites in
// src must be unbound in dst too.
func extend(src, dst *graph, root, image int, exact bool) ([]int, bool) {
	m := make([]int, len(src.p.Mols))
	for i := range m {
		m[i] = -1
	}
	used := make([]bool, len(dst.p.Mols))
	m[root] = image
	used[image] = true

	queue := []int{root}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		v := m[u]
		for s := range src.p.Mols[u].BindingSites {
			sp, sBound := src.partner[SiteRef{Mol: u, Site: s}]
			dp, dBound := dst.partner[SiteRef{Mol: v, Site: s}]
			if !sBound {
				if exact && dBound {
					return nil, false
				}
				continue
			}
			if !dBound || sp.Site != dp.Site {
				return nil, false
			}
			w, x := sp.Mol, dp.Mol
			if src.p.Mols[w] != dst.p.Mols[x] {
				return nil, false
			}
			switch m[w] {
			case -1:
				if used[x] {
					return nil, false
				}
				m[w] = x
				used[x] = true
				queue = append(queue, w)
			case x:
			default:
				return nil, false
			}
		}
	}
	for _, img := range m {
		if img < 0 {
			return nil, false
		}
	}
	return m, true
}

// mapBindings finds the target binding index of every source binding.
func mapBindings(src, dst *graph, m []int) ([]int, bool) {
	out := make([]int, len(src.p.Bindings))
	for i, b := range src.p.Bindings {
		nb := NewBinding(SiteRef{Mol: m[b.A.Mol], Site: b.A.Site}, SiteRef{Mol: m[b.B.Mol], Site: b.B.Site})
		j, ok := dst.binding[nb]
		if !ok {
			return nil, false
		}
		out[i] = j
	}
	return out, true
}

// FindIsomorphism searches for a structure-preserving bijection from src
// onto dst: mols map to mols of the identical type and every binding maps
// to a binding on the same sites. Both plexes must be connected. When the
// plexes have automorphisms any one of the valid maps is returned.
func FindIsomorphism(src, dst *Plex) (Isomorphism, bool) {
	if len(src.Mols) != len(dst.Mols) || len(src.Bindings) != len(dst.Bindings) {
		return Isomorphism{}, false
	}
	if len(src.Mols) == 0 {
		return Identity(0, 0), true
	}
	sg, dg := newGraph(src), newGraph(dst)

	// Try every image of mol 0 that agrees on type and bound-site set.
	for j := range dst.Mols {
		if dst.Mols[j] != src.Mols[0] || dg.keys[j] != sg.keys[0] {
			continue
		}
		m, ok := extend(sg, dg, 0, j, true)
		if !ok {
			continue
		}
		bs, ok := mapBindings(sg, dg, m)
		if !ok {
			continue
		}
		return Isomorphism{Mols: m, Bindings: bs}, true
	}
	return Isomorphism{}, false
}

// Embeddings returns every embedding of the connected pattern into target.
// Pattern bindings must be present in target on the same sites; sites the
// pattern leaves unbound are unconstrained. Results are ordered by the
// target index of pattern mol 0.
func Embeddings(pattern, target *Plex) []Embedding {
	if len(pattern.Mols) == 0 || len(pattern.Mols) > len(target.Mols) {
		return nil
	}
	pg, tg := newGraph(pattern), newGraph(target)

	var out []Embedding
	for j := range target.Mols {
		if target.Mols[j] != pattern.Mols[0] {
			continue
		}
		m, ok := extend(pg, tg, 0, j, false)
		if !ok {
			continue
		}
		bs, ok := mapBindings(pg, tg, m)
		if !ok {
			continue
		}
		out = append(out, Embedding{Mols: m, Bindings: bs})
	}
	return out
}

// Canonicalize returns a deterministic re-ordering of p: a breadth-first
// walk from the mol with the smallest type/bound-site key, visiting sites in
// order, with bindings sorted. The returned map takes indices of p to
// indices of the result.
func Canonicalize(p *Plex) (*Plex, Isomorphism) {
	g := newGraph(p)
	n := len(p.Mols)
	if n == 0 {
		return p.Clone(), Identity(0, 0)
	}

	root := 0
	for i := 1; i < n; i++ {
		if g.keys[i] < g.keys[root] {
			root = i
		}
	}

	order := make([]int, 0, n)
	pos := make([]int, n)
	for i := range pos {
		pos[i] = -1
	}
	visit := func(start int) {
		pos[start] = len(order)
		order = append(order, start)
		for k := len(order) - 1; k < len(order); k++ {
			u := order[k]
			for s := range p.Mols[u].BindingSites {
				partner, ok := g.partner[SiteRef{Mol: u, Site: s}]
				if !ok || pos[partner.Mol] >= 0 {
					continue
				}
				pos[partner.Mol] = len(order)
				order = append(order, partner.Mol)
			}
		}
	}
	visit(root)
	for i := 0; i < n; i++ {
		if pos[i] < 0 {
			visit(i)
		}
	}

	out := &Plex{Mols: make([]*chem.Mol, n)}
	for newIdx, old := range order {
		out.Mols[newIdx] = p.Mols[old]
	}

	type mapped struct {
		b   Binding
		old int
	}
	bs := make([]mapped, len(p.Bindings))
	for i, b := range p.Bindings {
		bs[i] = mapped{
			b: NewBinding(SiteRef{Mol: pos[b.A.Mol], Site: b.A.Site},
				SiteRef{Mol: pos[b.B.Mol], Site: b.B.Site}),
			old: i,
		}
	}
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].b.A != bs[j].b.A {
			return bs[i].b.A.Less(bs[j].b.A)
		}
		return bs[i].b.B.Less(bs[j].b.B)
	})

	iso := Isomorphism{Mols: pos, Bindings: make([]int, len(p.Bindings))}
	out.Bindings = make([]Binding, len(bs))
	for newIdx, m := range bs {
		out.Bindings[newIdx] = m.b
		iso.Bindings[m.old] = newIdx
	}
	return out, iso
}
