// Package plex models molecular complexes as graphs of mol instances joined
// by site-to-site bindings, and decides when two complexes are isomorphic.
package plex

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nvandessel/plexsim/internal/chem"
)

// SiteRef names one binding site of one mol instance.
type SiteRef struct {
	Mol  int
	Site int
}

// Less orders site refs by mol, then site.
func (r SiteRef) Less(o SiteRef) bool {
	if r.Mol != o.Mol {
		return r.Mol < o.Mol
	}
	return r.Site < o.Site
}

func (r SiteRef) String() string { return fmt.Sprintf("%d.%d", r.Mol, r.Site) }

// Binding joins two sites. A is always the lesser of the two refs.
type Binding struct {
	A SiteRef
	B SiteRef
}

// NewBinding builds a normalized binding.
func NewBinding(a, b SiteRef) Binding {
	if b.Less(a) {
		a, b = b, a
	}
	return Binding{A: a, B: b}
}

// Other returns the end of the binding opposite r.
func (b Binding) Other(r SiteRef) SiteRef {
	if b.A == r {
		return b.B
	}
	return b.A
}

// Plex is a complex: an ordered list of mol instances and the bindings
// between their sites. Plexes are transient and are never interned.
type Plex struct {
	Mols     []*chem.Mol
	Bindings []Binding
}

// New creates a plex holding the given mol instances and no bindings.
func New(mols ...*chem.Mol) *Plex {
	return &Plex{Mols: append([]*chem.Mol(nil), mols...)}
}

// AddMol appends a mol instance and returns its index.
func (p *Plex) AddMol(m *chem.Mol) int {
	p.Mols = append(p.Mols, m)
	return len(p.Mols) - 1
}

// Bind joins sites a and b.
func (p *Plex) Bind(a, b SiteRef) error {
	for _, r := range []SiteRef{a, b} {
		if err := p.checkRef(r); err != nil {
			return err
		}
		if _, ok := p.BindingAt(r); ok {
			return fmt.Errorf("%w: %s", ErrSiteBound, r)
		}
	}
	if a == b {
		return fmt.Errorf("%w: %s bound to itself", ErrSiteBound, a)
	}
	p.Bindings = append(p.Bindings, NewBinding(a, b))
	return nil
}

func (p *Plex) checkRef(r SiteRef) error {
	if r.Mol < 0 || r.Mol >= len(p.Mols) {
		return fmt.Errorf("%w: %d", ErrMolRange, r.Mol)
	}
	if r.Site < 0 || r.Site >= len(p.Mols[r.Mol].BindingSites) {
		return fmt.Errorf("%w: %s on %s", ErrSiteRange, r, p.Mols[r.Mol].Name)
	}
	return nil
}

// Clone returns a deep copy of the mol and binding lists. Mol types are shared.
func (p *Plex) Clone() *Plex {
	return &Plex{
		Mols:     append([]*chem.Mol(nil), p.Mols...),
		Bindings: append([]Binding(nil), p.Bindings...),
	}
}

// BindingAt returns the index of the binding that uses r.
func (p *Plex) BindingAt(r SiteRef) (int, bool) {
	for i, b := range p.Bindings {
		if b.A == r || b.B == r {
			return i, true
		}
	}
	return -1, false
}

// Partner returns the site r is bound to.
func (p *Plex) Partner(r SiteRef) (SiteRef, bool) {
	i, ok := p.BindingAt(r)
	if !ok {
		return SiteRef{}, false
	}
	return p.Bindings[i].Other(r), true
}

// Degree returns the number of bound sites on mol i.
func (p *Plex) Degree(i int) int {
	n := 0
	for _, b := range p.Bindings {
		if b.A.Mol == i {
			n++
		}
		if b.B.Mol == i {
			n++
		}
	}
	return n
}

// FreeSites returns the unbound binding-site indices of mol i in order.
func (p *Plex) FreeSites(i int) []int {
	bound := p.boundSites(i)
	var free []int
	for s := range p.Mols[i].BindingSites {
		if !bound[s] {
			free = append(free, s)
		}
	}
	return free
}

func (p *Plex) boundSites(i int) map[int]bool {
	bound := make(map[int]bool)
	for _, b := range p.Bindings {
		if b.A.Mol == i {
			bound[b.A.Site] = true
		}
		if b.B.Mol == i {
			bound[b.B.Site] = true
		}
	}
	return bound
}

// Validate checks that the plex is a well-formed connected complex.
func (p *Plex) Validate() error {
	if len(p.Mols) == 0 {
		return ErrEmpty
	}
	used := make(map[SiteRef]bool, 2*len(p.Bindings))
	for _, b := range p.Bindings {
		for _, r := range []SiteRef{b.A, b.B} {
			if err := p.checkRef(r); err != nil {
				return err
			}
			if used[r] {
				return fmt.Errorf("%w: %s", ErrSiteBound, r)
			}
			used[r] = true
		}
	}
	if len(p.Components()) != 1 {
		return ErrDisconnected
	}
	return nil
}

// Components returns the connected components as sorted mol-index lists,
// ordered by their smallest index.
func (p *Plex) Components() [][]int {
	adj := p.adjacency()
	seen := make([]bool, len(p.Mols))
	var comps [][]int
	for start := range p.Mols {
		if seen[start] {
			continue
		}
		var comp []int
		queue := []int{start}
		seen[start] = true
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			comp = append(comp, u)
			for _, v := range adj[u] {
				if !seen[v] {
					seen[v] = true
					queue = append(queue, v)
				}
			}
		}
		sort.Ints(comp)
		comps = append(comps, comp)
	}
	return comps
}

func (p *Plex) adjacency() [][]int {
	adj := make([][]int, len(p.Mols))
	for _, b := range p.Bindings {
		if b.A.Mol < 0 || b.A.Mol >= len(p.Mols) || b.B.Mol < 0 || b.B.Mol >= len(p.Mols) {
			continue
		}
		adj[b.A.Mol] = append(adj[b.A.Mol], b.B.Mol)
		adj[b.B.Mol] = append(adj[b.B.Mol], b.A.Mol)
	}
	return adj
}

// Sub extracts the sub-plex spanned by mols, which must be sorted. Bindings
// with an end outside mols are dropped. Mol i of the result is mol mols[i]
// of p.
func (p *Plex) Sub(mols []int) *Plex {
	index := make(map[int]int, len(mols))
	sub := &Plex{}
	for _, m := range mols {
		index[m] = len(sub.Mols)
		sub.Mols = append(sub.Mols, p.Mols[m])
	}
	for _, b := range p.Bindings {
		a, okA := index[b.A.Mol]
		c, okB := index[b.B.Mol]
		if okA && okB {
			sub.Bindings = append(sub.Bindings, NewBinding(
				SiteRef{Mol: a, Site: b.A.Site},
				SiteRef{Mol: c, Site: b.B.Site}))
		}
	}
	return sub
}

// Join returns the disjoint union of p and q joined by one binding from
// site a of p to site b of q. Mols of q are shifted by len(p.Mols).
func Join(p, q *Plex, a, b SiteRef) (*Plex, error) {
	out := p.Clone()
	off := len(p.Mols)
	out.Mols = append(out.Mols, q.Mols...)
	for _, bd := range q.Bindings {
		out.Bindings = append(out.Bindings, NewBinding(
			SiteRef{Mol: bd.A.Mol + off, Site: bd.A.Site},
			SiteRef{Mol: bd.B.Mol + off, Site: bd.B.Site}))
	}
	if err := out.Bind(a, SiteRef{Mol: b.Mol + off, Site: b.Site}); err != nil {
		return nil, err
	}
	return out, nil
}

// Signature is a cheap isomorphism invariant: the sorted multiset of
// (mol type, bound-site set) plus the binding count. Isomorphic plexes
// always share a signature.
func (p *Plex) Signature() string {
	keys := make([]string, len(p.Mols))
	for i := range p.Mols {
		keys[i] = p.molKey(i)
	}
	sort.Strings(keys)
	return strconv.Itoa(len(p.Bindings)) + ":" + strings.Join(keys, ";")
}

// molKey describes a mol instance by its type and bound sites.
func (p *Plex) molKey(i int) string {
	bound := p.boundSites(i)
	var b strings.Builder
	b.WriteString(p.Mols[i].Name)
	b.WriteByte('[')
	first := true
	for s := range p.Mols[i].BindingSites {
		if !bound[s] {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(strconv.Itoa(s))
	}
	b.WriteByte(']')
	return b.String()
}

// String renders the plex as mol names and bindings, e.g.
// "A,B {0.0-1.0}".
func (p *Plex) String() string {
	names := make([]string, len(p.Mols))
	for i, m := range p.Mols {
		names[i] = m.Name
	}
	bonds := make([]string, len(p.Bindings))
	for i, b := range p.Bindings {
		bonds[i] = b.A.String() + "-" + b.B.String()
	}
	return strings.Join(names, ",") + " {" + strings.Join(bonds, " ") + "}"
}
