// Package chem holds the static model definitions: modifications, molecule
// types and their interned per-instance states.
package chem

import (
	"fmt"
	"strconv"
	"strings"
)

// Modification is a named label on a modification site, such as a
// phosphorylation. Modifications are cataloged once and shared by pointer.
type Modification struct {
	Name        string
	WeightDelta float64
}

// BindingSite is a site through which a mol binds another mol. A site is
// always in exactly one of its allowed shapes.
type BindingSite struct {
	Name         string
	Shapes       []string
	DefaultShape string
}

// ShapeIndex returns the index of shape in s.Shapes, or -1.
func (s *BindingSite) ShapeIndex(shape string) int {
	for i, sh := range s.Shapes {
		if sh == shape {
			return i
		}
	}
	return -1
}

// ModSite is a modification site with its default modification.
type ModSite struct {
	Name    string
	Default *Modification
}

// Kind separates the two mol variants.
type Kind int

const (
	// SmallMol is a mol without modification sites, e.g. a nucleotide.
	SmallMol Kind = iota
	// ModMol is a mol with modification sites, e.g. a protein.
	ModMol
)

func (k Kind) String() string {
	if k == ModMol {
		return "mod-mol"
	}
	return "small-mol"
}

// Mol is an immutable molecule type definition.
type Mol struct {
	Name         string
	Kind         Kind
	Weight       float64
	BindingSites []BindingSite
	ModSites     []ModSite
}

// BindingSiteIndex returns the index of the named binding site, or -1.
func (m *Mol) BindingSiteIndex(name string) int {
	for i := range m.BindingSites {
		if m.BindingSites[i].Name == name {
			return i
		}
	}
	return -1
}

// ModSiteIndex returns the index of the named modification site, or -1.
func (m *Mol) ModSiteIndex(name string) int {
	for i := range m.ModSites {
		if m.ModSites[i].Name == name {
			return i
		}
	}
	return -1
}

// ShapeIndex returns the index of shape on the given binding site, or -1.
func (m *Mol) ShapeIndex(site int, shape string) int {
	if site < 0 || site >= len(m.BindingSites) {
		return -1
	}
	return m.BindingSites[site].ShapeIndex(shape)
}

// MolState is the interned state of one mol instance: the shape of every
// binding site and the modification on every modification site. Equal
// states share the same *MolState.
type MolState struct {
	ID     int
	Mol    *Mol
	Shapes []int
	Mods   []*Modification

	ctx *Context
}

// Weight returns the mol weight plus the weight deltas of its modifications.
func (s *MolState) Weight() float64 {
	w := s.Mol.Weight
	for _, m := range s.Mods {
		if m != nil {
			w += m.WeightDelta
		}
	}
	return w
}

// Shape returns the name of the shape on binding site i.
func (s *MolState) Shape(i int) string {
	return s.Mol.BindingSites[i].Shapes[s.Shapes[i]]
}

// WithMod returns the interned state with modification site i set to mod.
func (s *MolState) WithMod(i int, mod *Modification) *MolState {
	if s.Mods[i] == mod {
		return s
	}
	mods := append([]*Modification(nil), s.Mods...)
	mods[i] = mod
	return s.ctx.InternState(s.Mol, s.Shapes, mods)
}

// WithShape returns the interned state with binding site i in shape.
func (s *MolState) WithShape(i, shape int) *MolState {
	if s.Shapes[i] == shape {
		return s
	}
	shapes := append([]int(nil), s.Shapes...)
	shapes[i] = shape
	return s.ctx.InternState(s.Mol, shapes, s.Mods)
}

// String renders the state as Name(site=shape,...|modsite=mod,...).
func (s *MolState) String() string {
	var parts []string
	for i := range s.Shapes {
		site := &s.Mol.BindingSites[i]
		if site.Shapes[s.Shapes[i]] != site.DefaultShape {
			parts = append(parts, site.Name+"="+site.Shapes[s.Shapes[i]])
		}
	}
	for i, m := range s.Mods {
		if m != s.Mol.ModSites[i].Default {
			parts = append(parts, s.Mol.ModSites[i].Name+"~"+modName(m))
		}
	}
	if len(parts) == 0 {
		return s.Mol.Name
	}
	return s.Mol.Name + "(" + strings.Join(parts, ",") + ")"
}

func modName(m *Modification) string {
	if m == nil {
		return "none"
	}
	return m.Name
}

func stateKey(mol *Mol, shapes []int, mods []*Modification) string {
	var b strings.Builder
	b.WriteString(mol.Name)
	b.WriteByte('|')
	for i, sh := range shapes {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(sh))
	}
	b.WriteByte('|')
	for i, m := range mods {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(modName(m))
	}
	return b.String()
}

// describe is used in fault messages.
func describe(kind, name string) string {
	return fmt.Sprintf("%s %q", kind, name)
}
