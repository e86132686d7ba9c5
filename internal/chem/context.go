package chem

import (
	"github.com/nvandessel/plexsim/internal/catalog"
	"github.com/nvandessel/plexsim/internal/fault"
)

// Context is the model context of one simulation: the modification and mol
// catalogs plus the interned mol states. It replaces process-wide registries
// and is passed explicitly to everything that needs a definition.
type Context struct {
	mods      *catalog.Catalog[string, *Modification]
	mols      *catalog.Catalog[string, *Mol]
	states    *catalog.Catalog[string, *MolState]
	nextState int
}

// NewContext creates an empty model context.
func NewContext() *Context {
	return &Context{
		mods:   catalog.New[string, *Modification]("modification"),
		mols:   catalog.New[string, *Mol]("mol"),
		states: catalog.New[string, *MolState]("mol state"),
	}
}

// AddModification registers a modification.
func (c *Context) AddModification(m *Modification) error {
	if m == nil || m.Name == "" {
		return fault.Configf("modification", "name is required")
	}
	return c.mods.Add(m.Name, m)
}

// Modification looks up a modification by name.
func (c *Context) Modification(name string) (*Modification, bool) {
	return c.mods.Get(name)
}

// Modifications returns every modification in definition order.
func (c *Context) Modifications() []*Modification { return c.mods.Values() }

// AddMol validates and registers a mol type.
func (c *Context) AddMol(m *Mol) error {
	if m == nil || m.Name == "" {
		return fault.Configf("mol", "name is required")
	}
	entity := describe("mol", m.Name)
	if m.Weight < 0 {
		return fault.Configf(entity, "weight %g is negative", m.Weight)
	}

	seen := make(map[string]bool)
	for i := range m.BindingSites {
		site := &m.BindingSites[i]
		if site.Name == "" {
			return fault.Configf(entity, "binding site %d has no name", i)
		}
		if seen[site.Name] {
			return fault.Configf(entity, "duplicate site %q", site.Name)
		}
		seen[site.Name] = true
		if len(site.Shapes) == 0 {
			return fault.Configf(entity, "binding site %q has no shapes", site.Name)
		}
		if site.DefaultShape == "" {
			site.DefaultShape = site.Shapes[0]
		}
		if site.ShapeIndex(site.DefaultShape) < 0 {
			return fault.Configf(entity, "binding site %q: default shape %q is not an allowed shape",
				site.Name, site.DefaultShape)
		}
	}

	switch m.Kind {
	case SmallMol:
		if len(m.ModSites) > 0 {
			return fault.Configf(entity, "small-mol cannot carry modification sites")
		}
	case ModMol:
		for i := range m.ModSites {
			ms := &m.ModSites[i]
			if ms.Name == "" {
				return fault.Configf(entity, "modification site %d has no name", i)
			}
			if seen[ms.Name] {
				return fault.Configf(entity, "duplicate site %q", ms.Name)
			}
			seen[ms.Name] = true
			if ms.Default == nil {
				return fault.Configf(entity, "modification site %q has no default modification", ms.Name)
			}
			if known, ok := c.mods.Get(ms.Default.Name); !ok || known != ms.Default {
				return fault.Configf(entity, "modification site %q: unknown modification %q",
					ms.Name, ms.Default.Name)
			}
		}
	default:
		return fault.Configf(entity, "unknown mol kind %d", m.Kind)
	}

	return c.mols.Add(m.Name, m)
}

// Mol looks up a mol type by name.
func (c *Context) Mol(name string) (*Mol, bool) {
	return c.mols.Get(name)
}

// Mols returns every mol type in definition order.
func (c *Context) Mols() []*Mol { return c.mols.Values() }

// DefaultState returns the interned state of mol with every site at its
// default shape and default modification.
func (c *Context) DefaultState(m *Mol) *MolState {
	shapes := make([]int, len(m.BindingSites))
	for i := range m.BindingSites {
		shapes[i] = m.BindingSites[i].ShapeIndex(m.BindingSites[i].DefaultShape)
	}
	mods := make([]*Modification, len(m.ModSites))
	for i := range m.ModSites {
		mods[i] = m.ModSites[i].Default
	}
	return c.InternState(m, shapes, mods)
}

// InternState returns the unique state with the given shapes and mods.
// The slices are copied. Lengths that disagree with the mol type are an
// invariant fault.
func (c *Context) InternState(m *Mol, shapes []int, mods []*Modification) *MolState {
	if len(shapes) != len(m.BindingSites) || len(mods) != len(m.ModSites) {
		fault.Invariantf(describe("mol", m.Name), "state has %d shapes and %d mods, want %d and %d",
			len(shapes), len(mods), len(m.BindingSites), len(m.ModSites))
	}
	for i, sh := range shapes {
		if sh < 0 || sh >= len(m.BindingSites[i].Shapes) {
			fault.Invariantf(describe("mol", m.Name), "shape %d out of range on site %q",
				sh, m.BindingSites[i].Name)
		}
	}

	st, _, _ := c.states.GetOrCreate(stateKey(m, shapes, mods), func() (*MolState, error) {
		st := &MolState{
			ID:     c.nextState,
			Mol:    m,
			Shapes: append([]int(nil), shapes...),
			Mods:   append([]*Modification(nil), mods...),
			ctx:    c,
		}
		c.nextState++
		return st, nil
	})
	return st
}

// StateCount returns the number of distinct interned states.
func (c *Context) StateCount() int { return c.states.Len() }
