package network

// Snapshot is a self-contained description of the network, enough for a
// serializer or renderer to reconstruct or display it without the
// canonicalization machinery.
type Snapshot struct {
	Families  []FamilyInfo   `json:"families"`
	Species   []SpeciesInfo  `json:"species"`
	Reactions []ReactionInfo `json:"reactions"`
}

// FamilyInfo describes one family.
type FamilyInfo struct {
	ID       int      `json:"id"`
	Paradigm string   `json:"paradigm"`
	Mols     []string `json:"mols"`
	Members  int      `json:"members"`
}

// SpeciesInfo describes one species.
type SpeciesInfo struct {
	Tag        string   `json:"tag"`
	Family     int      `json:"family"`
	Name       string   `json:"name"`
	States     []string `json:"states"`
	Weight     float64  `json:"weight"`
	Population int64    `json:"population"`
	Depth      int      `json:"depth"`
	Expansion  string   `json:"expansion"`
}

// TermInfo is a reaction term by species tag.
type TermInfo struct {
	Species string `json:"species"`
	Mult    int    `json:"mult"`
}

// ReactionInfo describes one reaction.
type ReactionInfo struct {
	Tag       string     `json:"tag"`
	Generator string     `json:"generator"`
	Reactants []TermInfo `json:"reactants"`
	Products  []TermInfo `json:"products"`
	Rate      float64    `json:"rate"`
}

// Snapshot exports the current network.
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	for _, f := range s.recognizer.Families() {
		mols := make([]string, len(f.Paradigm.Mols))
		for i, m := range f.Paradigm.Mols {
			mols[i] = m.Name
		}
		snap.Families = append(snap.Families, FamilyInfo{
			ID:       f.ID,
			Paradigm: f.Paradigm.String(),
			Mols:     mols,
			Members:  f.members.Len(),
		})
	}
	for _, sp := range s.AllSpecies() {
		states := make([]string, len(sp.Params))
		for i, st := range sp.Params {
			states[i] = st.String()
		}
		snap.Species = append(snap.Species, SpeciesInfo{
			Tag:        sp.Tag(),
			Family:     sp.Family.ID,
			Name:       sp.Name(),
			States:     states,
			Weight:     sp.Weight(),
			Population: sp.Population,
			Depth:      sp.notified,
			Expansion:  s.ExpansionState(sp).String(),
		})
	}
	for _, r := range s.AllReactions() {
		snap.Reactions = append(snap.Reactions, ReactionInfo{
			Tag:       r.Tag(),
			Generator: r.Generator.Name(),
			Reactants: s.termInfo(r.Reactants),
			Products:  s.termInfo(r.Products),
			Rate:      r.Rate,
		})
	}
	return snap
}

func (s *Store) termInfo(terms []Term) []TermInfo {
	out := make([]TermInfo, len(terms))
	for i, t := range terms {
		out[i] = TermInfo{Species: s.Species(t.Species).Tag(), Mult: t.Mult}
	}
	return out
}
