// Package dump writes periodic snapshots of named simulation quantities.
//
// The simulation exposes its state through Source; a Dumpable names one
// quantity and knows how to pull it. Writers turn rows of values into files.
package dump

import (
	"fmt"

	"github.com/nvandessel/plexsim/internal/network"
)

// Source is the pull-based view of a running simulation.
type Source interface {
	Now() float64
	Volume() float64
	ReactionCount() int64
	Store() *network.Store
}

// Kind selects what a Dumpable measures.
type Kind int

const (
	// Time is the current simulation time.
	Time Kind = iota
	// Volume is the current reaction volume.
	Volume
	// Reactions is the number of reaction events fired so far.
	Reactions
	// SpeciesCount is the number of species discovered so far.
	SpeciesCount
	// SpeciesPop is the population of one species.
	SpeciesPop
	// FamilyPop is the summed population of every member of a family.
	FamilyPop
)

func (k Kind) String() string {
	switch k {
	case Time:
		return "time"
	case Volume:
		return "volume"
	case Reactions:
		return "reactions"
	case SpeciesCount:
		return "species"
	case SpeciesPop:
		return "species-pop"
	case FamilyPop:
		return "family-pop"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Dumpable is one named column of a dump.
type Dumpable struct {
	Kind Kind
	// Name is the column header. Empty uses a generated name.
	Name    string
	Species network.SpeciesID
	Family  int
}

// Column returns the header of the column.
func (d Dumpable) Column() string {
	if d.Name != "" {
		return d.Name
	}
	switch d.Kind {
	case SpeciesPop:
		return fmt.Sprintf("s%d", d.Species)
	case FamilyPop:
		return fmt.Sprintf("f%d", d.Family)
	default:
		return d.Kind.String()
	}
}

// Value pulls the quantity from src. Unknown species and families read as zero.
func (d Dumpable) Value(src Source) float64 {
	switch d.Kind {
	case Time:
		return src.Now()
	case Volume:
		return src.Volume()
	case Reactions:
		return float64(src.ReactionCount())
	case SpeciesCount:
		return float64(src.Store().SpeciesCount())
	case SpeciesPop:
		store := src.Store()
		if int(d.Species) < 0 || int(d.Species) >= store.SpeciesCount() {
			return 0
		}
		return float64(store.Species(d.Species).Population)
	case FamilyPop:
		f, ok := src.Store().Recognizer().Family(d.Family)
		if !ok {
			return 0
		}
		var n int64
		for _, sp := range f.Members() {
			n += sp.Population
		}
		return float64(n)
	default:
		return 0
	}
}

// Columns returns the headers of ds.
func Columns(ds []Dumpable) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Column()
	}
	return out
}

// Row pulls every quantity of ds from src.
func Row(src Source, ds []Dumpable) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = d.Value(src)
	}
	return out
}

// Writer receives a header once and then one row per dump.
type Writer interface {
	WriteHeader(columns []string) error
	WriteRow(values []float64) error
	Close() error
}
