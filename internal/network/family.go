// Package network holds the generated reaction network: complex families,
// the species and reactions interned in them, and the notification
// mechanism through which rules expand the network on demand.
package network

import (
	"fmt"
	"log/slog"

	"github.com/nvandessel/plexsim/internal/catalog"
	"github.com/nvandessel/plexsim/internal/plex"
)

// Feature is a structural pattern a family was found to contain. When a
// member species is notified, every connected feature responds with the
// embedding of its pattern in the family paradigm.
type Feature interface {
	Name() string
	Respond(sp *Species, emb plex.Embedding, depth int) error
}

type connection struct {
	feature Feature
	emb     plex.Embedding
}

// Family is the isomorphism class of a complex. Its paradigm is fixed at
// creation and every member species indexes its state in paradigm order.
type Family struct {
	ID        int
	Paradigm  *plex.Plex
	Signature string

	members  *catalog.Catalog[string, *Species]
	features []connection
}

// Connect attaches a feature at the given embedding in the paradigm.
func (f *Family) Connect(ft Feature, emb plex.Embedding) {
	f.features = append(f.features, connection{feature: ft, emb: emb})
}

// FeatureCount returns the number of connected feature embeddings.
func (f *Family) FeatureCount() int { return len(f.features) }

// Members returns the member species in creation order.
func (f *Family) Members() []*Species { return f.members.Values() }

// Size returns the number of mols in a complex of this family.
func (f *Family) Size() int { return len(f.Paradigm.Mols) }

func (f *Family) String() string { return fmt.Sprintf("f%d[%s]", f.ID, f.Paradigm) }

// Recognizer is the family registry. Families are grouped by signature so
// the isomorphism search only runs against plausible candidates.
//
// Recognizer is not safe for concurrent use.
type Recognizer struct {
	families []*Family
	bySig    map[string][]*Family
	hooks    []func(*Family) error
	logger   *slog.Logger
}

// NewRecognizer creates an empty registry.
func NewRecognizer(logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recognizer{
		bySig:  make(map[string][]*Family),
		logger: logger,
	}
}

// OnFamily registers fn to run once for every family created afterwards.
func (r *Recognizer) OnFamily(fn func(*Family) error) {
	r.hooks = append(r.hooks, fn)
}

// Recognize finds the family of p, creating it when p is the first complex
// of its kind. The returned isomorphism maps the indices of p onto the
// family paradigm. Invalid and disconnected plexes are rejected.
func (r *Recognizer) Recognize(p *plex.Plex) (*Family, plex.Isomorphism, error) {
	if err := p.Validate(); err != nil {
		return nil, plex.Isomorphism{}, fmt.Errorf("recognize %s: %w", p, err)
	}

	sig := p.Signature()
	for _, f := range r.bySig[sig] {
		if iso, ok := plex.FindIsomorphism(p, f.Paradigm); ok {
			return f, iso, nil
		}
	}

	paradigm, iso := plex.Canonicalize(p)
	f := &Family{
		ID:        len(r.families),
		Paradigm:  paradigm,
		Signature: sig,
		members:   catalog.New[string, *Species](fmt.Sprintf("family %d", len(r.families))),
	}
	r.families = append(r.families, f)
	r.bySig[sig] = append(r.bySig[sig], f)
	r.logger.Debug("family created", "family", f.ID, "paradigm", paradigm.String())

	for _, hook := range r.hooks {
		if err := hook(f); err != nil {
			return nil, plex.Isomorphism{}, fmt.Errorf("connecting features to family %d: %w", f.ID, err)
		}
	}
	return f, iso, nil
}

// Families returns every family in creation order.
func (r *Recognizer) Families() []*Family {
	return append([]*Family(nil), r.families...)
}

// Family returns the family with the given ID.
func (r *Recognizer) Family(id int) (*Family, bool) {
	if id < 0 || id >= len(r.families) {
		return nil, false
	}
	return r.families[id], true
}
