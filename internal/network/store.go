package network

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nvandessel/plexsim/internal/catalog"
	"github.com/nvandessel/plexsim/internal/chem"
	"github.com/nvandessel/plexsim/internal/fault"
	"github.com/nvandessel/plexsim/internal/logging"
)

// Listener observes network growth.
type Listener interface {
	SpeciesCreated(sp *Species)
	ReactionCreated(r *Reaction)
}

// Options configure a Store.
type Options struct {
	// MaxDepth is the notification depth given to newly populated species.
	MaxDepth int
	Logger   *slog.Logger
	Trace    *logging.ExpansionLogger
}

type reactionKey struct {
	generator string
	key       string
}

// Store owns every species and reaction of a simulation. Both live in
// arenas and refer to each other by handle.
type Store struct {
	states     *chem.Context
	recognizer *Recognizer

	mu        sync.Mutex
	species   []*Species
	reactions []*Reaction
	index     *catalog.Catalog[reactionKey, *Reaction]

	maxDepth   int
	generating bool
	listeners  []Listener

	logger *slog.Logger
	trace  *logging.ExpansionLogger
}

// NewStore creates an empty network over the given model context.
func NewStore(states *chem.Context, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		states:     states,
		recognizer: NewRecognizer(logger),
		index:      catalog.New[reactionKey, *Reaction]("reaction"),
		maxDepth:   opts.MaxDepth,
		generating: true,
		logger:     logger,
		trace:      opts.Trace,
	}
}

// States returns the model context.
func (s *Store) States() *chem.Context { return s.states }

// Recognizer returns the family registry.
func (s *Store) Recognizer() *Recognizer { return s.recognizer }

// MaxDepth returns the configured notification depth.
func (s *Store) MaxDepth() int { return s.maxDepth }

// Subscribe adds a listener for species and reaction creation.
func (s *Store) Subscribe(l Listener) {
	s.listeners = append(s.listeners, l)
}

// SetGenerationEnabled turns network expansion on or off. While off, Notify
// does nothing; existing reactions are unaffected.
func (s *Store) SetGenerationEnabled(on bool) {
	s.generating = on
}

// GenerationEnabled reports whether Notify expands the network.
func (s *Store) GenerationEnabled() bool { return s.generating }

// Species returns the species with handle id.
func (s *Store) Species(id SpeciesID) *Species {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.species[id]
}

// Reaction returns the reaction with handle id.
func (s *Store) Reaction(id ReactionID) *Reaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reactions[id]
}

// AllSpecies returns every species in creation order.
func (s *Store) AllSpecies() []*Species {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Species(nil), s.species...)
}

// AllReactions returns every reaction in creation order.
func (s *Store) AllReactions() []*Reaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Reaction(nil), s.reactions...)
}

// SpeciesCount returns the number of species.
func (s *Store) SpeciesCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.species)
}

// ReactionCount returns the number of reactions.
func (s *Store) ReactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reactions)
}

// InternSpecies returns the unique species of family f with state vector
// params, which must be in paradigm order. The boolean reports creation.
func (s *Store) InternSpecies(f *Family, params ParamVector) (*Species, bool) {
	if len(params) != len(f.Paradigm.Mols) {
		fault.Invariantf(f.String(), "parameter vector has %d states for %d mols",
			len(params), len(f.Paradigm.Mols))
	}
	for i, st := range params {
		if st == nil || st.Mol != f.Paradigm.Mols[i] {
			fault.Invariantf(f.String(), "state %d does not belong to mol %s", i, f.Paradigm.Mols[i].Name)
		}
	}

	sp, created, _ := f.members.GetOrCreate(params.Key(), func() (*Species, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		sp := &Species{
			ID:       SpeciesID(len(s.species)),
			Family:   f,
			Params:   params.Clone(),
			notified: -1,
		}
		s.species = append(s.species, sp)
		return sp, nil
	})
	if created {
		s.logger.Debug("species created", "species", sp.Tag(), "family", f.ID, "name", sp.Name())
		s.trace.SpeciesCreated(sp.Tag(), f.ID, sp.Name())
		for _, l := range s.listeners {
			l.SpeciesCreated(sp)
		}
	}
	return sp, created
}

// InternComplex recognizes c and interns the species it describes.
func (s *Store) InternComplex(c Complex) (*Species, bool, error) {
	if len(c.Params) != len(c.Plex.Mols) {
		fault.Invariantf("complex "+c.Plex.String(), "parameter vector has %d states for %d mols",
			len(c.Params), len(c.Plex.Mols))
	}
	f, iso, err := s.recognizer.Recognize(c.Plex)
	if err != nil {
		return nil, false, err
	}
	sp, created := s.InternSpecies(f, c.Params.Reindex(iso))
	return sp, created, nil
}

// InternReaction returns the unique reaction of gen under key, calling
// build to create it when absent. The store fills in ID, generator and key
// and wires the reaction into its species.
func (s *Store) InternReaction(gen Generator, key string, build func() (*Reaction, error)) (*Reaction, bool, error) {
	r, created, err := s.index.GetOrCreate(reactionKey{generator: gen.Name(), key: key}, func() (*Reaction, error) {
		r, err := build()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		r.ID = ReactionID(len(s.reactions))
		r.Generator = gen
		r.Key = key
		s.reactions = append(s.reactions, r)
		return r, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("building reaction %s/%s: %w", gen.Name(), key, err)
	}
	if !created {
		return r, false, nil
	}

	for _, t := range r.Reactants {
		sp := s.Species(t.Species)
		sp.reactantOf = append(sp.reactantOf, r.ID)
	}
	for _, t := range r.Products {
		sp := s.Species(t.Species)
		sp.productOf = append(sp.productOf, r.ID)
	}
	s.logger.Debug("reaction created", "reaction", r.Tag(), "generator", gen.Name(), "rate", r.Rate)
	s.trace.ReactionCreated(r.Tag(), gen.Name(), r.Rate)
	for _, l := range s.listeners {
		l.ReactionCreated(r)
	}
	return r, true, nil
}

// Notify asks every feature of the species' family to respond at depth.
// Notification is idempotent: a depth at or below the depth already
// explored does nothing. Negative depths end expansion silently.
func (s *Store) Notify(sp *Species, depth int) error {
	if !s.generating {
		s.trace.NotifySkipped(sp.Tag(), depth, "generation disabled")
		return nil
	}
	if depth < 0 {
		return nil
	}
	if depth <= sp.notified {
		s.trace.NotifySkipped(sp.Tag(), depth, "already notified")
		return nil
	}
	sp.notified = depth

	s.logger.Log(context.Background(), logging.LevelTrace, "notify",
		"species", sp.Tag(), "depth", depth, "features", len(sp.Family.features))
	for _, c := range sp.Family.features {
		if err := c.feature.Respond(sp, c.emb, depth); err != nil {
			return fmt.Errorf("%s responding to %s: %w", c.feature.Name(), sp.Tag(), err)
		}
	}
	return nil
}

// Expand notifies sp at the configured maximum depth.
func (s *Store) Expand(sp *Species) error {
	return s.Notify(sp, s.maxDepth)
}

// ExpansionState classifies how far sp has been explored.
func (s *Store) ExpansionState(sp *Species) ExpansionState {
	switch {
	case sp.notified < 0:
		return Unexplored
	case sp.notified >= s.maxDepth:
		return FullyExpanded
	default:
		return Notified
	}
}
