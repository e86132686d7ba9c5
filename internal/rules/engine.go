// Package rules implements the reaction generators. Each rule connects
// features to the families whose paradigm contains its pattern; when a
// member species is notified the features respond by building product
// species and interning the reactions that produce them.
package rules

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/nvandessel/plexsim/internal/fault"
	"github.com/nvandessel/plexsim/internal/logging"
	"github.com/nvandessel/plexsim/internal/network"
)

// Rule is a reaction generator.
type Rule interface {
	network.Generator
	// Kind names the rule variant.
	Kind() string
	// Validate reports configuration faults in the rule definition.
	Validate() error

	attach(e *Engine) error
	connect(f *network.Family)
}

// Options configure an Engine.
type Options struct {
	// Extrapolator is used by rules that do not choose one.
	Extrapolator Extrapolator
	Logger       *slog.Logger
	Trace        *logging.ExpansionLogger
}

// Engine owns the rules of a simulation and connects them to every family
// the recognizer creates.
type Engine struct {
	store  *network.Store
	rules  []Rule
	names  map[string]bool
	extrap Extrapolator
	logger *slog.Logger
	trace  *logging.ExpansionLogger
}

// NewEngine creates an engine over store and installs its family hook.
func NewEngine(store *network.Store, opts Options) *Engine {
	e := &Engine{
		store:  store,
		names:  make(map[string]bool),
		extrap: opts.Extrapolator,
		logger: opts.Logger,
		trace:  opts.Trace,
	}
	if e.extrap == nil {
		e.extrap = Fixed{}
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	store.Recognizer().OnFamily(func(f *network.Family) error {
		for _, r := range e.rules {
			r.connect(f)
		}
		return nil
	})
	return e
}

// Store returns the network the engine expands.
func (e *Engine) Store() *network.Store { return e.store }

// Add validates r and registers it. Rule names must be unique.
func (e *Engine) Add(r Rule) error {
	entity := fmt.Sprintf("rule %q", r.Name())
	if r.Name() == "" {
		return fault.Configf("rule", "name is required")
	}
	if e.names[r.Name()] {
		return fault.Configf(entity, "duplicate rule name")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if err := r.attach(e); err != nil {
		return fault.WrapConfig(err, entity, "attaching rule")
	}
	e.names[r.Name()] = true
	e.rules = append(e.rules, r)
	for _, f := range e.store.Recognizer().Families() {
		r.connect(f)
	}
	e.logger.Debug("rule added", "rule", r.Name(), "kind", r.Kind())
	return nil
}

// Rules returns the rules in the order they were added.
func (e *Engine) Rules() []Rule { return append([]Rule(nil), e.rules...) }

// Expand notifies sp at the configured depth.
func (e *Engine) Expand(sp *network.Species) error {
	return e.store.Expand(sp)
}

// base carries what every rule kind shares.
type base struct {
	name   string
	engine *Engine
}

func (b *base) Name() string { return b.name }

// finish interns the reaction and notifies the products this response
// created one level down. Products that already existed keep their depth.
func (b *base) finish(gen network.Generator, trigger *network.Species, key string,
	reactants, products []network.SpeciesID, fresh []*network.Species, rate float64, depth int) error {
	store := b.engine.store
	rxn, created, err := store.InternReaction(gen, key, func() (*network.Reaction, error) {
		return &network.Reaction{
			Reactants: network.Terms(reactants...),
			Products:  network.Terms(products...),
			Rate:      rate,
		}, nil
	})
	if err != nil {
		return err
	}
	if created {
		b.engine.trace.RuleFired(b.name, trigger.Tag(), rxn.Tag(), depth)
	}
	if depth-1 < 0 {
		return nil
	}
	for _, sp := range fresh {
		if err := store.Notify(sp, depth-1); err != nil {
			return err
		}
	}
	return nil
}

// reactionKey identifies a reaction by its reactants and products.
func reactionKey(store *network.Store, reactants, products []network.SpeciesID) string {
	tags := func(ids []network.SpeciesID) string {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = store.Species(id).Tag()
		}
		return strings.Join(parts, "+")
	}
	return tags(sortIDs(reactants)) + ">" + tags(sortIDs(products))
}

func sortIDs(ids []network.SpeciesID) []network.SpeciesID {
	out := append([]network.SpeciesID(nil), ids...)
	slices.Sort(out)
	return out
}
