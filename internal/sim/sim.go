// Package sim runs the stochastic simulation over the lazily expanding
// reaction network.
//
// Every reaction owns one event whose firing time is drawn from an
// exponential distribution with the reaction's current propensity. When a
// reaction fires, the populations it touches change, newly populated
// species are expanded by the rule engine, and every reaction whose
// propensity may have changed is redrawn.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/nvandessel/plexsim/internal/constants"
	"github.com/nvandessel/plexsim/internal/dump"
	"github.com/nvandessel/plexsim/internal/fault"
	"github.com/nvandessel/plexsim/internal/logging"
	"github.com/nvandessel/plexsim/internal/network"
	"github.com/nvandessel/plexsim/internal/rules"
	"github.com/nvandessel/plexsim/internal/sched"
)

// Observer is told about every executed event.
type Observer interface {
	EventExecuted(kind string, now float64)
}

// Options configure a Simulation.
type Options struct {
	// Volume is the reaction volume in liters. Zero uses the default.
	Volume float64
	// StopTime schedules a stop event. Zero schedules none.
	StopTime float64
	// Timeout is the wall-clock budget of each Run. Zero means none.
	Timeout time.Duration
	// Random draws firing times. Nil uses a PCG source seeded with Seed.
	Random Random
	Seed   uint64

	Logger *slog.Logger
	Trace  *logging.ExpansionLogger
}

// FaultHook runs before Run gives up on a timeout or an empty queue.
type FaultHook func(ctx context.Context, s *Simulation) error

// Simulation couples the network, the rule engine and the scheduler.
type Simulation struct {
	store  *network.Store
	engine *rules.Engine
	sched  *sched.Scheduler
	rng    Random

	volume   float64
	fired    int64
	timeout  time.Duration
	reaction []*ReactionEvent

	dumpables []dump.Dumpable
	observers []Observer
	logger    *slog.Logger
	trace     *logging.ExpansionLogger
}

// New creates a simulation over engine's network. Reactions that already
// exist are scheduled; reactions created later are picked up as they appear.
func New(engine *rules.Engine, opts Options) (*Simulation, error) {
	if opts.Volume == 0 {
		opts.Volume = constants.DefaultVolume
	}
	if opts.Volume < 0 || math.IsNaN(opts.Volume) {
		return nil, fault.Configf("simulation", "volume %g must be positive", opts.Volume)
	}
	if opts.Random == nil {
		opts.Random = NewRandom(opts.Seed)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Simulation{
		store:   engine.Store(),
		engine:  engine,
		sched:   sched.New(opts.Logger),
		rng:     opts.Random,
		volume:  opts.Volume,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		trace:   opts.Trace,
	}
	s.dumpables = []dump.Dumpable{
		{Kind: dump.Time},
		{Kind: dump.Volume},
		{Kind: dump.Reactions},
		{Kind: dump.SpeciesCount},
	}

	s.store.Subscribe(listener{s})
	for _, r := range s.store.AllReactions() {
		if err := s.addReaction(r); err != nil {
			return nil, err
		}
	}
	if opts.StopTime > 0 {
		if err := s.sched.Schedule(&StopEvent{}, opts.StopTime); err != nil {
			return nil, fmt.Errorf("scheduling stop: %w", err)
		}
	}
	return s, nil
}

// Store returns the reaction network.
func (s *Simulation) Store() *network.Store { return s.store }

// Engine returns the rule engine.
func (s *Simulation) Engine() *rules.Engine { return s.engine }

// Scheduler returns the event scheduler.
func (s *Simulation) Scheduler() *sched.Scheduler { return s.sched }

// Now returns the current simulation time.
func (s *Simulation) Now() float64 { return s.sched.Now() }

// Volume returns the reaction volume in liters.
func (s *Simulation) Volume() float64 { return s.volume }

// ReactionCount returns the number of reaction events fired so far.
func (s *Simulation) ReactionCount() int64 { return s.fired }

// Dumpables returns the quantities a dump records by default: time, volume,
// the reaction and species counts, and the population of every species
// added with AddSpecies.
func (s *Simulation) Dumpables() []dump.Dumpable {
	return append([]dump.Dumpable(nil), s.dumpables...)
}

// Snapshot exports the network with current populations.
func (s *Simulation) Snapshot() network.Snapshot { return s.store.Snapshot() }

// Observe registers o for every executed event.
func (s *Simulation) Observe(o Observer) { s.observers = append(s.observers, o) }

// OnFault sets the hook run before Run returns a timeout or exhaustion
// fault, typically to write a checkpoint.
func (s *Simulation) OnFault(h FaultHook) {
	hook := func(ctx context.Context, _ *sched.Scheduler) error { return h(ctx, s) }
	s.sched.OnTimeout(hook)
	s.sched.OnFault(hook)
}

// Schedule queues an event at time t.
func (s *Simulation) Schedule(e sched.Event, t float64) error {
	if err := s.sched.Schedule(e, t); err != nil {
		return fmt.Errorf("scheduling %T: %w", e, err)
	}
	return nil
}

// AddSpecies injects population copies of sp at time t and adds the
// species to the default dumpables.
func (s *Simulation) AddSpecies(sp *network.Species, population int64, t float64) error {
	return s.addSpecies(sp, sp.Name(), population, t)
}

func (s *Simulation) addSpecies(sp *network.Species, column string, population int64, t float64) error {
	if population < 0 {
		return fault.Configf(sp.Tag(), "population %d is negative", population)
	}
	tracked := false
	for _, d := range s.dumpables {
		tracked = tracked || (d.Kind == dump.SpeciesPop && d.Species == sp.ID)
	}
	if !tracked {
		s.dumpables = append(s.dumpables, dump.Dumpable{Kind: dump.SpeciesPop, Species: sp.ID, Name: column})
	}
	return s.Schedule(&CreateSpeciesEvent{sim: s, Species: sp, Population: population}, t)
}

// AddDump writes the header of ds to w and schedules a row every period,
// starting at the current time.
func (s *Simulation) AddDump(w dump.Writer, ds []dump.Dumpable, period float64) (*DumpEvent, error) {
	if period <= 0 {
		return nil, fault.Configf("dump", "period %g must be positive", period)
	}
	if err := w.WriteHeader(dump.Columns(ds)); err != nil {
		return nil, fmt.Errorf("writing dump header: %w", err)
	}
	e := &DumpEvent{sim: s, Writer: w, Dumpables: ds, Period: period}
	return e, s.Schedule(e, s.Now())
}

// SetReactionRate replaces the rate of an existing reaction and redraws
// its firing time.
func (s *Simulation) SetReactionRate(id network.ReactionID, rate float64) error {
	if rate < 0 || math.IsNaN(rate) {
		return fault.Configf(s.store.Reaction(id).Tag(), "rate %g is negative", rate)
	}
	s.store.Reaction(id).Rate = rate
	return s.reschedule(s.reaction[id])
}

// SetVolume changes the volume and redraws every reaction.
func (s *Simulation) SetVolume(v float64) error {
	if v <= 0 || math.IsNaN(v) {
		return fault.Configf("volume", "%g must be positive", v)
	}
	s.volume = v
	for _, e := range s.reaction {
		if err := s.reschedule(e); err != nil {
			return err
		}
	}
	return nil
}

// Run executes events until a stop event, a fault or cancellation. It can
// be called again after a stop to continue the same simulation.
func (s *Simulation) Run(ctx context.Context) error {
	if s.timeout > 0 {
		s.sched.SetDeadline(time.Now().Add(s.timeout))
	} else {
		s.sched.SetDeadline(time.Time{})
	}
	start := s.fired
	err := s.sched.Run(ctx)
	s.logger.Info("run ended",
		"time", s.Now(),
		"fired", s.fired-start,
		"species", s.store.SpeciesCount(),
		"reactions", s.store.ReactionCount(),
		"families", len(s.store.Recognizer().Families()))
	return err
}

// Propensity returns the firing rate of r at the current populations and
// volume. Reactions of order n are scaled by (N_A·V)^(n-1); identical
// reactants use falling factorials.
func (s *Simulation) Propensity(r *network.Reaction) float64 {
	a := r.Rate
	for _, t := range r.Reactants {
		n := s.store.Species(t.Species).Population
		for k := 0; k < t.Mult; k++ {
			if n-int64(k) <= 0 {
				return 0
			}
			a *= float64(n - int64(k))
		}
	}
	if order := r.Order(); order > 1 {
		a /= math.Pow(constants.Avogadro*s.volume, float64(order-1))
	}
	return a
}

func (s *Simulation) addReaction(r *network.Reaction) error {
	if int(r.ID) != len(s.reaction) {
		fault.Invariantf(r.Tag(), "reaction created out of order: have %d events", len(s.reaction))
	}
	e := &ReactionEvent{sim: s, Reaction: r}
	s.reaction = append(s.reaction, e)
	return s.reschedule(e)
}

// reschedule draws a new firing time for e, or deschedules it when it
// cannot fire.
func (s *Simulation) reschedule(e *ReactionEvent) error {
	a := s.Propensity(e.Reaction)
	if a <= 0 || math.IsInf(a, 0) || math.IsNaN(a) {
		s.sched.Deschedule(e)
		return nil
	}
	return s.Schedule(e, s.Now()+s.rng.ExpFloat64()/a)
}

// changePopulation applies delta to sp and expands it when it becomes
// populated for the first time at this depth.
func (s *Simulation) changePopulation(sp *network.Species, delta int64) error {
	before := sp.Population
	sp.Population += delta
	if sp.Population < 0 {
		fault.Invariantf(sp.Tag(), "population fell to %d", sp.Population)
	}
	if before == 0 && sp.Population > 0 && sp.NotifiedDepth() < s.store.MaxDepth() {
		if err := s.engine.Expand(sp); err != nil {
			return fmt.Errorf("expanding %s: %w", sp.Tag(), err)
		}
	}
	return nil
}

// rescheduleConsumers redraws every reaction that consumes one of ids.
func (s *Simulation) rescheduleConsumers(ids ...network.SpeciesID) error {
	var affected []network.ReactionID
	for _, id := range ids {
		affected = append(affected, s.store.Species(id).ReactantOf()...)
	}
	slices.Sort(affected)
	for _, rid := range slices.Compact(affected) {
		if err := s.reschedule(s.reaction[rid]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) executed(kind string) {
	for _, o := range s.observers {
		o.EventExecuted(kind, s.Now())
	}
}

// listener schedules every reaction the rule engine creates.
type listener struct{ s *Simulation }

func (l listener) SpeciesCreated(*network.Species) {}

func (l listener) ReactionCreated(r *network.Reaction) {
	if err := l.s.addReaction(r); err != nil {
		// Scheduling at or after the current time cannot fail.
		fault.Invariantf(r.Tag(), "scheduling new reaction: %v", err)
	}
}
