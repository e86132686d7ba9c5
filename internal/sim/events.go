package sim

import (
	"context"
	"fmt"

	"github.com/nvandessel/plexsim/internal/dump"
	"github.com/nvandessel/plexsim/internal/network"
	"github.com/nvandessel/plexsim/internal/sched"
)

// ReactionEvent is the next firing of one reaction.
type ReactionEvent struct {
	sched.Item
	sim      *Simulation
	Reaction *network.Reaction
}

// Execute fires the reaction once.
func (e *ReactionEvent) Execute(_ context.Context, _ *sched.Scheduler) (sched.Signal, error) {
	s := e.sim
	r := e.Reaction
	s.fired++

	var touched []network.SpeciesID
	for _, t := range r.Reactants {
		if err := s.changePopulation(s.store.Species(t.Species), -int64(t.Mult)); err != nil {
			return sched.Continue, err
		}
		touched = append(touched, t.Species)
	}
	for _, t := range r.Products {
		if err := s.changePopulation(s.store.Species(t.Species), int64(t.Mult)); err != nil {
			return sched.Continue, err
		}
		touched = append(touched, t.Species)
	}

	// Redraw this reaction too, in case it consumes none of what it touched.
	if err := s.reschedule(e); err != nil {
		return sched.Continue, err
	}
	if err := s.rescheduleConsumers(touched...); err != nil {
		return sched.Continue, err
	}
	s.executed("reaction")
	return sched.Continue, nil
}

// CreateSpeciesEvent injects copies of a species.
type CreateSpeciesEvent struct {
	sched.Item
	sim        *Simulation
	Species    *network.Species
	Population int64
}

// Execute adds the population and expands the species.
func (e *CreateSpeciesEvent) Execute(_ context.Context, _ *sched.Scheduler) (sched.Signal, error) {
	s := e.sim
	if err := s.changePopulation(e.Species, e.Population); err != nil {
		return sched.Continue, err
	}
	// Injected species are expanded even with no copies so their reactions exist.
	if e.Species.NotifiedDepth() < s.store.MaxDepth() {
		if err := s.engine.Expand(e.Species); err != nil {
			return sched.Continue, fmt.Errorf("expanding %s: %w", e.Species.Tag(), err)
		}
	}
	if err := s.rescheduleConsumers(e.Species.ID); err != nil {
		return sched.Continue, err
	}
	s.logger.Debug("species injected", "species", e.Species.Tag(), "population", e.Population, "time", s.Now())
	s.executed("create")
	return sched.Continue, nil
}

// DumpEvent writes one row of dumpables and reschedules itself.
type DumpEvent struct {
	sched.Item
	sim       *Simulation
	Writer    dump.Writer
	Dumpables []dump.Dumpable
	Period    float64
}

// Execute writes the row.
func (e *DumpEvent) Execute(_ context.Context, sc *sched.Scheduler) (sched.Signal, error) {
	if err := e.Writer.WriteRow(dump.Row(e.sim, e.Dumpables)); err != nil {
		return sched.Continue, fmt.Errorf("writing dump row: %w", err)
	}
	e.sim.executed("dump")
	return sched.Continue, sc.Schedule(e, sc.Now()+e.Period)
}

// VolumeEvent changes the reaction volume. With Scale set the volume is
// multiplied by Value, otherwise it is set to Value.
type VolumeEvent struct {
	sched.Item
	sim   *Simulation
	Value float64
	Scale bool
}

// NewVolumeEvent creates a volume change for s.
func (s *Simulation) NewVolumeEvent(value float64, scale bool) *VolumeEvent {
	return &VolumeEvent{sim: s, Value: value, Scale: scale}
}

// Execute applies the change and redraws every reaction.
func (e *VolumeEvent) Execute(_ context.Context, _ *sched.Scheduler) (sched.Signal, error) {
	v := e.Value
	if e.Scale {
		v *= e.sim.volume
	}
	if err := e.sim.SetVolume(v); err != nil {
		return sched.Continue, err
	}
	e.sim.logger.Info("volume changed", "volume", v, "time", e.sim.Now())
	e.sim.executed("volume")
	return sched.Continue, nil
}

// StopEvent ends the current Run.
type StopEvent struct {
	sched.Item
}

// Execute returns sched.Stop.
func (e *StopEvent) Execute(context.Context, *sched.Scheduler) (sched.Signal, error) {
	return sched.Stop, nil
}

// NoMoreGenerationEvent freezes network expansion. Reactions that already
// exist keep firing.
type NoMoreGenerationEvent struct {
	sched.Item
	sim *Simulation
}

// NewNoMoreGenerationEvent creates a generation freeze for s.
func (s *Simulation) NewNoMoreGenerationEvent() *NoMoreGenerationEvent {
	return &NoMoreGenerationEvent{sim: s}
}

// Execute disables generation.
func (e *NoMoreGenerationEvent) Execute(_ context.Context, _ *sched.Scheduler) (sched.Signal, error) {
	e.sim.store.SetGenerationEnabled(false)
	e.sim.trace.GenerationDisabled(e.sim.Now())
	e.sim.logger.Info("network generation disabled", "time", e.sim.Now(),
		"species", e.sim.store.SpeciesCount(), "reactions", e.sim.store.ReactionCount())
	e.sim.executed("no-more-generation")
	return sched.Continue, nil
}
