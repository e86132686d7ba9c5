package sim

import (
	"fmt"

	"github.com/nvandessel/plexsim/internal/constants"
	"github.com/nvandessel/plexsim/internal/dump"
	"github.com/nvandessel/plexsim/internal/modelfile"
	"github.com/nvandessel/plexsim/internal/network"
	"github.com/nvandessel/plexsim/internal/rules"
	"github.com/nvandessel/plexsim/internal/sched"
)

// ModelOptions add the expansion settings to Options.
type ModelOptions struct {
	Options
	Depth        int
	Extrapolator rules.Extrapolator
	// NoGeneration freezes the network once the initial species and
	// explicit reactions are in place.
	NoGeneration bool
}

// WithSettings returns o with the model's own settings applied over it.
func (o ModelOptions) WithSettings(s modelfile.Settings) ModelOptions {
	if s.Depth != nil {
		o.Depth = *s.Depth
	}
	if s.Volume != nil {
		o.Volume = *s.Volume
	}
	if s.StopTime != nil {
		o.StopTime = *s.StopTime
	}
	if s.Extrapolator != nil {
		o.Extrapolator = s.Extrapolator
	}
	return o
}

// FromModel builds a simulation from a resolved model: it creates the
// network and rule engine, interns the explicit reactions, schedules the
// initial species and the model's timed events, and records the model's
// dump columns. opts are used as given; callers that want the model's
// settings apply them with WithSettings first.
func FromModel(m *modelfile.Model, opts ModelOptions) (*Simulation, error) {
	if opts.Depth < 0 || opts.Depth > constants.MaxDepth {
		return nil, fmt.Errorf("depth %d is outside [0, %d]", opts.Depth, constants.MaxDepth)
	}

	store := network.NewStore(m.States, network.Options{
		MaxDepth: opts.Depth,
		Logger:   opts.Logger,
		Trace:    opts.Trace,
	})
	engine := rules.NewEngine(store, rules.Options{
		Extrapolator: opts.Extrapolator,
		Logger:       opts.Logger,
		Trace:        opts.Trace,
	})
	for _, r := range m.Rules {
		if err := engine.Add(r); err != nil {
			return nil, err
		}
	}

	s, err := New(engine, opts.Options)
	if err != nil {
		return nil, err
	}

	species := make([]*network.Species, len(m.Species))
	for i, d := range m.Species {
		sp, _, err := store.InternComplex(d.Complex)
		if err != nil {
			return nil, fmt.Errorf("species %q: %w", d.Name, err)
		}
		species[i] = sp
	}

	terms := func(ts []modelfile.TermDef) []network.Term {
		out := make([]network.Term, len(ts))
		for i, t := range ts {
			out[i] = network.Term{Species: species[t.Species].ID, Mult: t.Mult}
		}
		return out
	}
	for _, d := range m.Reactions {
		if _, err := store.AddExplicitReaction(d.Name, terms(d.Reactants), terms(d.Products), d.Rate); err != nil {
			return nil, err
		}
	}
	if opts.NoGeneration {
		store.SetGenerationEnabled(false)
	}

	for i, d := range m.Species {
		sp := species[i]
		column := d.Name
		if column == "" {
			column = sp.Name()
		}
		if err := s.addSpecies(sp, column, d.Population, d.Time); err != nil {
			return nil, err
		}
	}

	for _, d := range m.Events {
		var e sched.Event
		switch d.Kind {
		case modelfile.SetVolume:
			e = s.NewVolumeEvent(d.Value, false)
		case modelfile.ScaleVolume:
			e = s.NewVolumeEvent(d.Value, true)
		case modelfile.Stop:
			e = &StopEvent{}
		case modelfile.NoMoreGeneration:
			e = s.NewNoMoreGenerationEvent()
		default:
			return nil, fmt.Errorf("unknown event kind %v", d.Kind)
		}
		if err := s.Schedule(e, d.Time); err != nil {
			return nil, err
		}
	}

	if len(m.Dump) > 0 {
		ds := make([]dump.Dumpable, len(m.Dump))
		for i, d := range m.Dump {
			ds[i] = dump.Dumpable{Kind: d.Kind}
			if d.Species >= 0 {
				sp := species[d.Species]
				name := m.Species[d.Species].Name
				switch d.Kind {
				case dump.SpeciesPop:
					ds[i].Species = sp.ID
					ds[i].Name = name
				case dump.FamilyPop:
					ds[i].Family = sp.Family.ID
					ds[i].Name = "family:" + name
				}
			}
		}
		s.dumpables = ds
	}
	return s, nil
}
