package sim

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/plexsim/internal/constants"
	"github.com/nvandessel/plexsim/internal/dump"
	"github.com/nvandessel/plexsim/internal/fault"
	"github.com/nvandessel/plexsim/internal/modelfile"
	"github.com/nvandessel/plexsim/internal/network"
)

// unitVolume makes N_A·V equal to one so binary propensities read as k·n₁·n₂.
const unitVolume = 1 / constants.Avogadro

const dimerModel = `
name: dimer
settings:
  depth: 1
  volume: 1.6605390671738466e-24
mols:
  - name: A
    weight: 100
    binding_sites:
      - {name: x, shapes: [free, bound]}
  - name: B
    weight: 50
    binding_sites:
      - {name: x, shapes: [free, bound]}
rules:
  - name: bind
    type: dimer
    rate: 1.0
    left: {mol: A, site: x, allowed: [free], bound: bound}
    right: {mol: B, site: x, bound: bound}
species:
  - {name: A, complex: {mols: [A]}, population: 10}
  - {name: B, complex: {mols: [B]}, population: 10}
`

const unbindRule = `
  - name: unbind
    type: decomp
    rate: 1.0
    left: {mol: A, site: x, unbound: free}
    right: {mol: B, site: x, unbound: free}
`

func load(t *testing.T, src string, opts ModelOptions) *Simulation {
	t.Helper()
	doc, err := modelfile.Parse([]byte(src))
	require.NoError(t, err)
	m, err := modelfile.Resolve(doc)
	require.NoError(t, err)
	s, err := FromModel(m, opts.WithSettings(m.Settings))
	require.NoError(t, err)
	return s
}

func withStop(stop float64) ModelOptions {
	return ModelOptions{Options: Options{StopTime: stop, Seed: 1}}
}

func speciesNamed(t *testing.T, s *Simulation, name string) *network.Species {
	t.Helper()
	for _, sp := range s.Store().AllSpecies() {
		if sp.Name() == name {
			return sp
		}
	}
	t.Fatalf("no species named %s", name)
	return nil
}

func TestDimerScenarioRunsToCompletion(t *testing.T) {
	s := load(t, dimerModel, withStop(1000))

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 1000.0, s.Now())

	store := s.Store()
	assert.Len(t, store.Recognizer().Families(), 3, "A, B and the A-B dimer")
	assert.Equal(t, 1, store.ReactionCount())
	assert.Equal(t, 3, store.SpeciesCount())

	ab := speciesNamed(t, s, "A(x=bound)-B(x=bound)")
	assert.EqualValues(t, 10, ab.Population)
	assert.EqualValues(t, 10, s.ReactionCount())
	assert.EqualValues(t, 0, speciesNamed(t, s, "A").Population)
	assert.EqualValues(t, 0, speciesNamed(t, s, "B").Population)
}

func TestReversibleBindingConservesMols(t *testing.T) {
	src := strings.Replace(dimerModel, "species:", strings.TrimPrefix(unbindRule, "\n")+"species:", 1)
	s := load(t, src, withStop(5))

	require.NoError(t, s.Run(context.Background()))

	a := speciesNamed(t, s, "A")
	b := speciesNamed(t, s, "B")
	ab := speciesNamed(t, s, "A(x=bound)-B(x=bound)")
	assert.EqualValues(t, 10, a.Population+ab.Population)
	assert.EqualValues(t, 10, b.Population+ab.Population)
	assert.Equal(t, 2, s.Store().ReactionCount())
	assert.Greater(t, s.ReactionCount(), int64(10), "binding and unbinding keep firing")
}

func TestSameSeedSameTrajectory(t *testing.T) {
	src := strings.Replace(dimerModel, "species:", strings.TrimPrefix(unbindRule, "\n")+"species:", 1)
	a := load(t, src, withStop(2))
	b := load(t, src, withStop(2))

	require.NoError(t, a.Run(context.Background()))
	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, a.ReactionCount(), b.ReactionCount())
	assert.Equal(t, a.Snapshot(), b.Snapshot())
}

func TestPropensity(t *testing.T) {
	// Stop long before the first firing is likely, with reactions in place.
	s := load(t, dimerModel, withStop(1e-9))
	require.NoError(t, s.Run(context.Background()))
	require.Zero(t, s.ReactionCount())

	r := s.Store().Reaction(0)
	assert.InEpsilon(t, 100.0, s.Propensity(r), 1e-9, "k·10·10/(N_A·V)")

	require.NoError(t, s.SetVolume(2*unitVolume))
	assert.InEpsilon(t, 50.0, s.Propensity(r), 1e-9)

	require.NoError(t, s.SetReactionRate(r.ID, 3))
	assert.InEpsilon(t, 150.0, s.Propensity(r), 1e-9)
	assert.Error(t, s.SetReactionRate(r.ID, -1))
	assert.Error(t, s.SetVolume(0))
}

func TestHomodimerPropensityUsesFallingFactorial(t *testing.T) {
	src := `
settings: {depth: 1, volume: 1.6605390671738466e-24}
mols:
  - name: H
    binding_sites: [{name: h, shapes: [free, bound]}]
rules:
  - {name: pair, type: dimer, rate: 1, left: {mol: H, site: h}, right: {mol: H, site: h}}
species:
  - {name: H, complex: {mols: [H]}, population: 5}
`
	s := load(t, src, withStop(1e-9))
	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, 1, s.Store().ReactionCount())

	r := s.Store().Reaction(0)
	assert.Equal(t, 2, r.Order())
	assert.InEpsilon(t, 20.0, s.Propensity(r), 1e-9, "k·5·4/(N_A·V)")
}

func TestExhaustedQueueRunsHook(t *testing.T) {
	s := load(t, dimerModel, withStop(0))

	var hooked *Simulation
	s.OnFault(func(_ context.Context, sim *Simulation) error {
		hooked = sim
		return nil
	})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Exhausted))
	assert.Same(t, s, hooked)
	assert.EqualValues(t, 10, speciesNamed(t, s, "A(x=bound)-B(x=bound)").Population)
}

func TestTimeoutRunsHook(t *testing.T) {
	opts := withStop(1000)
	opts.Timeout = time.Minute
	s := load(t, dimerModel, opts)
	s.Scheduler().SetClock(func() time.Time { return time.Now().Add(time.Hour) })

	hooked := false
	s.OnFault(func(context.Context, *Simulation) error {
		hooked = true
		return nil
	})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Timeout))
	assert.True(t, hooked)
}

func TestNoMoreGenerationFreezesNetwork(t *testing.T) {
	src := strings.Replace(dimerModel, "population: 10}", "population: 10, time: 1}", 2) + `
events:
  - {at: 0.5, no_more_generation: true}
`
	s := load(t, src, withStop(10))

	require.NoError(t, s.Run(context.Background()))
	assert.False(t, s.Store().GenerationEnabled())
	assert.Zero(t, s.Store().ReactionCount())
	assert.Equal(t, 2, s.Store().SpeciesCount())
	assert.EqualValues(t, 10, speciesNamed(t, s, "A").Population)
}

func TestVolumeEvents(t *testing.T) {
	src := dimerModel + `
events:
  - {at: 0.5, scale_volume: 4}
  - {at: 0.75, volume: 2e-24}
`
	s := load(t, src, withStop(0.6))
	require.NoError(t, s.Run(context.Background()))
	assert.InEpsilon(t, 4*unitVolume, s.Volume(), 1e-12)

	require.NoError(t, s.Schedule(&StopEvent{}, 1))
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 2e-24, s.Volume())
}

func TestDumpWritesRowsEveryPeriod(t *testing.T) {
	s := load(t, dimerModel, withStop(2))

	var buf bytes.Buffer
	w := dump.NewTSVWriter(&buf)
	_, err := s.AddDump(w, s.Dumpables(), 0.5)
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5, "header and rows at 0, 0.5, 1, 1.5")
	assert.Equal(t, "time\tvolume\treactions\tspecies\tA\tB", lines[0])

	first := strings.Split(lines[1], "\t")
	assert.Equal(t, "0", first[0])
	assert.Equal(t, "0", first[2])
	assert.Equal(t, "3", first[3], "expansion ran before the first row")
	assert.Equal(t, []string{"10", "10"}, first[4:])

	_, err = s.AddDump(dump.NewTSVWriter(&bytes.Buffer{}), s.Dumpables(), 0)
	assert.Error(t, err)
}

func TestModelDumpColumns(t *testing.T) {
	src := dimerModel + `
dump: [time, A, family:B]
`
	s := load(t, src, withStop(1))
	cols := dump.Columns(s.Dumpables())
	assert.Equal(t, []string{"time", "A", "family:B"}, cols)
}

type countingObserver map[string]int

func (c countingObserver) EventExecuted(kind string, _ float64) { c[kind]++ }

func TestObserverSeesEvents(t *testing.T) {
	s := load(t, dimerModel, withStop(1000))
	obs := countingObserver{}
	s.Observe(obs)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 2, obs["create"])
	assert.Equal(t, 10, obs["reaction"])
}

func TestNegativeInjectionIsRejected(t *testing.T) {
	s := load(t, dimerModel, withStop(1))
	sp := s.Store().Species(0)
	assert.Error(t, s.AddSpecies(sp, -1, 0))
}

func TestFromModelUsesOptionsAsGiven(t *testing.T) {
	doc, err := modelfile.Parse([]byte(dimerModel))
	require.NoError(t, err)
	m, err := modelfile.Resolve(doc)
	require.NoError(t, err)

	opts := ModelOptions{Options: Options{StopTime: 1, Volume: 2e-15}, Depth: 3}
	s, err := FromModel(m, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Store().MaxDepth())
	assert.Equal(t, 2e-15, s.Volume())

	merged := opts.WithSettings(m.Settings)
	assert.Equal(t, 1, merged.Depth)
	assert.InEpsilon(t, unitVolume, merged.Volume, 1e-12)
	assert.Equal(t, 1.0, merged.StopTime, "the model sets no stop time")
}

const decayModel = `
mols:
  - {name: X}
  - {name: Y}
species:
  - {name: X, complex: {mols: [X]}, population: 10}
  - {name: Y, complex: {mols: [Y]}}
reactions:
  - name: split
    reactants: [X]
    products: [{species: Y, mult: 2}]
    rate: 1
`

func TestExplicitReactionsFire(t *testing.T) {
	s := load(t, decayModel, withStop(1000))
	require.Equal(t, 1, s.Store().ReactionCount())
	r := s.Store().Reaction(0)
	assert.Equal(t, network.ExplicitGenerator.Name(), r.Generator.Name())
	assert.Equal(t, "split", r.Key)

	require.NoError(t, s.Run(context.Background()))
	assert.EqualValues(t, 10, s.ReactionCount())
	assert.EqualValues(t, 0, speciesNamed(t, s, "X").Population)
	assert.EqualValues(t, 20, speciesNamed(t, s, "Y").Population)
	assert.Equal(t, 2, s.Store().SpeciesCount())
}

func TestNoGenerationOption(t *testing.T) {
	opts := withStop(10)
	opts.NoGeneration = true
	s := load(t, dimerModel, opts)

	require.NoError(t, s.Run(context.Background()))
	assert.False(t, s.Store().GenerationEnabled())
	assert.Zero(t, s.Store().ReactionCount())
	assert.EqualValues(t, 10, speciesNamed(t, s, "A").Population)

	// Explicit reactions are part of the initial network and still fire.
	opts = withStop(1000)
	opts.NoGeneration = true
	s = load(t, decayModel, opts)
	require.NoError(t, s.Run(context.Background()))
	assert.EqualValues(t, 20, speciesNamed(t, s, "Y").Population)
}
