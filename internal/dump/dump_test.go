package dump

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/plexsim/internal/chem"
	"github.com/nvandessel/plexsim/internal/constants"
	"github.com/nvandessel/plexsim/internal/network"
	"github.com/nvandessel/plexsim/internal/plex"
)

type fakeSource struct {
	now, volume float64
	fired       int64
	store       *network.Store
}

func (f *fakeSource) Now() float64          { return f.now }
func (f *fakeSource) Volume() float64       { return f.volume }
func (f *fakeSource) ReactionCount() int64  { return f.fired }
func (f *fakeSource) Store() *network.Store { return f.store }

func newSource(t *testing.T) (*fakeSource, *network.Species, *network.Species) {
	t.Helper()
	ctx := chem.NewContext()
	site := chem.BindingSite{Name: "x", Shapes: []string{"free", "bound"}}
	a := &chem.Mol{Name: "A", Weight: 10, BindingSites: []chem.BindingSite{site}}
	require.NoError(t, ctx.AddMol(a))

	store := network.NewStore(ctx, network.Options{})
	free, _, err := store.InternComplex(network.Complex{
		Plex: plex.New(a), Params: network.ParamVector{ctx.DefaultState(a)}})
	require.NoError(t, err)
	bound, _, err := store.InternComplex(network.Complex{
		Plex: plex.New(a), Params: network.ParamVector{ctx.DefaultState(a).WithShape(0, 1)}})
	require.NoError(t, err)
	free.Population = 7
	bound.Population = 3
	return &fakeSource{now: 1.5, volume: 2e-15, fired: 12, store: store}, free, bound
}

func TestRowPullsEveryKind(t *testing.T) {
	src, free, bound := newSource(t)
	ds := []Dumpable{
		{Kind: Time},
		{Kind: Volume},
		{Kind: Reactions},
		{Kind: SpeciesCount},
		{Kind: SpeciesPop, Species: bound.ID, Name: "A_bound"},
		{Kind: FamilyPop, Family: free.Family.ID},
		{Kind: SpeciesPop, Species: 99},
	}

	assert.Equal(t, []string{"time", "volume", "reactions", "species", "A_bound", "f0", "s99"}, Columns(ds))
	assert.Equal(t, []float64{1.5, 2e-15, 12, 2, 3, 10, 0}, Row(src, ds))
}

func TestTSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewTSVWriter(&buf)

	require.Error(t, w.WriteRow([]float64{1}), "row before header")
	require.NoError(t, w.WriteHeader([]string{"time", "s0"}))
	require.Error(t, w.WriteHeader([]string{"again"}))
	require.NoError(t, w.WriteRow([]float64{0, 10}))
	require.NoError(t, w.WriteRow([]float64{0.25, 9}))
	require.Error(t, w.WriteRow([]float64{1}))
	require.NoError(t, w.Close())

	assert.Equal(t, "time\ts0\n0\t10\n0.25\t9\n", buf.String())
}

func TestArrowWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), constants.DumpArrow.FileName())
	f, err := os.Create(path)
	require.NoError(t, err)

	w := NewArrowWriter(f, 2)
	require.NoError(t, w.WriteHeader([]string{"time", "s0"}))
	for i := 0; i < 5; i++ {
		require.NoError(t, w.WriteRow([]float64{float64(i) / 10, float64(100 - i)}))
	}
	require.NoError(t, w.Close())

	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()
	r, err := ipc.NewFileReader(in)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 2, r.Schema().NumFields())
	assert.Equal(t, "time", r.Schema().Field(0).Name)
	assert.Equal(t, 3, r.NumRecords(), "two full batches and a remainder")

	var pops []float64
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		require.NoError(t, err)
		col := rec.Column(1).(*array.Float64)
		pops = append(pops, col.Float64Values()...)
	}
	assert.Equal(t, []float64{100, 99, 98, 97, 96}, pops)
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", constants.DumpTSV.FileName())

	w, err := Create(path, constants.DumpTSV)
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader([]string{"time"}))
	require.NoError(t, w.WriteRow([]float64{3}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "time\n3"))

	arrowPath := filepath.Join(dir, constants.DumpArrow.FileName())
	aw, err := Create(arrowPath, constants.DumpArrow)
	require.NoError(t, err)
	require.IsType(t, &ArrowWriter{}, aw)
	require.NoError(t, aw.WriteHeader([]string{"time"}))
	require.NoError(t, aw.WriteRow([]float64{3}))
	require.NoError(t, aw.Close())
	in, err := os.Open(arrowPath)
	require.NoError(t, err)
	defer in.Close()
	r, err := ipc.NewFileReader(in)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 1, r.NumRecords())

	_, err = Create(filepath.Join(dir, "x.csv"), "csv")
	assert.Error(t, err)
}
