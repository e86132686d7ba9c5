package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, r *Recorder) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := r.Registry().Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		byName[mf.GetName()] = mf
	}
	return byName
}

func TestRecorderCounts(t *testing.T) {
	families := 3
	r := NewRecorder(func() int { return families })

	r.SpeciesCreated(nil)
	r.SpeciesCreated(nil)
	r.ReactionCreated(nil)
	r.EventExecuted("create", 0)
	r.EventExecuted("reaction", 0.25)
	r.EventExecuted("reaction", 1.5)

	mfs := gather(t, r)
	assert.Equal(t, 2.0, mfs["plexsim_species_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, mfs["plexsim_reactions_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.5, mfs["plexsim_sim_time_seconds"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 3.0, mfs["plexsim_families"].GetMetric()[0].GetGauge().GetValue())

	byKind := map[string]float64{}
	for _, m := range mfs["plexsim_events_total"].GetMetric() {
		byKind[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"create": 1, "reaction": 2}, byKind)

	families = 7
	assert.Equal(t, 7.0, gather(t, r)["plexsim_families"].GetMetric()[0].GetGauge().GetValue())
}

func TestRecorderWithoutFamilies(t *testing.T) {
	mfs := gather(t, NewRecorder(nil))
	assert.NotContains(t, mfs, "plexsim_families")
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder(nil)
	r.EventExecuted("stop", 10)

	path := filepath.Join(t.TempDir(), "textfile", "plexsim.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `plexsim_events_total{kind="stop"} 1`)
	assert.Contains(t, string(data), "plexsim_sim_time_seconds 10")
}

func TestHandler(t *testing.T) {
	r := NewRecorder(nil)
	r.ReactionCreated(nil)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "plexsim_reactions_total 1")
}
