// Package metrics exports simulation progress as Prometheus metrics.
//
// A Recorder owns a private registry. It listens to the network for new
// species and reactions and to the simulation for executed events, and can
// be served over HTTP or written to a node-exporter textfile at the end of
// a run.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvandessel/plexsim/internal/network"
)

const namespace = "plexsim"

// Recorder collects simulation metrics.
type Recorder struct {
	registry *prometheus.Registry

	events    *prometheus.CounterVec
	species   prometheus.Counter
	reactions prometheus.Counter
	simTime   prometheus.Gauge
}

// NewRecorder creates a Recorder. families reports the current family
// count when the registry is gathered; nil omits the gauge.
func NewRecorder(families func() int) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Executed simulation events by kind.",
		}, []string{"kind"}),
		species: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "species_total",
			Help:      "Species created in the reaction network.",
		}),
		reactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_total",
			Help:      "Reactions created in the reaction network.",
		}),
		simTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sim_time_seconds",
			Help:      "Simulated time of the last executed event.",
		}),
	}
	r.registry.MustRegister(r.events, r.species, r.reactions, r.simTime)

	if families != nil {
		r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "families",
			Help:      "Families discovered by the recognizer.",
		}, func() float64 { return float64(families()) }))
	}
	return r
}

// Registry returns the private registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// EventExecuted counts an event and advances the time gauge.
func (r *Recorder) EventExecuted(kind string, now float64) {
	r.events.WithLabelValues(kind).Inc()
	r.simTime.Set(now)
}

// SpeciesCreated counts a new species.
func (r *Recorder) SpeciesCreated(*network.Species) { r.species.Inc() }

// ReactionCreated counts a new reaction.
func (r *Recorder) ReactionCreated(*network.Reaction) { r.reactions.Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry to path for the node exporter's
// textfile collector, creating the parent directory if needed.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
