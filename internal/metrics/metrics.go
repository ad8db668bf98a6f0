// Package metrics holds the Prometheus collectors of one tracer run. The
// tracer is a batch tool, so metrics are dumped to a textfile at the end of
// the run instead of being scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AIAleph/chaintrace/internal/chain"
)

// Registry owns a private prometheus.Registry and the chaintrace collectors.
type Registry struct {
	registry *prometheus.Registry

	FetchTotal       *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	MalformedTotal   *prometheus.CounterVec
	GraphNodes       *prometheus.GaugeVec
	GraphEdges       prometheus.Gauge
	MixersFlagged    prometheus.Gauge
	ReceiversFlagged prometheus.Gauge
}

// NewRegistry creates a registry with every collector registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.FetchTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaintrace_fetch_total",
			Help: "Transaction history fetches by outcome",
		},
		[]string{"chain", "outcome"}, // ok, empty, error
	)

	r.FetchDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaintrace_fetch_duration_seconds",
			Help:    "Duration of transaction history fetches in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"chain"},
	)

	r.MalformedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaintrace_malformed_records_total",
			Help: "Explorer records skipped because they could not be inserted",
		},
		[]string{"chain"},
	)

	r.GraphNodes = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chaintrace_graph_nodes",
			Help: "Nodes in the built graph",
		},
		[]string{"kind"}, // address, transaction
	)

	r.GraphEdges = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "chaintrace_graph_edges",
			Help: "Directed edges in the built graph",
		},
	)

	r.MixersFlagged = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "chaintrace_mixers_flagged",
			Help: "Addresses matching the mixer heuristic",
		},
	)

	r.ReceiversFlagged = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "chaintrace_terminal_receivers_flagged",
			Help: "Addresses that received funds and never sent any",
		},
	)

	return r
}

// ObserveFetch records one fetch outcome and its duration.
func (r *Registry) ObserveFetch(c chain.Chain, outcome string, elapsed time.Duration) {
	r.FetchTotal.WithLabelValues(c.String(), outcome).Inc()
	r.FetchDuration.WithLabelValues(c.String()).Observe(elapsed.Seconds())
}

// ObserveMalformed counts one skipped record.
func (r *Registry) ObserveMalformed(c chain.Chain) {
	r.MalformedTotal.WithLabelValues(c.String()).Inc()
}

// GraphSize is the part of a graph the gauges report.
type GraphSize interface {
	AddressCount() int
	TransactionCount() int
	EdgeCount() int
}

// RecordGraph sets the graph gauges.
func (r *Registry) RecordGraph(g GraphSize, mixers, receivers int) {
	r.GraphNodes.WithLabelValues("address").Set(float64(g.AddressCount()))
	r.GraphNodes.WithLabelValues("transaction").Set(float64(g.TransactionCount()))
	r.GraphEdges.Set(float64(g.EdgeCount()))
	r.MixersFlagged.Set(float64(mixers))
	r.ReceiversFlagged.Set(float64(receivers))
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }

// WriteTextfile writes every metric to path in the text exposition format.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
