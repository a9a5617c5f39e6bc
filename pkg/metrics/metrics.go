// Package metrics exposes engine counters and gauges through a private
// prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all engine collectors. A nil *Registry disables collection.
type Registry struct {
	registry *prometheus.Registry

	// Counters.
	PutsTotal        prometheus.Counter
	GetsTotal        prometheus.Counter
	DelsTotal        prometheus.Counter
	RangesTotal      prometheus.Counter
	ReadMissesTotal  prometheus.Counter
	FlushesTotal     prometheus.Counter
	CompactionsTotal prometheus.Counter

	// Gauges.
	MemBufferSizeBytes prometheus.Gauge
	RunsTotal          prometheus.Gauge

	// Histograms.
	CompactionDuration prometheus.Histogram
}

// New instantiates a Registry with all engine collectors registered.
func New() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.PutsTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsmkv_puts_total",
		Help: "Total number of accepted put operations",
	})
	r.GetsTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsmkv_gets_total",
		Help: "Total number of get operations",
	})
	r.DelsTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsmkv_dels_total",
		Help: "Total number of accepted delete operations",
	})
	r.RangesTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsmkv_ranges_total",
		Help: "Total number of range scans",
	})
	r.ReadMissesTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsmkv_read_misses_total",
		Help: "Total number of get operations that found no live record",
	})
	r.FlushesTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsmkv_flushes_total",
		Help: "Total number of buffer flushes that produced a run",
	})
	r.CompactionsTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsmkv_compactions_total",
		Help: "Total number of completed compactions",
	})

	r.MemBufferSizeBytes = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "lsmkv_membuffer_size_bytes",
		Help: "Charged size of the active memory buffer in bytes",
	})
	r.RunsTotal = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "lsmkv_runs_total",
		Help: "Number of live sorted runs across all levels",
	})

	r.CompactionDuration = promauto.With(r.registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "lsmkv_compaction_duration_seconds",
		Help:    "Duration of synchronous compactions in seconds",
		Buckets: prometheus.DefBuckets,
	})

	return r
}

// Gatherer returns the underlying registry for scraping or testing.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
