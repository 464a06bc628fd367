// Package metrics defines the Prometheus collectors used by bloom-index and
// exposes them for scraping or as a node-exporter textfile.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. Each instance owns its registry, so tests and
// repeated CLI invocations never collide on registration.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        prometheus.Histogram
	SearchResultsCount   prometheus.Histogram
	DocsIndexedTotal     prometheus.Counter
	FilesSkippedTotal    *prometheus.CounterVec
	BuildDuration        prometheus.Histogram
	DumpBytes            *prometheus.GaugeVec
	DumpOperationsTotal  *prometheus.CounterVec
	StoreDocuments       prometheus.Gauge
	StoreFill            prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bloom_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bloom_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bloom_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bloom_search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bloom_search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bloom_search_results_count",
				Help:    "Number of candidate documents returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000},
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bloom_documents_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		FilesSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bloom_files_skipped_total",
				Help: "Files left out of a build, by reason.",
			},
			[]string{"reason"},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bloom_build_duration_seconds",
				Help:    "Time spent walking and indexing a source tree.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		DumpBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bloom_dump_bytes",
				Help: "Size of the last dump read or written, by operation.",
			},
			[]string{"operation"},
		),
		DumpOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bloom_dump_operations_total",
				Help: "Dump loads and saves by operation and status.",
			},
			[]string{"operation", "status"},
		),
		StoreDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bloom_store_documents",
				Help: "Number of documents in the active store.",
			},
		),
		StoreFill: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bloom_store_avg_fill_ratio",
				Help: "Average fraction of set bits across document filters.",
			},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.DocsIndexedTotal,
		m.FilesSkippedTotal,
		m.BuildDuration,
		m.DumpBytes,
		m.DumpOperationsTotal,
		m.StoreDocuments,
		m.StoreFill,
	)

	return m
}

// Handler returns the scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// WriteTextfile writes the registry in Prometheus text format, replacing
// path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
