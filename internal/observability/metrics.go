package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// hazard pipeline.
type Metrics struct {
	RecordsRead      *prometheus.CounterVec // labels: source
	RecordsRejected  *prometheus.CounterVec // labels: stage={read,normalize,resolve}
	RecordsCommitted prometheus.Counter
	RecordsMerged    prometheus.Counter
	RunsTotal        *prometheus.CounterVec // labels: outcome={success,failure}
	RunDuration      prometheus.Histogram
	LastRunSuccess   prometheus.Gauge
	PipelineRunning  prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={forward,reverse}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={forward,reverse}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={forward,reverse}
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RecordsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_etl",
			Name:      "records_read_total",
			Help:      "Raw rows read per source.",
		}, []string{"source"}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_etl",
			Name:      "records_rejected_total",
			Help:      "Per-record rejections by pipeline stage.",
		}, []string{"stage"}),
		RecordsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_etl",
			Name:      "records_committed_total",
			Help:      "Canonical records written to the store.",
		}),
		RecordsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_etl",
			Name:      "records_merged_total",
			Help:      "Duplicate reports folded into existing records.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_etl",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hazard_etl",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete pipeline run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hazard_etl",
			Name:      "last_run_success",
			Help:      "1 when the most recent run succeeded, 0 otherwise.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hazard_etl",
			Name:      "pipeline_running",
			Help:      "1 while a run is in flight, 0 otherwise.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_etl",
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_etl",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hazard_etl",
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hazard_etl",
			Name:      "geocode_enabled",
			Help:      "1 when geocoding enrichment is enabled, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.RecordsRead,
		m.RecordsRejected,
		m.RecordsCommitted,
		m.RecordsMerged,
		m.RunsTotal,
		m.RunDuration,
		m.LastRunSuccess,
		m.PipelineRunning,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RecordsRead:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hazard_etl", Name: "records_read_total"}, []string{"source"}),
		RecordsRejected:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hazard_etl", Name: "records_rejected_total"}, []string{"stage"}),
		RecordsCommitted:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "hazard_etl", Name: "records_committed_total"}),
		RecordsMerged:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "hazard_etl", Name: "records_merged_total"}),
		RunsTotal:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hazard_etl", Name: "runs_total"}, []string{"outcome"}),
		RunDuration:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "hazard_etl", Name: "run_duration_seconds"}),
		LastRunSuccess:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "hazard_etl", Name: "last_run_success"}),
		PipelineRunning:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "hazard_etl", Name: "pipeline_running"}),
		GeocodeRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hazard_etl", Name: "geocode_requests_total"}, []string{"method", "outcome"}),
		GeocodeCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hazard_etl", Name: "geocode_cache_total"}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "hazard_etl", Name: "geocode_api_duration_seconds"}, []string{"method"}),
		GeocodeEnabled:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "hazard_etl", Name: "geocode_enabled"}),
	}
}
