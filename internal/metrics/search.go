package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search, stream and job Prometheus metrics.
var (
	BackendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Search backend request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"op", "outcome"}, // outcome: ok, invalid_query, failure
	)

	StreamEntitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_entities_total",
			Help:      "Entities written to streamed responses",
		},
		[]string{"format"},
	)

	StreamAbortsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_aborts_total",
			Help:      "Streamed responses aborted mid-write",
		},
		[]string{"format"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Async jobs by terminal status (or rejected)",
		},
		[]string{"status"},
	)

	JobQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Jobs waiting for a worker",
		},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers search, stream and job metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(BackendRequestDuration)
	prometheus.MustRegister(StreamEntitiesTotal)
	prometheus.MustRegister(StreamAbortsTotal)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobQueueDepth)
	searchMetricsRegistered = true
}
