package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics for Prometheus monitoring.
var (
	RequestsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_enqueued_total",
			Help: "Total number of dispatch requests published",
		},
		[]string{"backend"},
	)

	RequestsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_processed_total",
			Help: "Total number of dispatch requests consumed by outcome",
		},
		[]string{"backend", "result"}, // ok, error, malformed
	)

	RequestProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_request_processing_duration_seconds",
			Help:    "Duration of dispatch request handling",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
	)
)
