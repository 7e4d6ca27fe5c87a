package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch metrics
var (
	DispatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_runs_total",
			Help: "Total number of campaign dispatch runs by final campaign status",
		},
		[]string{"status"}, // sent, failed, cancelled, rejected
	)

	DispatchRunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_runs_in_flight",
			Help: "Number of dispatch runs currently sending",
		},
	)

	DispatchMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_messages_total",
			Help: "Total number of campaign messages by delivery status",
		},
		[]string{"provider", "status"}, // sent, failed, skipped
	)

	DispatchSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_send_duration_seconds",
			Help:    "Duration of a single transport send",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	DispatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_run_duration_seconds",
			Help:    "Duration of whole dispatch runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
	)
)

// Tracking metrics
var (
	TrackingEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_events_total",
			Help: "Total number of tracking events by type and outcome",
		},
		[]string{"type", "result"}, // recorded, duplicate, rejected
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Archive metrics
var (
	ArchiveWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_writes_total",
			Help: "Total number of rendered message archive writes",
		},
		[]string{"backend", "result"}, // ok, error
	)
)
