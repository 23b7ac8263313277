// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProfileActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_profile_actions_total",
			Help: "Total number of export form actions",
		},
		[]string{"action"},
	)

	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grade_exports_total",
			Help: "Total number of grade exports by file format",
		},
		[]string{"format"},
	)

	ExportSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grade_export_size_bytes",
			Help:    "Size of generated export files",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"format"},
	)

	ScheduledExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_exports_total",
			Help: "Total number of scheduled export runs",
		},
		[]string{"job", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
