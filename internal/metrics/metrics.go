// Package metrics defines the Prometheus collectors reported by enrichment runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"
)

var (
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildfire_rows_total",
			Help: "Rows written per dataset",
		},
		[]string{"dataset"},
	)

	MatchedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildfire_matched_rows_total",
			Help: "Enriched rows that intersected at least one ownership polygon",
		},
		[]string{"dataset"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wildfire_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 0.01s to ~82s
		},
		[]string{"stage"},
	)

	RunSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wildfire_run_success",
			Help: "1 if the last run completed, 0 if it failed",
		},
	)

	RegistrationWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wildfire_registration_warnings_total",
			Help: "Layer registrations that failed after a successful export",
		},
	)

	// Layer server
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildfire_http_requests_total",
			Help: "Layer server requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wildfire_http_request_duration_seconds",
			Help:    "Duration of layer server requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// WriteTextfile writes every registered collector to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return eris.Wrapf(prometheus.WriteToTextfile(path, prometheus.DefaultGatherer), "metrics: write %s", path)
}
