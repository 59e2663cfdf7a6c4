// Package metrics exposes Prometheus counters/histograms for the ingestion
// pipeline, adapted from the teacher's internal/metrics/metrics.go: same
// promauto-registered CounterVec/HistogramVec pattern, repointed at file
// outcomes, phase durations, and publish counts instead of API call stats.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilesProcessed counts completed attempts by terminal outcome category
	// (spec.md §9's OutcomeCategory values).
	FilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_files_processed_total",
			Help: "Total files processed by outcome category",
		},
		[]string{"outcome"},
	)

	// PhaseDuration tracks wall time spent in each pipeline phase
	// (spec.md §4.11's phase columns).
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_phase_duration_seconds",
			Help:    "Pipeline phase duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"phase"},
	)

	// ValidationErrors counts rejected records by source and error kind
	// (spec.md §4.4).
	ValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_validation_errors_total",
			Help: "Total rejected records by source and validation error kind",
		},
		[]string{"source", "kind"},
	)

	// PublishRows tracks merge insert/update row counts (spec.md §4.7).
	PublishRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_publish_rows_total",
			Help: "Total rows inserted/updated by the merge step",
		},
		[]string{"source", "operation"},
	)

	// RecordsRead counts raw rows decoded from source files (spec.md §4.3).
	RecordsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_records_read_total",
			Help: "Total raw records decoded from source files",
		},
		[]string{"source"},
	)
)

// RecordOutcome increments the outcome counter.
func RecordOutcome(outcome string) {
	FilesProcessed.WithLabelValues(outcome).Inc()
}

// RecordPhaseDuration observes a phase's duration in seconds.
func RecordPhaseDuration(phase string, seconds float64) {
	PhaseDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordValidationError increments the rejected-record counter for a
// source/kind pair.
func RecordValidationError(source, kind string) {
	ValidationErrors.WithLabelValues(source, kind).Inc()
}

// RecordPublish increments the insert/update row counters for a source.
func RecordPublish(source string, inserts, updates int64) {
	PublishRows.WithLabelValues(source, "insert").Add(float64(inserts))
	PublishRows.WithLabelValues(source, "update").Add(float64(updates))
}

// RecordRead increments the raw-records-read counter for a source.
func RecordRead(source string, n int) {
	RecordsRead.WithLabelValues(source).Add(float64(n))
}
