package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RecordingMetrics counts submission outcomes.
type RecordingMetrics struct {
	registry *prometheus.Registry

	outcomesTotal  *prometheus.CounterVec
	submitDuration *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
}

// NewRecordingMetrics creates and registers recording metrics.
func NewRecordingMetrics(registry *prometheus.Registry) (*RecordingMetrics, error) {
	m := &RecordingMetrics{registry: registry}

	m.outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recording_outcomes_total",
			Help: "Total number of submissions by outcome kind",
		},
		[]string{"op", "kind"}, // kind: no_detections, already_verified, recorded, recording_failed
	)
	m.submitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recording_submit_duration_seconds",
			Help:    "End to end duration of a submission",
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount12),
		},
		[]string{"op"},
	)
	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recording_errors_total",
			Help: "Total number of hard submission failures and local inconsistencies",
		},
		[]string{"op", "error_type"},
	)

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *RecordingMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.outcomesTotal.Describe(ch)
	m.submitDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *RecordingMetrics) Collect(ch chan<- prometheus.Metric) {
	m.outcomesTotal.Collect(ch)
	m.submitDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
}

// RecordOperation implements Recorder; status is the outcome kind.
func (m *RecordingMetrics) RecordOperation(operation, status string) {
	m.outcomesTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *RecordingMetrics) RecordDuration(operation string, seconds float64) {
	m.submitDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *RecordingMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}
