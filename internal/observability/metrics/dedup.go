package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DedupMetrics counts which tier answered each dedup resolution.
type DedupMetrics struct {
	registry *prometheus.Registry

	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	errorsTotal        *prometheus.CounterVec
}

// NewDedupMetrics creates and registers dedup metrics.
func NewDedupMetrics(registry *prometheus.Registry) (*DedupMetrics, error) {
	m := &DedupMetrics{registry: registry}

	m.resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_resolutions_total",
			Help: "Total number of fingerprint resolutions by answering tier",
		},
		[]string{"op", "tier"}, // tier: cache, ledger, miss, error
	)
	m.resolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dedup_resolution_duration_seconds",
			Help:    "Time taken to resolve a fingerprint",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"op"},
	)
	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_errors_total",
			Help: "Total number of failed dedup checks",
		},
		[]string{"op", "error_type"},
	)

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *DedupMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.resolutionsTotal.Describe(ch)
	m.resolutionDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *DedupMetrics) Collect(ch chan<- prometheus.Metric) {
	m.resolutionsTotal.Collect(ch)
	m.resolutionDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
}

// RecordOperation implements Recorder; status is the answering tier.
func (m *DedupMetrics) RecordOperation(operation, status string) {
	m.resolutionsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *DedupMetrics) RecordDuration(operation string, seconds float64) {
	m.resolutionDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *DedupMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}
