package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ReviewMetrics counts review decisions and lot links.
type ReviewMetrics struct {
	registry *prometheus.Registry

	transitionsTotal *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
}

// NewReviewMetrics creates and registers review metrics.
func NewReviewMetrics(registry *prometheus.Registry) (*ReviewMetrics, error) {
	m := &ReviewMetrics{registry: registry}

	m.transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_transitions_total",
			Help: "Total number of review actions by result",
		},
		[]string{"action", "result"}, // action: approve, reject, link; result: applied, noop, invalid, not_found, error
	)
	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_errors_total",
			Help: "Total number of failed review operations",
		},
		[]string{"action", "error_type"},
	)

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *ReviewMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.transitionsTotal.Describe(ch)
	m.errorsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *ReviewMetrics) Collect(ch chan<- prometheus.Metric) {
	m.transitionsTotal.Collect(ch)
	m.errorsTotal.Collect(ch)
}

// RecordOperation implements Recorder; operation is the action.
func (m *ReviewMetrics) RecordOperation(operation, status string) {
	m.transitionsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder. Review updates are single-row and not timed.
func (m *ReviewMetrics) RecordDuration(string, float64) {}

// RecordError implements Recorder.
func (m *ReviewMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}
