package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics contains Prometheus metrics for ledger contract calls.
type LedgerMetrics struct {
	registry *prometheus.Registry

	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
	gasLimitGauge prometheus.Gauge
}

// NewLedgerMetrics creates and registers ledger metrics.
func NewLedgerMetrics(registry *prometheus.Registry) (*LedgerMetrics, error) {
	m := &LedgerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *LedgerMetrics) initMetrics() {
	m.callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_calls_total",
			Help: "Total number of ledger contract calls",
		},
		[]string{"op", "status"}, // op: lookup, append, count, get_by_index, list_all, health
	)

	// appends wait for mining, so buckets go up to ~200s
	m.callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_call_duration_seconds",
			Help:    "Time taken for ledger contract calls",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12+2),
		},
		[]string{"op"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_errors_total",
			Help: "Total number of ledger call failures by kind",
		},
		[]string{"op", "error_type"}, // error_type: unavailable, rejected, timeout, not_found
	)

	m.gasLimitGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_last_gas_limit",
		Help: "Gas limit used for the most recent append transaction",
	})
}

// Describe implements the Collector interface
func (m *LedgerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.callsTotal.Describe(ch)
	m.callDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
	m.gasLimitGauge.Describe(ch)
}

// Collect implements the Collector interface
func (m *LedgerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.callsTotal.Collect(ch)
	m.callDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
	m.gasLimitGauge.Collect(ch)
}

// RecordOperation implements Recorder.
func (m *LedgerMetrics) RecordOperation(operation, status string) {
	m.callsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *LedgerMetrics) RecordDuration(operation string, seconds float64) {
	m.callDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *LedgerMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetGasLimit records the gas limit of the latest append.
func (m *LedgerMetrics) SetGasLimit(limit uint64) {
	m.gasLimitGauge.Set(float64(limit))
}
