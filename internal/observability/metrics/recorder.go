// Package metrics provides the Prometheus collectors for rxledger components.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on this abstraction rather than on concrete collectors.
type Recorder interface {
	// RecordOperation records an operation with its outcome.
	// The operation parameter describes what was performed (e.g., "lookup", "append").
	// The status parameter indicates the outcome (e.g., "success", "error", "cache").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type.
	// The errorType parameter categorizes the error (e.g., "unavailable", "timeout").
	RecordError(operation, errorType string)
}

// LedgerRecorder is a Recorder that also tracks the gas limit of the most
// recent ledger write.
type LedgerRecorder interface {
	Recorder
	SetGasLimit(limit uint64)
}

var (
	_ LedgerRecorder = (*LedgerMetrics)(nil)
	_ LedgerRecorder = (*NoOpRecorder)(nil)
	_ LedgerRecorder = (*TestRecorder)(nil)
)

// NoOpRecorder is a no-op implementation of the Recorder interface.
// It can be used when metrics recording is not needed.
type NoOpRecorder struct{}

// RecordOperation does nothing.
func (n *NoOpRecorder) RecordOperation(operation, status string) {}

// RecordDuration does nothing.
func (n *NoOpRecorder) RecordDuration(operation string, seconds float64) {}

// RecordError does nothing.
func (n *NoOpRecorder) RecordError(operation, errorType string) {}

// SetGasLimit does nothing.
func (n *NoOpRecorder) SetGasLimit(limit uint64) {}

// NewNoOpRecorder creates a new no-op recorder instance.
func NewNoOpRecorder() *NoOpRecorder {
	return &NoOpRecorder{}
}

// OrNoOp returns r, or a NoOpRecorder when r is nil.
func OrNoOp(r Recorder) Recorder {
	if r == nil {
		return NewNoOpRecorder()
	}
	return r
}

// OrNoOpLedger returns r, or a NoOpRecorder when r is nil.
func OrNoOpLedger(r LedgerRecorder) LedgerRecorder {
	if r == nil {
		return NewNoOpRecorder()
	}
	return r
}
