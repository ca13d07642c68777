package recording

import (
	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/fingerprint"
	"github.com/rxledger/rxledger/internal/ledger"
)

// Kind classifies a submission outcome.
type Kind string

const (
	// KindNoDetections: the detector found nothing; nothing was stored.
	KindNoDetections Kind = "no_detections"
	// KindAlreadyVerified: the fingerprint is already on the ledger.
	KindAlreadyVerified Kind = "already_verified"
	// KindRecorded: a new ledger record exists for the fingerprint.
	KindRecorded Kind = "recorded"
	// KindRecordingFailed: inspections are stored but the ledger write failed.
	KindRecordingFailed Kind = "recording_failed"
)

func (k Kind) String() string { return string(k) }

// Outcome is the result of one Submit.
type Outcome struct {
	Kind        Kind
	Fingerprint fingerprint.Fingerprint // empty for KindNoDetections
	Record      *ledger.Record          // set for AlreadyVerified and Recorded
	FromCache   bool                    // AlreadyVerified answered by the cache
	Detections  []detection.Detection
	Inspections []entities.InspectionRecord // stored rows; empty when the dedup check hit

	// Reason is the ledger failure for RecordingFailed. For Recorded it is
	// non-nil only when the local cache could not be updated, and then wraps
	// ErrLocalInconsistency.
	Reason error
}

// Inconsistent reports whether the outcome needs operator attention.
func (o *Outcome) Inconsistent() bool {
	return o.Kind == KindRecorded && o.Reason != nil
}
