package repository

import (
	"context"

	"github.com/rxledger/rxledger/internal/datastore/entities"
)

// InspectionRepository handles inspection record persistence.
type InspectionRepository interface {
	// CreateBatch inserts all records in one transaction. IDs are assigned
	// when empty and Status defaults to PENDING.
	CreateBatch(ctx context.Context, records []*entities.InspectionRecord) error
	Get(ctx context.Context, id string) (*entities.InspectionRecord, error)
	// ListByFingerprint returns the records of one submission ordered by position.
	ListByFingerprint(ctx context.Context, fingerprint string) ([]entities.InspectionRecord, error)
	// ReplacePending deletes the fingerprint's records and inserts records in
	// one transaction. It fails with ErrInspectionReviewed, changing nothing,
	// when any existing record is no longer PENDING.
	ReplacePending(ctx context.Context, fingerprint string, records []*entities.InspectionRecord) error

	// TransitionStatus sets status to `to` only where it currently equals
	// `from` and returns the number of rows changed.
	TransitionStatus(ctx context.Context, id string, from, to entities.ReviewStatus) (int64, error)
	// SetLot sets or clears the lot reference. A nil lotID unlinks.
	SetLot(ctx context.Context, id string, lotID *string) error
	// FillMissing applies lotID and submittedBy to the fingerprint's rows
	// only where the respective column is still NULL.
	FillMissing(ctx context.Context, fingerprint string, lotID, submittedBy *string) error

	ListByStatus(ctx context.Context, status entities.ReviewStatus) ([]entities.InspectionRecord, error)
	ListUnlinked(ctx context.Context) ([]entities.InspectionRecord, error)
	// ListByLot returns the lot's records, optionally filtered to one status.
	ListByLot(ctx context.Context, lotID string, status *entities.ReviewStatus) ([]entities.InspectionRecord, error)
}
