package repository

import "github.com/rxledger/rxledger/internal/errors"

// Sentinel errors for repository operations.
var (
	// ErrInspectionNotFound indicates the requested inspection record does not exist.
	ErrInspectionNotFound = errors.NewStd("inspection not found")

	// ErrLotNotFound indicates the requested lot does not exist.
	ErrLotNotFound = errors.NewStd("lot not found")

	// ErrCacheEntryNotFound indicates no cache entry exists for the fingerprint.
	ErrCacheEntryNotFound = errors.NewStd("cache entry not found")

	// ErrInspectionReviewed indicates a replace was refused because a record
	// has left PENDING.
	ErrInspectionReviewed = errors.NewStd("inspection already reviewed")

	// ErrDuplicateKey indicates a unique constraint violation.
	ErrDuplicateKey = errors.NewStd("duplicate key")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.NewStd("invalid input")
)
