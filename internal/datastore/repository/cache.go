package repository

import (
	"context"

	"github.com/rxledger/rxledger/internal/datastore/entities"
)

// CacheRepository handles the persistent tier of the fingerprint cache.
type CacheRepository interface {
	Get(ctx context.Context, fingerprint string) (*entities.CacheEntry, error)
	// Upsert inserts or replaces the entry for entry.Fingerprint.
	Upsert(ctx context.Context, entry *entities.CacheEntry) error
	Delete(ctx context.Context, fingerprint string) error
	// Clear removes all entries and returns how many were removed.
	Clear(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}
