package repository

import (
	"context"

	"github.com/rxledger/rxledger/internal/datastore/entities"
)

// LotRepository handles supply-chain lot lookups.
type LotRepository interface {
	// Create inserts a lot, assigning an ID when empty.
	// Returns ErrDuplicateKey when the lot number is taken.
	Create(ctx context.Context, lot *entities.Lot) error
	Get(ctx context.Context, id string) (*entities.Lot, error)
	GetByNumber(ctx context.Context, lotNumber string) (*entities.Lot, error)
}
