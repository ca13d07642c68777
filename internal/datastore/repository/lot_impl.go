package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/errors"
)

// lotRepository implements LotRepository.
type lotRepository struct {
	db *gorm.DB
}

// NewLotRepository creates a new LotRepository.
func NewLotRepository(db *gorm.DB) LotRepository {
	return &lotRepository{db: db}
}

func (r *lotRepository) Create(ctx context.Context, lot *entities.Lot) error {
	if strings.TrimSpace(lot.LotNumber) == "" {
		return ErrInvalidInput
	}
	if lot.ID == "" {
		lot.ID = uuid.NewString()
	}
	err := r.db.WithContext(ctx).Create(lot).Error
	if isDuplicateKey(err) {
		return ErrDuplicateKey
	}
	return err
}

func (r *lotRepository) Get(ctx context.Context, id string) (*entities.Lot, error) {
	var lot entities.Lot
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&lot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *lotRepository) GetByNumber(ctx context.Context, lotNumber string) (*entities.Lot, error) {
	var lot entities.Lot
	err := r.db.WithContext(ctx).Where("lot_number = ?", lotNumber).First(&lot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// isDuplicateKey detects unique violations with or without TranslateError.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry")
}
