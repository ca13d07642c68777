package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/errors"
)

// inspectionRepository implements InspectionRepository.
type inspectionRepository struct {
	db *gorm.DB
}

// NewInspectionRepository creates a new InspectionRepository.
func NewInspectionRepository(db *gorm.DB) InspectionRepository {
	return &inspectionRepository{db: db}
}

func (r *inspectionRepository) CreateBatch(ctx context.Context, records []*entities.InspectionRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.Status == "" {
			rec.Status = entities.StatusPending
		}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(records).Error
	})
}

func (r *inspectionRepository) Get(ctx context.Context, id string) (*entities.InspectionRecord, error) {
	var rec entities.InspectionRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInspectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *inspectionRepository) ListByFingerprint(ctx context.Context, fingerprint string) ([]entities.InspectionRecord, error) {
	var recs []entities.InspectionRecord
	err := r.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Order("position ASC").
		Find(&recs).Error
	return recs, err
}

func (r *inspectionRepository) ReplacePending(ctx context.Context, fingerprint string, records []*entities.InspectionRecord) error {
	for _, rec := range records {
		if rec.Fingerprint != fingerprint {
			return ErrInvalidInput
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.Status == "" {
			rec.Status = entities.StatusPending
		}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reviewed int64
		if err := tx.Model(&entities.InspectionRecord{}).
			Where("fingerprint = ? AND status <> ?", fingerprint, entities.StatusPending).
			Count(&reviewed).Error; err != nil {
			return err
		}
		if reviewed > 0 {
			return ErrInspectionReviewed
		}
		if err := tx.Where("fingerprint = ?", fingerprint).
			Delete(&entities.InspectionRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Create(records).Error
	})
}

func (r *inspectionRepository) TransitionStatus(ctx context.Context, id string, from, to entities.ReviewStatus) (int64, error) {
	result := r.db.WithContext(ctx).Model(&entities.InspectionRecord{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return result.RowsAffected, result.Error
}

func (r *inspectionRepository) SetLot(ctx context.Context, id string, lotID *string) error {
	result := r.db.WithContext(ctx).Model(&entities.InspectionRecord{}).
		Where("id = ?", id).
		Update("lot_id", lotID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// SQLite and MySQL report 0 for an unchanged value, so check existence
		var count int64
		if err := r.db.WithContext(ctx).Model(&entities.InspectionRecord{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrInspectionNotFound
		}
	}
	return nil
}

func (r *inspectionRepository) FillMissing(ctx context.Context, fingerprint string, lotID, submittedBy *string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lotID != nil {
			if err := tx.Model(&entities.InspectionRecord{}).
				Where("fingerprint = ? AND lot_id IS NULL", fingerprint).
				Update("lot_id", *lotID).Error; err != nil {
				return err
			}
		}
		if submittedBy != nil {
			if err := tx.Model(&entities.InspectionRecord{}).
				Where("fingerprint = ? AND submitted_by IS NULL", fingerprint).
				Update("submitted_by", *submittedBy).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *inspectionRepository) ListByStatus(ctx context.Context, status entities.ReviewStatus) ([]entities.InspectionRecord, error) {
	var recs []entities.InspectionRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, position ASC").
		Find(&recs).Error
	return recs, err
}

func (r *inspectionRepository) ListUnlinked(ctx context.Context) ([]entities.InspectionRecord, error) {
	var recs []entities.InspectionRecord
	err := r.db.WithContext(ctx).
		Where("lot_id IS NULL").
		Order("created_at ASC, position ASC").
		Find(&recs).Error
	return recs, err
}

func (r *inspectionRepository) ListByLot(ctx context.Context, lotID string, status *entities.ReviewStatus) ([]entities.InspectionRecord, error) {
	q := r.db.WithContext(ctx).Where("lot_id = ?", lotID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var recs []entities.InspectionRecord
	err := q.Order("created_at ASC, position ASC").Find(&recs).Error
	return recs, err
}
