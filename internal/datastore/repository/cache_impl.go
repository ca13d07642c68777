package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/errors"
)

// cacheRepository implements CacheRepository.
type cacheRepository struct {
	db *gorm.DB
}

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(db *gorm.DB) CacheRepository {
	return &cacheRepository{db: db}
}

func (r *cacheRepository) Get(ctx context.Context, fingerprint string) (*entities.CacheEntry, error) {
	var entry entities.CacheEntry
	err := r.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCacheEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *cacheRepository) Upsert(ctx context.Context, entry *entities.CacheEntry) error {
	if entry.Fingerprint == "" {
		return errors.NewStd("cache entry fingerprint must be set before saving")
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			UpdateAll: true,
		}).
		Create(entry).Error
}

func (r *cacheRepository) Delete(ctx context.Context, fingerprint string) error {
	return r.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Delete(&entities.CacheEntry{}).Error
}

func (r *cacheRepository) Clear(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&entities.CacheEntry{})
	return result.RowsAffected, result.Error
}

func (r *cacheRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.CacheEntry{}).Count(&count).Error
	return count, err
}
