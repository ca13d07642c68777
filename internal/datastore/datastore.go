// Package datastore opens the local store and exposes its repositories.
package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rxledger/rxledger/internal/conf"
	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/datastore/repository"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/logger"
)

const (
	slowQueryThreshold = 200 * time.Millisecond

	backendSQLite = "sqlite"
	backendMySQL  = "mysql"
)

// DB is an open, migrated local store.
type DB struct {
	gorm    *gorm.DB
	backend string
	log     logger.Logger

	inspections repository.InspectionRepository
	cache       repository.CacheRepository
	lots        repository.LotRepository
}

// Open connects to the configured backend and migrates all tables.
func Open(settings conf.DatabaseSettings, log logger.Logger) (*DB, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	gcfg := &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(log, slowQueryThreshold),
		TranslateError: true,
	}

	backend := strings.ToLower(settings.Type)
	var (
		db  *gorm.DB
		err error
	)
	switch backend {
	case "", backendSQLite:
		backend = backendSQLite
		db, err = openSQLite(settings.SQLite, gcfg)
	case backendMySQL:
		db, err = openMySQL(settings.MySQL, gcfg)
	default:
		return nil, errors.Newf("unsupported database type %q", settings.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("backend", backend).
			Build()
	}

	if err := db.AutoMigrate(entities.All()...); err != nil {
		closeGorm(db)
		return nil, errors.New(fmt.Errorf("auto-migrate: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("backend", backend).
			Build()
	}

	log.Info("database opened", logger.String("backend", backend))
	return newDB(db, backend, log), nil
}

func newDB(db *gorm.DB, backend string, log logger.Logger) *DB {
	return &DB{
		gorm:        db,
		backend:     backend,
		log:         log,
		inspections: repository.NewInspectionRepository(db),
		cache:       repository.NewCacheRepository(db),
		lots:        repository.NewLotRepository(db),
	}
}

// Inspections returns the inspection record repository.
func (d *DB) Inspections() repository.InspectionRepository { return d.inspections }

// Cache returns the persistent fingerprint cache repository.
func (d *DB) Cache() repository.CacheRepository { return d.cache }

// Lots returns the lot repository.
func (d *DB) Lots() repository.LotRepository { return d.lots }

// Gorm returns the underlying connection.
func (d *DB) Gorm() *gorm.DB { return d.gorm }

// Backend returns "sqlite" or "mysql".
func (d *DB) Backend() string { return d.backend }

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close %s database: %w", d.backend, err)
	}
	d.log.Info("database closed", logger.String("backend", d.backend))
	return nil
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
