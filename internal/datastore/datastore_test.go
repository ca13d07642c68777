package datastore

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxledger/rxledger/internal/conf"
	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, nil)
}

func TestOpenSQLiteCreatesDirectoryAndMigrates(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "dir", "rx.db")

	db, err := Open(conf.DatabaseSettings{Type: "sqlite", SQLite: conf.SQLiteSettings{Path: path}}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Equal(t, "sqlite", db.Backend())
	require.NoError(t, db.Ping(t.Context()))
	for _, model := range entities.All() {
		assert.True(t, db.Gorm().Migrator().HasTable(model))
	}

	rec := &entities.InspectionRecord{
		Fingerprint: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		Result:      detection.ResultSuspicious,
		Confidence:  0.5,
	}
	require.NoError(t, db.Inspections().CreateBatch(t.Context(), []*entities.InspectionRecord{rec}))
	got, err := db.Inspections().Get(t.Context(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, detection.ResultSuspicious, got.Result)
}

func TestOpenReopensExistingFile(t *testing.T) {
	t.Parallel()
	settings := conf.DatabaseSettings{SQLite: conf.SQLiteSettings{Path: filepath.Join(t.TempDir(), "rx.db")}}

	db, err := Open(settings, testLogger())
	require.NoError(t, err)
	require.NoError(t, db.Lots().Create(t.Context(), &entities.Lot{LotNumber: "LOT-9", ProductName: "Ibuprofen"}))
	require.NoError(t, db.Close())

	db, err = Open(settings, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	lot, err := db.Lots().GetByNumber(t.Context(), "LOT-9")
	require.NoError(t, err)
	assert.Equal(t, "Ibuprofen", lot.ProductName)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := Open(conf.DatabaseSettings{Type: "postgres"}, testLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(conf.DatabaseSettings{Type: "sqlite"}, testLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}

func TestMySQLDSNFormat(t *testing.T) {
	t.Parallel()

	dsn := mysqlDSN(conf.MySQLSettings{
		Host: "db.internal", Port: 3307, Username: "rx", Password: "p@ss:word/1", Database: "rxledger",
	})

	assert.Contains(t, dsn, "rx:p@ss:word/1@tcp(db.internal:3307)/rxledger?")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "parseTime=True")
	assert.Contains(t, dsn, "timeout=30s")
}
