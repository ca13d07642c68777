package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rxledger/rxledger/internal/conf"
)

// sqlitePragmas enables WAL for concurrent readers and waits on a locked
// database instead of failing.
const sqlitePragmas = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

func openSQLite(settings conf.SQLiteSettings, gcfg *gorm.Config) (*gorm.DB, error) {
	path := settings.Path
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+sqlitePragmas), gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get SQLite connection pool: %w", err)
	}
	// Single writer; WAL still lets the one connection interleave reads.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
