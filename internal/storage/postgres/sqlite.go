// internal/storage/postgres/sqlite.go
package postgres

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

// NewSQLiteStorage opens a single-file history database for installs that
// run without PostgreSQL.
func NewSQLiteStorage(path string, zapLogger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := Open(sqlite.Open(path+"?_busy_timeout=5000"), zapLogger)
	if err != nil {
		return nil, err
	}

	sqlDB, err := store.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// SQLite serializes writers anyway.
	sqlDB.SetMaxOpenConns(1)

	return store, nil
}
