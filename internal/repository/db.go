package repository

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const InMemory = ":memory:"

// NewSQLiteDB opens the deployment history database at path, creating the
// file and its directory if needed. InMemory keeps history for the process
// lifetime only.
func NewSQLiteDB(path string) (*gorm.DB, error) {
	if path != InMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, err
	}
	if path == InMemory {
		// Every sqlite connection gets its own in-memory database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&Deployment{}); err != nil {
		return nil, err
	}
	return db, nil
}
