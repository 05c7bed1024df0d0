// Package database opens the report-journal database.
package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jag2430/fix-executor/internal/audit"
)

// InMemoryDSN keeps the journal process-lifetime only, which is the default:
// the simulator promises no durability across restarts.
const InMemoryDSN = "file::memory:?cache=shared"

// New opens the database at path (the in-memory DSN when empty) and runs
// migrations.
func New(path string) (*gorm.DB, error) {
	if path == "" {
		path = InMemoryDSN
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&audit.ReportRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}
