// Package testutil provides shared helpers for service tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"invoice-reconciliation-backend/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbCounter int64

// OpenTestDB opens a fresh in-memory database with the full schema migrated.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddInt64(&dbCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Invoice{},
		&models.BankTransaction{},
		&models.MatchCandidate{},
		&models.IdempotencyRecord{},
		&models.MatchAuditLog{},
		&models.ReconciliationRun{},
	)
	if err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}
