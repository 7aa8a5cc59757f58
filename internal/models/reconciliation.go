package models

import (
	"time"

	"github.com/google/uuid"
)

// ReconciliationRun records one reconcile pass over a tenant.
type ReconciliationRun struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID              uuid.UUID `gorm:"type:uuid;index;not null"`
	ProcessedInvoices     int
	ProcessedTransactions int
	CandidateCount        int
	ScoringSource         string
	StartedAt             time.Time
	DurationMs            int64
	CreatedAt             time.Time
}
