package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchAuditLog records operator actions on match candidates.
type MatchAuditLog struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID `gorm:"type:uuid;index;not null"`
	MatchCandidateID uuid.UUID `gorm:"type:uuid;index"`
	InvoiceID        uuid.UUID `gorm:"type:uuid"`
	Action           string
	PreviousStatus   string
	NewStatus        string
	CreatedAt        time.Time
}
