package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MatchStatusProposed  = "proposed"
	MatchStatusConfirmed = "confirmed"
	MatchStatusRejected  = "rejected"
)

// MatchCandidate pairs one invoice with one bank transaction. For a given
// tenant and invoice at most one candidate may be confirmed at any time.
type MatchCandidate struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tenant_invoice_txn"`
	InvoiceID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tenant_invoice_txn;index"`
	BankTransactionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tenant_invoice_txn;index"`
	Score             int       `gorm:"index"`
	Status            string    `gorm:"index"`
	Explanation       string
	Breakdown         datatypes.JSON
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Invoice     *Invoice         `gorm:"foreignKey:InvoiceID"`
	Transaction *BankTransaction `gorm:"foreignKey:BankTransactionID"`
}
