package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankTransaction rows are immutable once created.
type BankTransaction struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_tenant_external"`
	ExternalID  *string         `gorm:"uniqueIndex:idx_tenant_external"`
	PostedAt    time.Time       `gorm:"index"`
	Amount      decimal.Decimal `gorm:"type:numeric(15,2);index"`
	Currency    string
	Description string
	Reference   string
	CreatedAt   time.Time
}
