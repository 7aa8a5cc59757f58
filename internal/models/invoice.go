package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	InvoiceStatusOpen      = "open"
	InvoiceStatusMatched   = "matched"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusCancelled = "cancelled"
)

type Invoice struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID `gorm:"type:uuid;index;not null"`
	InvoiceNumber string
	VendorName    string
	Amount        decimal.Decimal `gorm:"type:numeric(15,2);index"`
	Currency      string
	Description   string
	InvoiceDate   *time.Time
	Status        string `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
