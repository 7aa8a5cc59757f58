package models

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord caches the outcome of a keyed bulk import. A reused key
// with a different request hash is a conflict, never an overwrite. Expiry is
// passive: records past ExpiresAt are treated as absent at read time.
type IdempotencyRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tenant_key"`
	IdempotencyKey string    `gorm:"uniqueIndex:idx_tenant_key"`
	RequestPath    string
	RequestMethod  string
	RequestHash    string `gorm:"size:64"`
	ResponseStatus int
	ResponseBody   string `gorm:"type:text"`
	CreatedAt      time.Time
	ExpiresAt      time.Time `gorm:"index"`
}
