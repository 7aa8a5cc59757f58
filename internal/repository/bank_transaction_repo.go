package repository

import (
	"context"

	"invoice-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BankTransactionRepository struct {
	db *gorm.DB
}

func NewBankTransactionRepository(db *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: db}
}

func (r *BankTransactionRepository) DB() *gorm.DB {
	return r.db
}

// FindUnmatched returns the tenant's transactions not attached to any
// confirmed match candidate.
func (r *BankTransactionRepository) FindUnmatched(ctx context.Context, tenantID uuid.UUID) ([]models.BankTransaction, error) {
	confirmed := r.db.Model(&models.MatchCandidate{}).
		Select("bank_transaction_id").
		Where("tenant_id = ? AND status = ?", tenantID, models.MatchStatusConfirmed)

	var txs []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("id NOT IN (?)", confirmed).
		Order("posted_at ASC").
		Find(&txs).Error
	return txs, err
}

// FindAll returns every transaction for the tenant ordered by posting date.
func (r *BankTransactionRepository) FindAll(ctx context.Context, tenantID uuid.UUID) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("posted_at ASC").
		Find(&txs).Error
	return txs, err
}

// GetByID fetches a single transaction scoped to the tenant.
func (r *BankTransactionRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	err := r.db.WithContext(ctx).
		First(&tx, "id = ? AND tenant_id = ?", id, tenantID).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ExistingExternalIDs returns which of the given external ids already exist
// for the tenant.
func (r *BankTransactionRepository) ExistingExternalIDs(ctx context.Context, tenantID uuid.UUID, externalIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(externalIDs) == 0 {
		return existing, nil
	}

	var found []string
	err := r.db.WithContext(ctx).
		Model(&models.BankTransaction{}).
		Where("tenant_id = ? AND external_id IN ?", tenantID, externalIDs).
		Pluck("external_id", &found).Error
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}
