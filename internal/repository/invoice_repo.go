package repository

import (
	"context"

	"invoice-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Expose DB if needed
func (r *InvoiceRepository) DB() *gorm.DB {
	return r.db
}

// FindOpen returns all open invoices for the tenant.
func (r *InvoiceRepository) FindOpen(ctx context.Context, tenantID uuid.UUID) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, models.InvoiceStatusOpen).
		Order("created_at ASC").
		Find(&invoices).Error
	return invoices, err
}

// GetByID fetches a single invoice scoped to the tenant.
func (r *InvoiceRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		First(&invoice, "id = ? AND tenant_id = ?", id, tenantID).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// Create inserts an invoice, generating its ID.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	if invoice.Status == "" {
		invoice.Status = models.InvoiceStatusOpen
	}
	return r.db.WithContext(ctx).Create(invoice).Error
}
