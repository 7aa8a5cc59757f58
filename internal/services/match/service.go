// Package match governs the candidate lifecycle: proposed candidates are
// confirmed or rejected by an operator. Confirming is all-or-nothing and
// upholds the exclusivity invariant of at most one confirmed candidate per
// invoice.
package match

import (
	"context"
	"errors"
	"time"

	"invoice-reconciliation-backend/internal/apperrors"
	"invoice-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Confirm marks the candidate confirmed, flips its invoice to paid, and
// rejects every sibling proposal, inside one transaction with row locks on
// postgres.
func (s *Service) Confirm(ctx context.Context, tenantID, matchID uuid.UUID) (*models.MatchCandidate, error) {
	var confirmed models.MatchCandidate

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := tx
		if tx.Dialector.Name() == "postgres" {
			locked = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var candidate models.MatchCandidate
		if err := locked.First(&candidate, "id = ? AND tenant_id = ?", matchID, tenantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFoundf("match candidate %s", matchID)
			}
			return apperrors.Internalf("loading match candidate: %v", err)
		}

		if candidate.Status == models.MatchStatusConfirmed {
			return apperrors.Conflictf("match is already confirmed")
		}

		// Lock the siblings before inspecting them so two concurrent
		// confirms on the same invoice cannot both pass this check.
		var siblings []models.MatchCandidate
		if err := locked.
			Where("tenant_id = ? AND invoice_id = ? AND id <> ?", tenantID, candidate.InvoiceID, candidate.ID).
			Find(&siblings).Error; err != nil {
			return apperrors.Internalf("loading sibling candidates: %v", err)
		}
		for _, sibling := range siblings {
			if sibling.Status == models.MatchStatusConfirmed {
				return apperrors.Conflictf("invoice already has a confirmed match; reject the existing match first")
			}
		}

		previous := candidate.Status
		now := time.Now()
		if err := tx.Model(&models.MatchCandidate{}).
			Where("id = ?", candidate.ID).
			Updates(map[string]interface{}{
				"status":     models.MatchStatusConfirmed,
				"updated_at": now,
			}).Error; err != nil {
			return apperrors.Internalf("confirming candidate: %v", err)
		}

		if err := tx.Model(&models.Invoice{}).
			Where("id = ? AND tenant_id = ?", candidate.InvoiceID, tenantID).
			Updates(map[string]interface{}{
				"status":     models.InvoiceStatusPaid,
				"updated_at": now,
			}).Error; err != nil {
			return apperrors.Internalf("updating invoice status: %v", err)
		}

		if err := tx.Model(&models.MatchCandidate{}).
			Where("tenant_id = ? AND invoice_id = ? AND id <> ? AND status = ?",
				tenantID, candidate.InvoiceID, candidate.ID, models.MatchStatusProposed).
			Updates(map[string]interface{}{
				"status":     models.MatchStatusRejected,
				"updated_at": now,
			}).Error; err != nil {
			return apperrors.Internalf("rejecting sibling candidates: %v", err)
		}

		if err := s.writeAudit(tx, tenantID, candidate, "confirm", previous, models.MatchStatusConfirmed); err != nil {
			return err
		}

		candidate.Status = models.MatchStatusConfirmed
		candidate.UpdatedAt = now
		confirmed = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &confirmed, nil
}

// Reject marks a candidate rejected. It has no invoice side effect.
func (s *Service) Reject(ctx context.Context, tenantID, matchID uuid.UUID) (*models.MatchCandidate, error) {
	var candidate models.MatchCandidate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&candidate, "id = ? AND tenant_id = ?", matchID, tenantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFoundf("match candidate %s", matchID)
			}
			return apperrors.Internalf("loading match candidate: %v", err)
		}

		previous := candidate.Status
		now := time.Now()
		if err := tx.Model(&models.MatchCandidate{}).
			Where("id = ?", candidate.ID).
			Updates(map[string]interface{}{
				"status":     models.MatchStatusRejected,
				"updated_at": now,
			}).Error; err != nil {
			return apperrors.Internalf("rejecting candidate: %v", err)
		}

		if err := s.writeAudit(tx, tenantID, candidate, "reject", previous, models.MatchStatusRejected); err != nil {
			return err
		}
		candidate.Status = models.MatchStatusRejected
		candidate.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &candidate, nil
}

// CreateOrUpdateCandidate upserts a candidate keyed by
// (tenant, invoice, transaction).
func (s *Service) CreateOrUpdateCandidate(ctx context.Context, tenantID, invoiceID, transactionID uuid.UUID, score int, explanation string) (*models.MatchCandidate, error) {
	now := time.Now()
	candidate := models.MatchCandidate{
		ID:                uuid.New(),
		TenantID:          tenantID,
		InvoiceID:         invoiceID,
		BankTransactionID: transactionID,
		Score:             score,
		Status:            models.MatchStatusProposed,
		Explanation:       explanation,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "invoice_id"}, {Name: "bank_transaction_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"score":       score,
			"explanation": explanation,
			"updated_at":  now,
		}),
	}).Create(&candidate).Error
	if err != nil {
		return nil, apperrors.Internalf("upserting candidate: %v", err)
	}

	var stored models.MatchCandidate
	err = s.db.WithContext(ctx).
		First(&stored, "tenant_id = ? AND invoice_id = ? AND bank_transaction_id = ?", tenantID, invoiceID, transactionID).Error
	if err != nil {
		return nil, apperrors.Internalf("loading upserted candidate: %v", err)
	}
	return &stored, nil
}

// ListCandidates returns the tenant's candidates, optionally filtered by
// status, highest score first, with invoice and transaction preloaded.
func (s *Service) ListCandidates(ctx context.Context, tenantID uuid.UUID, status string) ([]models.MatchCandidate, error) {
	query := s.db.WithContext(ctx).
		Preload("Invoice").
		Preload("Transaction").
		Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var candidates []models.MatchCandidate
	if err := query.Order("score DESC").Find(&candidates).Error; err != nil {
		return nil, apperrors.Internalf("listing candidates: %v", err)
	}
	return candidates, nil
}

// GetByID fetches one candidate scoped to the tenant, with associations.
func (s *Service) GetByID(ctx context.Context, tenantID, matchID uuid.UUID) (*models.MatchCandidate, error) {
	var candidate models.MatchCandidate
	err := s.db.WithContext(ctx).
		Preload("Invoice").
		Preload("Transaction").
		First(&candidate, "id = ? AND tenant_id = ?", matchID, tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("match candidate %s", matchID)
		}
		return nil, apperrors.Internalf("loading match candidate: %v", err)
	}
	return &candidate, nil
}

func (s *Service) writeAudit(tx *gorm.DB, tenantID uuid.UUID, candidate models.MatchCandidate, action, previousStatus, newStatus string) error {
	entry := models.MatchAuditLog{
		ID:               uuid.New(),
		TenantID:         tenantID,
		MatchCandidateID: candidate.ID,
		InvoiceID:        candidate.InvoiceID,
		Action:           action,
		PreviousStatus:   previousStatus,
		NewStatus:        newStatus,
		CreatedAt:        time.Now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return apperrors.Internalf("writing audit log: %v", err)
	}
	return nil
}
