// Package reconciliation orchestrates a reconcile run: fetch the tenant's
// open invoices and unmatched transactions, obtain scored candidates, and
// replace the tenant's proposed set inside a single transaction.
package reconciliation

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"invoice-reconciliation-backend/internal/apperrors"
	"invoice-reconciliation-backend/internal/models"
	"invoice-reconciliation-backend/internal/repository"
	"invoice-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Result struct {
	Candidates            []Candidate `json:"candidates"`
	ProcessedInvoices     int         `json:"processedInvoices"`
	ProcessedTransactions int         `json:"processedTransactions"`
	DurationMs            int64       `json:"durationMs"`
}

type Service struct {
	invoiceRepo     *repository.InvoiceRepository
	transactionRepo *repository.BankTransactionRepository
	strategy        *Strategy
	db              *gorm.DB
	locks           tenantLocks
}

func NewService(
	invoiceRepo *repository.InvoiceRepository,
	transactionRepo *repository.BankTransactionRepository,
	strategy *Strategy,
) *Service {
	return &Service{
		invoiceRepo:     invoiceRepo,
		transactionRepo: transactionRepo,
		strategy:        strategy,
		db:              invoiceRepo.DB(),
	}
}

// Reconcile proposes match candidates for the tenant. Runs are serialized
// per tenant.
func (s *Service) Reconcile(ctx context.Context, tenantID uuid.UUID) (*Result, error) {
	start := time.Now()

	unlock := s.locks.Lock(tenantID)
	defer unlock()

	invoices, err := s.invoiceRepo.FindOpen(ctx, tenantID)
	if err != nil {
		return nil, apperrors.Internalf("loading open invoices: %v", err)
	}
	transactions, err := s.transactionRepo.FindUnmatched(ctx, tenantID)
	if err != nil {
		return nil, apperrors.Internalf("loading unmatched transactions: %v", err)
	}

	result := &Result{
		Candidates:            []Candidate{},
		ProcessedInvoices:     len(invoices),
		ProcessedTransactions: len(transactions),
	}

	if len(invoices) == 0 || len(transactions) == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
		s.recordRun(ctx, tenantID, result, ScoringSourceLocal, start)
		return result, nil
	}

	invoiceRecords := make([]matching.InvoiceRecord, len(invoices))
	for i, inv := range invoices {
		invoiceRecords[i] = NormalizeInvoice(inv)
	}
	transactionRecords := make([]matching.TransactionRecord, len(transactions))
	for i, tx := range transactions {
		transactionRecords[i] = NormalizeTransaction(tx)
	}

	candidates, source, err := s.strategy.Score(ctx, tenantID, invoiceRecords, transactionRecords)
	if err != nil {
		return nil, apperrors.Internalf("scoring candidates: %v", err)
	}

	if err := s.storeCandidates(ctx, tenantID, invoices, candidates); err != nil {
		return nil, apperrors.Internalf("storing candidates: %v", err)
	}

	result.Candidates = candidates
	result.DurationMs = time.Since(start).Milliseconds()
	s.recordRun(ctx, tenantID, result, source, start)
	return result, nil
}

// storeCandidates replaces the proposed set for the processed invoices with
// an upsert-and-prune inside one transaction, so a concurrent reader never
// observes a transient empty candidate set.
func (s *Service) storeCandidates(ctx context.Context, tenantID uuid.UUID, invoices []models.Invoice, candidates []Candidate) error {
	invoiceIDs := make([]uuid.UUID, len(invoices))
	for i, inv := range invoices {
		invoiceIDs[i] = inv.ID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", tenantID.String()).Error; err != nil {
				return err
			}
		}

		// Prune stale proposals only for invoices in this run's window;
		// proposals for invoices outside it survive.
		if err := tx.
			Where("tenant_id = ? AND status = ? AND invoice_id IN ?", tenantID, models.MatchStatusProposed, invoiceIDs).
			Delete(&models.MatchCandidate{}).Error; err != nil {
			return err
		}

		now := time.Now()
		for _, c := range candidates {
			breakdownJSON, err := json.Marshal(c.Breakdown)
			if err != nil {
				return err
			}
			row := models.MatchCandidate{
				ID:                uuid.New(),
				TenantID:          tenantID,
				InvoiceID:         c.InvoiceID,
				BankTransactionID: c.TransactionID,
				Score:             c.Score,
				Status:            models.MatchStatusProposed,
				Explanation:       c.Explanation,
				Breakdown:         breakdownJSON,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			// A conflicting row can only be a prior rejection of the same
			// pair; a new run re-proposes it with the fresh score.
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "tenant_id"}, {Name: "invoice_id"}, {Name: "bank_transaction_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"score":       c.Score,
					"status":      models.MatchStatusProposed,
					"explanation": c.Explanation,
					"breakdown":   breakdownJSON,
					"updated_at":  now,
				}),
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) recordRun(ctx context.Context, tenantID uuid.UUID, result *Result, source string, start time.Time) {
	run := models.ReconciliationRun{
		ID:                    uuid.New(),
		TenantID:              tenantID,
		ProcessedInvoices:     result.ProcessedInvoices,
		ProcessedTransactions: result.ProcessedTransactions,
		CandidateCount:        len(result.Candidates),
		ScoringSource:         source,
		StartedAt:             start,
		DurationMs:            result.DurationMs,
		CreatedAt:             time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		log.Printf("failed to record reconciliation run for tenant %s: %v", tenantID, err)
	}
}

// NormalizeInvoice maps a stored invoice to its scoring record.
func NormalizeInvoice(inv models.Invoice) matching.InvoiceRecord {
	return matching.InvoiceRecord{
		ID:            inv.ID,
		Amount:        inv.Amount,
		Date:          inv.InvoiceDate,
		Description:   inv.Description,
		VendorName:    inv.VendorName,
		InvoiceNumber: inv.InvoiceNumber,
		Currency:      inv.Currency,
	}
}

// NormalizeTransaction maps a stored bank transaction to its scoring record.
func NormalizeTransaction(tx models.BankTransaction) matching.TransactionRecord {
	return matching.TransactionRecord{
		ID:          tx.ID,
		Amount:      tx.Amount,
		PostedAt:    tx.PostedAt,
		Description: tx.Description,
		Reference:   tx.Reference,
		Currency:    tx.Currency,
	}
}
