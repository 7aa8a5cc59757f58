// Package ingest bulk-loads bank transactions per tenant. Imports are
// idempotent under a caller-supplied key and deduplicate on external id.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"invoice-reconciliation-backend/internal/apperrors"
	"invoice-reconciliation-backend/internal/models"
	"invoice-reconciliation-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultBatchSize = 50
	idempotencyTTL   = 24 * time.Hour
)

var supportedCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
	"CAD": true,
	"AUD": true,
}

// TransactionInput is one row of a bulk import request. Amount arrives as a
// string so it is parsed with exact decimal semantics.
type TransactionInput struct {
	ExternalID  string    `json:"externalId,omitempty"`
	PostedAt    time.Time `json:"postedAt"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Description string    `json:"description"`
	Reference   string    `json:"reference,omitempty"`
}

type ImportResult struct {
	Imported     int                      `json:"imported"`
	Duplicates   int                      `json:"duplicates"`
	Errors       []string                 `json:"errors"`
	Transactions []models.BankTransaction `json:"transactions"`
}

type Service struct {
	db              *gorm.DB
	transactionRepo *repository.BankTransactionRepository
	batchSize       int
}

func NewService(transactionRepo *repository.BankTransactionRepository) *Service {
	return &Service{
		db:              transactionRepo.DB(),
		transactionRepo: transactionRepo,
		batchSize:       defaultBatchSize,
	}
}

// BulkImport inserts the given transactions for the tenant in fixed-size
// batches. Batch errors accumulate in the result instead of aborting the
// run. With an idempotency key, replaying an identical request returns the
// cached result; reusing the key with a different payload is a conflict.
func (s *Service) BulkImport(ctx context.Context, tenantID uuid.UUID, inputs []TransactionInput, idempotencyKey, requestPath, requestMethod string) (*ImportResult, error) {
	if len(inputs) == 0 {
		return nil, apperrors.Validationf("no transactions to import")
	}

	requestHash := hashRequest(inputs)

	if idempotencyKey != "" {
		cached, err := s.lookupIdempotency(ctx, tenantID, idempotencyKey, requestHash)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
	}

	result := &ImportResult{
		Errors:       []string{},
		Transactions: []models.BankTransaction{},
	}
	seen := make(map[string]bool)

	for start := 0; start < len(inputs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		s.processBatch(ctx, tenantID, inputs[start:end], start, seen, result)
	}

	if idempotencyKey != "" {
		s.cacheResult(ctx, tenantID, idempotencyKey, requestPath, requestMethod, requestHash, result)
	}
	return result, nil
}

func (s *Service) processBatch(ctx context.Context, tenantID uuid.UUID, batch []TransactionInput, offset int, seen map[string]bool, result *ImportResult) {
	externalIDs := make([]string, 0, len(batch))
	for _, in := range batch {
		if in.ExternalID != "" {
			externalIDs = append(externalIDs, in.ExternalID)
		}
	}

	existing, err := s.transactionRepo.ExistingExternalIDs(ctx, tenantID, externalIDs)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("batch at row %d: duplicate lookup failed: %v", offset+1, err))
		return
	}

	now := time.Now()
	rows := make([]models.BankTransaction, 0, len(batch))
	for i, in := range batch {
		rowNum := offset + i + 1

		amount, rowErr := validateInput(in)
		if rowErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", rowNum, rowErr))
			continue
		}

		// Rows without an external id are never deduplicated.
		var externalID *string
		if in.ExternalID != "" {
			if existing[in.ExternalID] || seen[in.ExternalID] {
				result.Duplicates++
				continue
			}
			seen[in.ExternalID] = true
			id := in.ExternalID
			externalID = &id
		}

		rows = append(rows, models.BankTransaction{
			ID:          uuid.New(),
			TenantID:    tenantID,
			ExternalID:  externalID,
			PostedAt:    in.PostedAt,
			Amount:      amount,
			Currency:    in.Currency,
			Description: in.Description,
			Reference:   in.Reference,
			CreatedAt:   now,
		})
	}

	if len(rows) == 0 {
		return
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("batch at row %d: insert failed: %v", offset+1, err))
		return
	}
	result.Imported += len(rows)
	result.Transactions = append(result.Transactions, rows...)
}

func validateInput(in TransactionInput) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", in.Amount)
	}
	if in.Description == "" {
		return decimal.Zero, fmt.Errorf("description is required")
	}
	if in.PostedAt.IsZero() {
		return decimal.Zero, fmt.Errorf("postedAt is required")
	}
	if !supportedCurrencies[in.Currency] {
		return decimal.Zero, fmt.Errorf("unsupported currency %q", in.Currency)
	}
	return amount, nil
}

// lookupIdempotency returns the cached result for a replayed request, nil
// when the key is unknown or expired, and a conflict when the key was reused
// with a different payload.
func (s *Service) lookupIdempotency(ctx context.Context, tenantID uuid.UUID, key, requestHash string) (*ImportResult, error) {
	var record models.IdempotencyRecord
	err := s.db.WithContext(ctx).
		First(&record, "tenant_id = ? AND idempotency_key = ?", tenantID, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Internalf("idempotency lookup: %v", err)
	}

	if time.Now().After(record.ExpiresAt) {
		return nil, nil
	}
	if record.RequestHash != requestHash {
		return nil, apperrors.Conflictf("idempotency key reused with different payload")
	}

	var cached ImportResult
	if err := json.Unmarshal([]byte(record.ResponseBody), &cached); err != nil {
		return nil, apperrors.Internalf("decoding cached response: %v", err)
	}
	return &cached, nil
}

func (s *Service) cacheResult(ctx context.Context, tenantID uuid.UUID, key, requestPath, requestMethod, requestHash string, result *ImportResult) {
	body, err := json.Marshal(result)
	if err != nil {
		log.Printf("failed to encode idempotency response for tenant %s: %v", tenantID, err)
		return
	}

	now := time.Now()
	record := models.IdempotencyRecord{
		ID:             uuid.New(),
		TenantID:       tenantID,
		IdempotencyKey: key,
		RequestPath:    requestPath,
		RequestMethod:  requestMethod,
		RequestHash:    requestHash,
		ResponseStatus: 200,
		ResponseBody:   string(body),
		CreatedAt:      now,
		ExpiresAt:      now.Add(idempotencyTTL),
	}
	// An expired record for the same key is replaced in place.
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "idempotency_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_hash":    requestHash,
			"request_path":    requestPath,
			"request_method":  requestMethod,
			"response_status": 200,
			"response_body":   string(body),
			"created_at":      now,
			"expires_at":      record.ExpiresAt,
		}),
	}).Create(&record).Error
	if err != nil {
		log.Printf("failed to persist idempotency record for tenant %s: %v", tenantID, err)
	}
}

func hashRequest(inputs []TransactionInput) string {
	normalized, _ := json.Marshal(inputs)
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}
