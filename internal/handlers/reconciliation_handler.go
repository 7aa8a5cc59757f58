package handler

import (
	"errors"
	"net/http"
	"time"

	"invoice-reconciliation-backend/internal/apperrors"
	"invoice-reconciliation-backend/internal/models"
	"invoice-reconciliation-backend/internal/repository"
	"invoice-reconciliation-backend/internal/services/explain"
	"invoice-reconciliation-backend/internal/services/ingest"
	"invoice-reconciliation-backend/internal/services/match"
	"invoice-reconciliation-backend/internal/services/matching"
	"invoice-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReconciliationHandler struct {
	reconciliation  *reconciliation.Service
	matches         *match.Service
	ingest          *ingest.Service
	explainer       *explain.Generator
	invoiceRepo     *repository.InvoiceRepository
	transactionRepo *repository.BankTransactionRepository
}

func NewReconciliationHandler(
	reconService *reconciliation.Service,
	matchService *match.Service,
	ingestService *ingest.Service,
	explainer *explain.Generator,
	invoiceRepo *repository.InvoiceRepository,
	transactionRepo *repository.BankTransactionRepository,
) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliation:  reconService,
		matches:         matchService,
		ingest:          ingestService,
		explainer:       explainer,
		invoiceRepo:     invoiceRepo,
		transactionRepo: transactionRepo,
	}
}

// Reconcile runs a reconcile pass for the tenant and returns the proposed
// candidates.
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	result, err := h.reconciliation.Reconcile(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ReconciliationHandler) ListCandidates(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	status := c.Query("status")
	switch status {
	case "", models.MatchStatusProposed, models.MatchStatusConfirmed, models.MatchStatusRejected:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	candidates, err := h.matches.ListCandidates(c.Request.Context(), tenantID, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": candidates})
}

func (h *ReconciliationHandler) ConfirmMatch(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	matchID, err := uuid.Parse(c.Param("matchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match ID"})
		return
	}

	candidate, err := h.matches.Confirm(c.Request.Context(), tenantID, matchID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "match confirmed", "match": candidate})
}

func (h *ReconciliationHandler) RejectMatch(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	matchID, err := uuid.Parse(c.Param("matchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match ID"})
		return
	}

	candidate, err := h.matches.Reject(c.Request.Context(), tenantID, matchID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "match rejected", "match": candidate})
}

func (h *ReconciliationHandler) BulkImportTransactions(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var payload struct {
		Transactions []ingest.TransactionInput `json:"transactions"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.ingest.BulkImport(
		c.Request.Context(),
		tenantID,
		payload.Transactions,
		c.GetHeader("Idempotency-Key"),
		c.FullPath(),
		c.Request.Method,
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ReconciliationHandler) ListTransactions(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	transactions, err := h.transactionRepo.FindAll(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, apperrors.Internalf("listing transactions: %v", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": transactions})
}

func (h *ReconciliationHandler) CreateInvoice(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var payload struct {
		InvoiceNumber string `json:"invoiceNumber"`
		VendorName    string `json:"vendorName"`
		Amount        string `json:"amount"`
		Currency      string `json:"currency"`
		Description   string `json:"description"`
		InvoiceDate   string `json:"invoiceDate"` // "yyyy-mm-dd"
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	var invoiceDate *time.Time
	if payload.InvoiceDate != "" {
		parsed, err := time.Parse("2006-01-02", payload.InvoiceDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice date, expected yyyy-mm-dd"})
			return
		}
		invoiceDate = &parsed
	}

	currency := payload.Currency
	if currency == "" {
		currency = "USD"
	}

	invoice := models.Invoice{
		TenantID:      tenantID,
		InvoiceNumber: payload.InvoiceNumber,
		VendorName:    payload.VendorName,
		Amount:        amount,
		Currency:      currency,
		Description:   payload.Description,
		InvoiceDate:   invoiceDate,
		Status:        models.InvoiceStatusOpen,
	}
	if err := h.invoiceRepo.Create(c.Request.Context(), &invoice); err != nil {
		respondError(c, apperrors.Internalf("creating invoice: %v", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "invoice created", "invoice": invoice})
}

// Explain scores the given pair and returns a natural-language explanation.
// Provider outages degrade to the deterministic template, never to an error.
func (h *ReconciliationHandler) Explain(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var payload struct {
		InvoiceID     string `json:"invoiceId"`
		TransactionID string `json:"transactionId"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	invoiceID, err := uuid.Parse(payload.InvoiceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return
	}
	transactionID, err := uuid.Parse(payload.TransactionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	invoice, err := h.invoiceRepo.GetByID(c.Request.Context(), tenantID, invoiceID)
	if err != nil {
		respondError(c, notFoundOrInternal(err, "invoice"))
		return
	}
	transaction, err := h.transactionRepo.GetByID(c.Request.Context(), tenantID, transactionID)
	if err != nil {
		respondError(c, notFoundOrInternal(err, "bank transaction"))
		return
	}

	invRecord := reconciliation.NormalizeInvoice(*invoice)
	txRecord := reconciliation.NormalizeTransaction(*transaction)
	breakdown := matching.Score(invRecord, txRecord)
	result := h.explainer.Explain(c.Request.Context(), invRecord, txRecord, breakdown)

	c.JSON(http.StatusOK, gin.H{
		"explanation":    result.Explanation,
		"confidence":     result.Confidence,
		"aiGenerated":    result.AIGenerated,
		"score":          breakdown.Total,
		"scoreBreakdown": breakdown,
	})
}

func tenantParam(c *gin.Context) (uuid.UUID, bool) {
	tenantID, err := uuid.Parse(c.Param("tenantId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant ID"})
		return uuid.Nil, false
	}
	return tenantID, true
}

func respondError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
}

func notFoundOrInternal(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFoundf("%s not found", entity)
	}
	return apperrors.Internalf("loading %s: %v", entity, err)
}
