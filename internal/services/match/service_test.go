package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"invoice-reconciliation-backend/internal/apperrors"
	"invoice-reconciliation-backend/internal/models"
	"invoice-reconciliation-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	tenantID uuid.UUID
	invoice  models.Invoice
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenTestDB(t)
	f := &fixture{
		db:       db,
		svc:      NewService(db),
		tenantID: uuid.New(),
	}
	f.invoice = f.createInvoice(t, "1500.00")
	return f
}

func (f *fixture) createInvoice(t *testing.T, amount string) models.Invoice {
	t.Helper()
	invoice := models.Invoice{
		ID:       uuid.New(),
		TenantID: f.tenantID,
		Amount:   decimal.RequireFromString(amount),
		Currency: "USD",
		Status:   models.InvoiceStatusOpen,
	}
	if err := f.db.Create(&invoice).Error; err != nil {
		t.Fatalf("creating invoice: %v", err)
	}
	return invoice
}

func (f *fixture) createTransaction(t *testing.T, amount string) models.BankTransaction {
	t.Helper()
	tx := models.BankTransaction{
		ID:          uuid.New(),
		TenantID:    f.tenantID,
		PostedAt:    time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		Description: "wire transfer",
	}
	if err := f.db.Create(&tx).Error; err != nil {
		t.Fatalf("creating transaction: %v", err)
	}
	return tx
}

func (f *fixture) createCandidate(t *testing.T, invoiceID, transactionID uuid.UUID, score int, status string) models.MatchCandidate {
	t.Helper()
	candidate := models.MatchCandidate{
		ID:                uuid.New(),
		TenantID:          f.tenantID,
		InvoiceID:         invoiceID,
		BankTransactionID: transactionID,
		Score:             score,
		Status:            status,
	}
	if err := f.db.Create(&candidate).Error; err != nil {
		t.Fatalf("creating candidate: %v", err)
	}
	return candidate
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.MatchCandidate {
	t.Helper()
	var candidate models.MatchCandidate
	if err := f.db.First(&candidate, "id = ?", id).Error; err != nil {
		t.Fatalf("reloading candidate: %v", err)
	}
	return candidate
}

func TestConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx1 := f.createTransaction(t, "1500.00")
	tx2 := f.createTransaction(t, "1500.00")
	winner := f.createCandidate(t, f.invoice.ID, tx1.ID, 1500, models.MatchStatusProposed)
	sibling := f.createCandidate(t, f.invoice.ID, tx2.ID, 1300, models.MatchStatusProposed)

	confirmed, err := f.svc.Confirm(ctx, f.tenantID, winner.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != models.MatchStatusConfirmed {
		t.Errorf("status = %q, want confirmed", confirmed.Status)
	}

	var invoice models.Invoice
	if err := f.db.First(&invoice, "id = ?", f.invoice.ID).Error; err != nil {
		t.Fatalf("reloading invoice: %v", err)
	}
	if invoice.Status != models.InvoiceStatusPaid {
		t.Errorf("invoice status = %q, want paid", invoice.Status)
	}

	if got := f.reload(t, sibling.ID); got.Status != models.MatchStatusRejected {
		t.Errorf("sibling status = %q, want rejected", got.Status)
	}

	var audits int64
	if err := f.db.Model(&models.MatchAuditLog{}).
		Where("tenant_id = ? AND match_candidate_id = ? AND action = ?", f.tenantID, winner.ID, "confirm").
		Count(&audits).Error; err != nil {
		t.Fatalf("counting audit rows: %v", err)
	}
	if audits != 1 {
		t.Errorf("audit rows = %d, want 1", audits)
	}
}

func TestConfirmAlreadyConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.createTransaction(t, "1500.00")
	candidate := f.createCandidate(t, f.invoice.ID, tx.ID, 1500, models.MatchStatusProposed)

	if _, err := f.svc.Confirm(ctx, f.tenantID, candidate.ID); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	_, err := f.svc.Confirm(ctx, f.tenantID, candidate.ID)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestConfirmSecondCandidateForInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx1 := f.createTransaction(t, "1500.00")
	tx2 := f.createTransaction(t, "1500.00")
	first := f.createCandidate(t, f.invoice.ID, tx1.ID, 1500, models.MatchStatusProposed)
	second := f.createCandidate(t, f.invoice.ID, tx2.ID, 1300, models.MatchStatusProposed)

	if _, err := f.svc.Confirm(ctx, f.tenantID, first.ID); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	_, err := f.svc.Confirm(ctx, f.tenantID, second.ID)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}

	// Exclusivity invariant: at most one confirmed candidate per invoice.
	var confirmed int64
	if err := f.db.Model(&models.MatchCandidate{}).
		Where("tenant_id = ? AND invoice_id = ? AND status = ?", f.tenantID, f.invoice.ID, models.MatchStatusConfirmed).
		Count(&confirmed).Error; err != nil {
		t.Fatalf("counting confirmed: %v", err)
	}
	if confirmed != 1 {
		t.Errorf("confirmed candidates = %d, want 1", confirmed)
	}
}

func TestConfirmNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Confirm(context.Background(), f.tenantID, uuid.New())
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestConfirmIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	tx := f.createTransaction(t, "1500.00")
	candidate := f.createCandidate(t, f.invoice.ID, tx.ID, 1500, models.MatchStatusProposed)

	_, err := f.svc.Confirm(context.Background(), uuid.New(), candidate.ID)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("err = %v, want not found for foreign tenant", err)
	}
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.createTransaction(t, "1500.00")
	candidate := f.createCandidate(t, f.invoice.ID, tx.ID, 900, models.MatchStatusProposed)

	rejected, err := f.svc.Reject(ctx, f.tenantID, candidate.ID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != models.MatchStatusRejected {
		t.Errorf("status = %q, want rejected", rejected.Status)
	}

	// No invoice side effect on reject.
	var invoice models.Invoice
	if err := f.db.First(&invoice, "id = ?", f.invoice.ID).Error; err != nil {
		t.Fatalf("reloading invoice: %v", err)
	}
	if invoice.Status != models.InvoiceStatusOpen {
		t.Errorf("invoice status = %q, want open", invoice.Status)
	}
}

func TestRejectNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reject(context.Background(), f.tenantID, uuid.New())
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestCreateOrUpdateCandidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.createTransaction(t, "1500.00")

	created, err := f.svc.CreateOrUpdateCandidate(ctx, f.tenantID, f.invoice.ID, tx.ID, 800, "good match")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := f.svc.CreateOrUpdateCandidate(ctx, f.tenantID, f.invoice.ID, tx.ID, 1200, "strong match")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != created.ID {
		t.Errorf("upsert created a second row: %s vs %s", updated.ID, created.ID)
	}
	if updated.Score != 1200 || updated.Explanation != "strong match" {
		t.Errorf("updated = %+v, want score 1200 and new explanation", updated)
	}

	var count int64
	if err := f.db.Model(&models.MatchCandidate{}).
		Where("tenant_id = ?", f.tenantID).Count(&count).Error; err != nil {
		t.Fatalf("counting candidates: %v", err)
	}
	if count != 1 {
		t.Errorf("candidates = %d, want 1", count)
	}
}

func TestListCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx1 := f.createTransaction(t, "1500.00")
	tx2 := f.createTransaction(t, "1500.00")
	f.createCandidate(t, f.invoice.ID, tx1.ID, 900, models.MatchStatusProposed)
	f.createCandidate(t, f.invoice.ID, tx2.ID, 1400, models.MatchStatusRejected)

	all, err := f.svc.ListCandidates(ctx, f.tenantID, "")
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].Score < all[1].Score {
		t.Error("candidates are not ordered by descending score")
	}
	if all[0].Invoice == nil || all[0].Transaction == nil {
		t.Error("associations not preloaded")
	}

	proposed, err := f.svc.ListCandidates(ctx, f.tenantID, models.MatchStatusProposed)
	if err != nil {
		t.Fatalf("ListCandidates(proposed): %v", err)
	}
	if len(proposed) != 1 || proposed[0].Score != 900 {
		t.Errorf("proposed = %+v, want the single 900 candidate", proposed)
	}

	foreign, err := f.svc.ListCandidates(ctx, uuid.New(), "")
	if err != nil {
		t.Fatalf("ListCandidates(foreign tenant): %v", err)
	}
	if len(foreign) != 0 {
		t.Errorf("foreign tenant sees %d candidates, want 0", len(foreign))
	}
}
