// Package explain turns a scored invoice/transaction pair into a short
// operator-facing explanation. A generative provider is optional; every path
// has a deterministic template fallback keyed on score thresholds.
package explain

import (
	"context"
	"fmt"
	"log"
	"strings"

	"invoice-reconciliation-backend/internal/services/matching"
)

type Result struct {
	Explanation string `json:"explanation"`
	Confidence  string `json:"confidence"`
	AIGenerated bool   `json:"aiGenerated"`
}

type Generator struct {
	provider Provider
}

// NewGenerator builds a generator. A nil provider means the deterministic
// fallback is always used.
func NewGenerator(provider Provider) *Generator {
	return &Generator{provider: provider}
}

// Explain produces an explanation for the pair. Provider failures are
// absorbed: the caller always gets a result, never a provider error.
func (g *Generator) Explain(ctx context.Context, inv matching.InvoiceRecord, tx matching.TransactionRecord, breakdown matching.Breakdown) Result {
	if g.provider != nil {
		answer, err := g.provider.Generate(ctx, buildPrompt(inv, tx, breakdown))
		if err == nil {
			return Result{
				Explanation: answer,
				Confidence:  matching.Confidence(breakdown.Total),
				AIGenerated: true,
			}
		}
		log.Printf("explanation provider failed, falling back to deterministic: %v", err)
	}

	return Result{
		Explanation: Deterministic(inv, tx, breakdown),
		Confidence:  matching.Confidence(breakdown.Total),
		AIGenerated: false,
	}
}

// Deterministic renders the template explanation for a breakdown.
func Deterministic(inv matching.InvoiceRecord, tx matching.TransactionRecord, breakdown matching.Breakdown) string {
	currency := inv.Currency
	if currency == "" {
		currency = "USD"
	}

	switch {
	case breakdown.ExactAmount >= matching.ExactAmountScore:
		return fmt.Sprintf("Perfect match: Invoice %s and transaction %s have identical amounts of %s %s.",
			invoiceLabel(inv), transactionLabel(tx), inv.Amount.StringFixed(2), currency)
	case breakdown.Total >= 1200:
		var reasons []string
		if breakdown.DateProximity >= 200 {
			reasons = append(reasons, "similar dates")
		}
		if breakdown.TextSimilarity >= 100 {
			reasons = append(reasons, "matching descriptions")
		}
		if len(reasons) == 0 {
			reasons = append(reasons, "multiple matching factors")
		}
		return fmt.Sprintf("Strong match: Amount %s %s with %s.",
			inv.Amount.StringFixed(2), currency, strings.Join(reasons, " and "))
	case breakdown.Total >= 800:
		return fmt.Sprintf("Good match: Amounts are close (%s vs %s) with reasonable date proximity.",
			inv.Amount.StringFixed(2), tx.Amount.StringFixed(2))
	case breakdown.Total >= 400:
		return "Potential match: Some similarities found but requires review."
	default:
		return "Low confidence match: Minimal similarities detected."
	}
}

func buildPrompt(inv matching.InvoiceRecord, tx matching.TransactionRecord, breakdown matching.Breakdown) string {
	invoiceDate := "N/A"
	if inv.Date != nil && !inv.Date.IsZero() {
		invoiceDate = inv.Date.Format("2006-01-02")
	}

	return fmt.Sprintf(`Explain why this invoice and bank transaction might be a match:

Invoice:
- Amount: %s
- Date: %s
- Description: %s
- Vendor: %s
- Invoice Number: %s

Bank Transaction:
- Amount: %s
- Date: %s
- Description: %s
- Reference: %s

Scoring:
- Total Score: %d/1500
- Exact Amount Match: %s
- Date Proximity Score: %d/300
- Text Similarity Score: %d/200
- Vendor Match Score: %d/100

Provide a concise explanation (2-4 sentences) of why these are likely the same transaction.`,
		inv.Amount.StringFixed(2),
		invoiceDate,
		orNA(inv.Description),
		orNA(inv.VendorName),
		orNA(inv.InvoiceNumber),
		tx.Amount.StringFixed(2),
		tx.PostedAt.Format("2006-01-02"),
		tx.Description,
		orNA(tx.Reference),
		breakdown.Total,
		yesNo(breakdown.ExactAmount > 0),
		breakdown.DateProximity,
		breakdown.TextSimilarity,
		breakdown.VendorMatch,
	)
}

func invoiceLabel(inv matching.InvoiceRecord) string {
	if inv.InvoiceNumber != "" {
		return inv.InvoiceNumber
	}
	return inv.ID.String()
}

func transactionLabel(tx matching.TransactionRecord) string {
	if tx.Reference != "" {
		return tx.Reference
	}
	return tx.ID.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
