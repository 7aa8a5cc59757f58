// Package matching implements the deterministic candidate scorer. Scoring is
// a pure function over normalized invoice and transaction records so local
// and remote scoring paths classify confidence identically.
package matching

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ExactAmountScore    = 1000
	DateProximityScore  = 300
	TextSimilarityScore = 200
	VendorMatchScore    = 100
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// InvoiceRecord is the normalized invoice shape fed into scoring.
type InvoiceRecord struct {
	ID            uuid.UUID       `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          *time.Time      `json:"date,omitempty"`
	Description   string          `json:"description"`
	VendorName    string          `json:"vendorName"`
	InvoiceNumber string          `json:"invoiceNumber,omitempty"`
	Currency      string          `json:"currency"`
}

// TransactionRecord is the normalized bank transaction shape fed into scoring.
type TransactionRecord struct {
	ID          uuid.UUID       `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	PostedAt    time.Time       `json:"date"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	Currency    string          `json:"currency,omitempty"`
}

// Breakdown is the component-wise score. Total always equals the sum of the
// components.
type Breakdown struct {
	ExactAmount    int `json:"exactAmount"`
	DateProximity  int `json:"dateProximity"`
	TextSimilarity int `json:"textSimilarity"`
	VendorMatch    int `json:"vendorMatch"`
	Total          int `json:"total"`
}

// Score computes the match score for one invoice/transaction pair.
func Score(inv InvoiceRecord, tx TransactionRecord) Breakdown {
	b := Breakdown{
		ExactAmount:    scoreExactAmount(inv.Amount, tx.Amount),
		DateProximity:  scoreDateProximity(inv.Date, tx.PostedAt),
		TextSimilarity: scoreTextSimilarity(inv.Description, tx.Description),
		VendorMatch:    scoreVendorMatch(inv.VendorName, tx.Description),
	}
	b.Total = b.ExactAmount + b.DateProximity + b.TextSimilarity + b.VendorMatch
	return b
}

// Confidence buckets a total score. The classification is independent of
// which scorer produced the number.
func Confidence(total int) string {
	switch {
	case total >= 1200:
		return ConfidenceHigh
	case total >= 600:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func scoreExactAmount(a, b decimal.Decimal) int {
	if a.Equal(b) {
		return ExactAmountScore
	}
	return 0
}

func scoreDateProximity(invoiceDate *time.Time, postedAt time.Time) int {
	if invoiceDate == nil || invoiceDate.IsZero() || postedAt.IsZero() {
		return 0
	}
	days := math.Abs(invoiceDate.Sub(postedAt).Hours() / 24)
	switch {
	case days <= 1:
		return DateProximityScore
	case days <= 3:
		return 200
	case days <= 7:
		return 100
	default:
		return 0
	}
}

func scoreTextSimilarity(a, b string) int {
	tokensA := tokenize(a)
	tokensB := tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setB := make(map[string]struct{}, len(tokensB))
	for _, tok := range tokensB {
		setB[tok] = struct{}{}
	}

	common := 0
	for _, tok := range tokensA {
		if _, ok := setB[tok]; ok {
			common++
		}
	}

	similarity := float64(common) / math.Max(float64(len(tokensA)), float64(len(tokensB)))
	return int(math.Round(similarity * TextSimilarityScore))
}

func scoreVendorMatch(vendorName, description string) int {
	vendor := cleanText(vendorName)
	desc := cleanText(description)
	if vendor == "" || desc == "" {
		return 0
	}
	if strings.Contains(desc, vendor) {
		return VendorMatchScore
	}
	return 0
}

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

func cleanText(s string) string {
	s = nonWordRe.ReplaceAllString(strings.ToLower(s), " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func tokenize(s string) []string {
	return strings.Fields(cleanText(s))
}
