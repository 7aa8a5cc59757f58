package explain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"invoice-reconciliation-backend/internal/services/matching"

	"github.com/shopspring/decimal"
)

type stubProvider struct {
	answer string
	err    error
}

func (s stubProvider) Generate(context.Context, string) (string, error) {
	return s.answer, s.err
}

func sampleRecords() (matching.InvoiceRecord, matching.TransactionRecord) {
	invDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	inv := matching.InvoiceRecord{
		Amount:        decimal.RequireFromString("1500.00"),
		Date:          &invDate,
		Description:   "consulting services",
		InvoiceNumber: "INV-100",
		Currency:      "USD",
	}
	tx := matching.TransactionRecord{
		Amount:      decimal.RequireFromString("1500.00"),
		PostedAt:    time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		Description: "consulting services",
		Reference:   "REF-7",
	}
	return inv, tx
}

func TestDeterministicTemplates(t *testing.T) {
	inv, tx := sampleRecords()

	tests := []struct {
		name      string
		breakdown matching.Breakdown
		contains  string
	}{
		{
			name:      "identical amounts use the perfect match template",
			breakdown: matching.Breakdown{ExactAmount: 1000, DateProximity: 300, TextSimilarity: 200, Total: 1500},
			contains:  "Perfect match: Invoice INV-100 and transaction REF-7 have identical amounts of 1500.00 USD.",
		},
		{
			name:      "strong match names the contributing signals",
			breakdown: matching.Breakdown{DateProximity: 300, TextSimilarity: 200, VendorMatch: 100, Total: 1250},
			contains:  "Strong match: Amount 1500.00 USD with similar dates and matching descriptions.",
		},
		{
			name:      "good match cites amount closeness",
			breakdown: matching.Breakdown{DateProximity: 300, TextSimilarity: 200, Total: 900},
			contains:  "Good match: Amounts are close (1500.00 vs 1500.00)",
		},
		{
			name:      "mid-range score requires review",
			breakdown: matching.Breakdown{DateProximity: 300, TextSimilarity: 150, Total: 450},
			contains:  "Potential match: Some similarities found but requires review.",
		},
		{
			name:      "weak score is low confidence",
			breakdown: matching.Breakdown{DateProximity: 100, Total: 100},
			contains:  "Low confidence match: Minimal similarities detected.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Deterministic(inv, tx, tc.breakdown)
			if !strings.Contains(got, tc.contains) {
				t.Errorf("Deterministic() = %q, want it to contain %q", got, tc.contains)
			}
		})
	}
}

func TestExplainWithoutProvider(t *testing.T) {
	inv, tx := sampleRecords()
	g := NewGenerator(nil)

	breakdown := matching.Breakdown{ExactAmount: 1000, DateProximity: 300, Total: 1300}
	result := g.Explain(context.Background(), inv, tx, breakdown)

	if result.AIGenerated {
		t.Error("AIGenerated = true, want false without a provider")
	}
	if result.Confidence != matching.ConfidenceHigh {
		t.Errorf("Confidence = %q, want %q", result.Confidence, matching.ConfidenceHigh)
	}
	if !strings.HasPrefix(result.Explanation, "Perfect match:") {
		t.Errorf("Explanation = %q, want perfect match template", result.Explanation)
	}
}

func TestExplainProviderFailureFallsBack(t *testing.T) {
	inv, tx := sampleRecords()
	g := NewGenerator(stubProvider{err: errors.New("timeout")})

	breakdown := matching.Breakdown{DateProximity: 300, Total: 300}
	result := g.Explain(context.Background(), inv, tx, breakdown)

	if result.AIGenerated {
		t.Error("AIGenerated = true, want false after provider failure")
	}
	if result.Confidence != matching.ConfidenceLow {
		t.Errorf("Confidence = %q, want %q", result.Confidence, matching.ConfidenceLow)
	}
	if result.Explanation == "" {
		t.Error("Explanation is empty, want deterministic fallback")
	}
}

func TestExplainProviderSuccess(t *testing.T) {
	inv, tx := sampleRecords()
	g := NewGenerator(stubProvider{answer: "These records line up on amount and date."})

	breakdown := matching.Breakdown{DateProximity: 300, TextSimilarity: 150, Total: 450}
	result := g.Explain(context.Background(), inv, tx, breakdown)

	if !result.AIGenerated {
		t.Error("AIGenerated = false, want true on provider success")
	}
	if result.Explanation != "These records line up on amount and date." {
		t.Errorf("Explanation = %q, want provider answer", result.Explanation)
	}
	// Confidence comes from the score, never from the provider.
	if result.Confidence != matching.ConfidenceLow {
		t.Errorf("Confidence = %q, want %q", result.Confidence, matching.ConfidenceLow)
	}
}
