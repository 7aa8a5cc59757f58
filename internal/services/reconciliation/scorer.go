package reconciliation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"invoice-reconciliation-backend/internal/services/explain"
	"invoice-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
)

// Candidate is one scored invoice/transaction pairing.
type Candidate struct {
	InvoiceID     uuid.UUID          `json:"invoiceId"`
	TransactionID uuid.UUID          `json:"transactionId"`
	Score         int                `json:"score"`
	Explanation   string             `json:"explanation"`
	Breakdown     matching.Breakdown `json:"scoreBreakdown"`
}

// CandidateScorer scores invoice/transaction sets for one tenant.
type CandidateScorer interface {
	ScoreCandidates(ctx context.Context, tenantID uuid.UUID, invoices []matching.InvoiceRecord, transactions []matching.TransactionRecord) ([]Candidate, error)
}

const (
	ScoringSourceRemote = "remote"
	ScoringSourceLocal  = "local"
)

// localCandidateLimit caps the fallback cross-product result set.
const localCandidateLimit = 50

// LocalScorer runs the deterministic engine over the full cross-product.
type LocalScorer struct{}

func (LocalScorer) ScoreCandidates(_ context.Context, _ uuid.UUID, invoices []matching.InvoiceRecord, transactions []matching.TransactionRecord) ([]Candidate, error) {
	var candidates []Candidate
	for _, inv := range invoices {
		for _, tx := range transactions {
			breakdown := matching.Score(inv, tx)
			if breakdown.Total <= 0 {
				continue
			}
			candidates = append(candidates, Candidate{
				InvoiceID:     inv.ID,
				TransactionID: tx.ID,
				Score:         breakdown.Total,
				Explanation:   explain.Deterministic(inv, tx, breakdown),
				Breakdown:     breakdown,
			})
		}
	}

	// Stable sort keeps cross-product insertion order on score ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > localCandidateLimit {
		candidates = candidates[:localCandidateLimit]
	}
	return candidates, nil
}

var (
	errScorerStatusCode   = errors.New("scoring service returned unexpected status code")
	errScorerDecodeFailed = errors.New("error decoding scoring service response")
)

// RemoteScorer delegates scoring to an external service over HTTP.
type RemoteScorer struct {
	httpClient *http.Client
	url        string
	topN       int
}

func NewRemoteScorer(url string, timeout time.Duration, topN int) *RemoteScorer {
	return &RemoteScorer{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		topN:       topN,
	}
}

type scoreRequest struct {
	TenantID     uuid.UUID                    `json:"tenantId"`
	Invoices     []matching.InvoiceRecord     `json:"invoices"`
	Transactions []matching.TransactionRecord `json:"transactions"`
	TopN         int                          `json:"topN"`
}

type scoreResponse struct {
	Candidates []Candidate `json:"candidates"`
}

func (s *RemoteScorer) ScoreCandidates(ctx context.Context, tenantID uuid.UUID, invoices []matching.InvoiceRecord, transactions []matching.TransactionRecord) ([]Candidate, error) {
	body, err := json.Marshal(scoreRequest{
		TenantID:     tenantID,
		Invoices:     invoices,
		Transactions: transactions,
		TopN:         s.topN,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", errScorerStatusCode, resp.StatusCode)
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", errScorerDecodeFailed, err)
	}
	return decoded.Candidates, nil
}

// Strategy prefers the remote scorer and falls back to local on any failure.
// Remote outages never surface to the caller.
type Strategy struct {
	remote CandidateScorer
	local  CandidateScorer
}

func NewStrategy(remote, local CandidateScorer) *Strategy {
	return &Strategy{remote: remote, local: local}
}

func (s *Strategy) Score(ctx context.Context, tenantID uuid.UUID, invoices []matching.InvoiceRecord, transactions []matching.TransactionRecord) ([]Candidate, string, error) {
	if s.remote != nil {
		candidates, err := s.remote.ScoreCandidates(ctx, tenantID, invoices, transactions)
		if err == nil {
			return candidates, ScoringSourceRemote, nil
		}
		log.Printf("remote scoring failed for tenant %s, falling back to local: %v", tenantID, err)
	}

	candidates, err := s.local.ScoreCandidates(ctx, tenantID, invoices, transactions)
	return candidates, ScoringSourceLocal, err
}
