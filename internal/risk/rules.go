package risk

import (
	"context"
	"log"
	"strings"

	"github.com/rawblock/upi-fraud-engine/internal/llm"
	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// Transaction Rule Scorer
//
// Scores a normalized transaction against a fixed pattern library. Each
// pattern contributes a weight; the sum is capped at 100. The pattern and
// taxonomy tables are read-only after init and shared process-wide.
//
// Severity per indicator: HIGH (weight >= 15), MEDIUM (>= 10), LOW otherwise.

// Indicator is one triggered pattern.
type Indicator struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Severity string `json:"severity"` // HIGH/MEDIUM/LOW
}

// RuleResult is the rule scorer output for one transaction.
type RuleResult struct {
	Score      int                   `json:"score"` // 0-100
	Indicators []Indicator           `json:"indicators"`
	Category   *models.FraudCategory `json:"category,omitempty"`
	Reasoning  string                `json:"reasoning,omitempty"`
}

type txPattern struct {
	id        string
	label     string
	weight    int
	predicate func(tx models.Transaction) bool
}

var suspiciousDescriptionWords = []string{
	"urgent", "immediately", "otp", "kyc", "verify", "blocked", "suspended",
	"lottery", "prize", "winner", "claim", "refund", "cashback", "reward",
	"lucky", "selected", "offer", "fine", "penalty", "police", "arrest",
	"court", "legal",
}

var txPatterns = []txPattern{
	{
		id: "highAmount", label: "High transaction amount (> Rs 50,000)", weight: 15,
		predicate: func(tx models.Transaction) bool { return tx.Amount > 50000 },
	},
	{
		id: "veryHighAmount", label: "Very high transaction amount (> Rs 2,00,000)", weight: 25,
		predicate: func(tx models.Transaction) bool { return tx.Amount > 200000 },
	},
	{
		id: "roundAmount", label: "Suspiciously round amount", weight: 5,
		predicate: func(tx models.Transaction) bool {
			return tx.Amount >= 1000 && int64(tx.Amount)%1000 == 0 && tx.Amount == float64(int64(tx.Amount))
		},
	},
	{
		id: "midnightTransaction", label: "Transaction initiated between midnight and 5 AM", weight: 15,
		predicate: func(tx models.Transaction) bool {
			h := tx.NormalizedTimestamp().Hour()
			return h >= 0 && h < 5
		},
	},
	{
		id: "lateNightTransaction", label: "Late-night transaction", weight: 8,
		predicate: func(tx models.Transaction) bool {
			h := tx.NormalizedTimestamp().Hour()
			return h >= 22 || h < 6
		},
	},
	{
		id: "newPayee", label: "First payment to this payee", weight: 12,
		predicate: func(tx models.Transaction) bool { return tx.IsNewPayee },
	},
	{
		id: "suspiciousDescription", label: "Description contains scam-pressure language", weight: 20,
		predicate: func(tx models.Transaction) bool {
			desc := strings.ToLower(tx.Description)
			for _, word := range suspiciousDescriptionWords {
				if strings.Contains(desc, word) {
					return true
				}
			}
			return false
		},
	},
	{
		id: "p2pLargeTransfer", label: "Large person-to-person transfer", weight: 8,
		predicate: func(tx models.Transaction) bool {
			return tx.Type == models.TxTypeP2P && tx.Amount > 10000
		},
	},
	{
		id: "rapidSuccession", label: "Multiple payments in rapid succession", weight: 18,
		predicate: func(tx models.Transaction) bool { return tx.IsRapid },
	},
	{
		id: "autoGeneratedUPI", label: "Receiver UPI looks auto-generated", weight: 10,
		predicate: func(tx models.Transaction) bool { return hasLongNumericPrefix(tx.ReceiverUPI) },
	},
	{
		id: "qrCodeTransaction", label: "Payment initiated from a QR code", weight: 10,
		predicate: func(tx models.Transaction) bool { return tx.Source == models.SourceQRScan },
	},
}

// hasLongNumericPrefix reports whether the local part of a UPI handle starts
// with more than 8 digits, a signature of bulk-generated scam VPAs.
func hasLongNumericPrefix(upiID string) bool {
	at := strings.Index(upiID, "@")
	if at < 0 {
		return false
	}
	local := upiID[:at]
	digits := 0
	for _, r := range local {
		if r < '0' || r > '9' {
			break
		}
		digits++
	}
	return digits > 8
}

func severityForWeight(weight int) string {
	switch {
	case weight >= 15:
		return "HIGH"
	case weight >= 10:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// TransactionAssessor is the optional LLM augmentation. *llm.Client
// satisfies it.
type TransactionAssessor interface {
	AssessTransaction(ctx context.Context, tx models.Transaction) (*llm.TransactionAssessment, error)
}

// RuleScorer evaluates transactions against the pattern library, with an
// optional LLM second opinion. A nil AI disables augmentation.
type RuleScorer struct {
	AI TransactionAssessor
}

func NewRuleScorer(ai TransactionAssessor) *RuleScorer {
	return &RuleScorer{AI: ai}
}

// Score runs the pure rule path: pattern weights plus category attribution.
func (s *RuleScorer) Score(tx models.Transaction) RuleResult {
	result := RuleResult{Indicators: []Indicator{}}

	total := 0
	for _, p := range txPatterns {
		if !p.predicate(tx) {
			continue
		}
		total += p.weight
		result.Indicators = append(result.Indicators, Indicator{
			ID:       p.id,
			Label:    p.label,
			Severity: severityForWeight(p.weight),
		})
	}
	if total > 100 {
		total = 100
	}
	result.Score = total
	result.Category = classifyFraudCategory(tx)
	return result
}

// ScoreWithAI combines the rule score with the LLM assessment when one is
// configured: finalScore = max(rule, llm), LLM indicators appended. Any LLM
// failure degrades to the rule result.
func (s *RuleScorer) ScoreWithAI(ctx context.Context, tx models.Transaction) RuleResult {
	result := s.Score(tx)
	if s.AI == nil {
		return result
	}

	assessment, err := s.AI.AssessTransaction(ctx, tx)
	if err != nil {
		log.Printf("[RuleScorer] LLM assessment unavailable: %v", err)
		return result
	}

	if assessment.RiskScore > result.Score {
		result.Score = assessment.RiskScore
	}
	for _, ind := range assessment.Indicators {
		result.Indicators = append(result.Indicators, Indicator{
			ID:       "llm",
			Label:    ind,
			Severity: severityForWeight(10),
		})
	}
	if assessment.FraudCategory.Category != nil {
		result.Category = normalizeCategory(assessment.FraudCategory.Category)
	}
	if assessment.Reasoning != "" {
		result.Reasoning = assessment.Reasoning
	}
	return result
}
