package risk

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/upi-fraud-engine/internal/llm"
	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// midday pins the timestamp outside the midnight and late-night windows.
var midday = time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)

func TestRuleScorer_PatternWeights(t *testing.T) {
	scorer := NewRuleScorer(nil)

	tests := []struct {
		name     string
		tx       models.Transaction
		expected int
	}{
		{
			"Clean small payment",
			models.Transaction{Amount: 350, Type: models.TxTypeP2P, Timestamp: midday},
			0,
		},
		{
			"High amount",
			models.Transaction{Amount: 60500, Type: models.TxTypeP2M, Timestamp: midday},
			15, // highAmount
		},
		{
			"Very high round amount",
			models.Transaction{Amount: 250000, Type: models.TxTypeP2M, Timestamp: midday},
			45, // highAmount + veryHighAmount + roundAmount
		},
		{
			"Midnight transaction",
			models.Transaction{Amount: 350, Type: models.TxTypeP2M, Timestamp: time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)},
			23, // midnightTransaction + lateNightTransaction
		},
		{
			"New payee with pressure description",
			models.Transaction{Amount: 350, Type: models.TxTypeP2P, IsNewPayee: true, Description: "urgent kyc verify", Timestamp: midday},
			32, // newPayee + suspiciousDescription
		},
		{
			"Large P2P to auto-generated handle",
			models.Transaction{Amount: 15000, Type: models.TxTypeP2P, ReceiverUPI: "987654321012@ybl", Timestamp: midday},
			23, // roundAmount + p2pLargeTransfer + autoGeneratedUPI
		},
		{
			"Rapid QR payment",
			models.Transaction{Amount: 350, IsRapid: true, Source: models.SourceQRScan, Timestamp: midday},
			28, // rapidSuccession + qrCodeTransaction
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scorer.Score(tt.tx)
			if result.Score != tt.expected {
				t.Errorf("Score() = %d, want %d (indicators: %+v)", result.Score, tt.expected, result.Indicators)
			}
		})
	}
}

func TestRuleScorer_ScoreCap(t *testing.T) {
	scorer := NewRuleScorer(nil)
	tx := models.Transaction{
		Amount:      300000,
		Type:        models.TxTypeP2P,
		ReceiverUPI: "987654321012@ybl",
		Description: "urgent lottery prize claim",
		Source:      models.SourceQRScan,
		IsNewPayee:  true,
		IsRapid:     true,
		Timestamp:   time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC),
	}

	result := scorer.Score(tx)
	if result.Score != 100 {
		t.Errorf("Everything-wrong transaction must cap at 100, got %d", result.Score)
	}
}

func TestRuleScorer_SeverityBands(t *testing.T) {
	tests := []struct {
		weight   int
		expected string
	}{
		{25, "HIGH"},
		{15, "HIGH"},
		{12, "MEDIUM"},
		{10, "MEDIUM"},
		{8, "LOW"},
		{5, "LOW"},
	}
	for _, tt := range tests {
		if got := severityForWeight(tt.weight); got != tt.expected {
			t.Errorf("severityForWeight(%d) = %s, want %s", tt.weight, got, tt.expected)
		}
	}
}

func TestHasLongNumericPrefix(t *testing.T) {
	tests := []struct {
		upi      string
		expected bool
	}{
		{"987654321012@ybl", true},
		{"987654321@ybl", true}, // 9 digits
		{"98765432@ybl", false}, // exactly 8
		{"amit@oksbi", false},
		{"no-at-sign", false},
		{"12ab345678@ybl", false}, // digits interrupted
	}
	for _, tt := range tests {
		if got := hasLongNumericPrefix(tt.upi); got != tt.expected {
			t.Errorf("hasLongNumericPrefix(%q) = %v, want %v", tt.upi, got, tt.expected)
		}
	}
}

func TestQRScanSourceForcesQRCategory(t *testing.T) {
	scorer := NewRuleScorer(nil)
	result := scorer.Score(models.Transaction{
		Amount:    350,
		Source:    models.SourceQRScan,
		Timestamp: midday,
	})
	if result.Category == nil || result.Category.Name != "QR_SCAM" {
		t.Errorf("QR-sourced transaction must classify as QR_SCAM, got %+v", result.Category)
	}
}

type fakeAssessor struct {
	assessment *llm.TransactionAssessment
	err        error
}

func (f *fakeAssessor) AssessTransaction(_ context.Context, _ models.Transaction) (*llm.TransactionAssessment, error) {
	return f.assessment, f.err
}

func TestScoreWithAI_TakesMax(t *testing.T) {
	scorer := NewRuleScorer(&fakeAssessor{assessment: &llm.TransactionAssessment{
		RiskScore:  80,
		Indicators: []string{"Payee handle mimics customer support"},
	}})

	result := scorer.ScoreWithAI(context.Background(), models.Transaction{Amount: 350, Timestamp: midday})
	if result.Score != 80 {
		t.Errorf("Expected the stronger LLM score 80, got %d", result.Score)
	}
	if len(result.Indicators) == 0 {
		t.Error("Expected LLM indicators to be appended")
	}
}

func TestScoreWithAI_FailureDegradesToRules(t *testing.T) {
	scorer := NewRuleScorer(&fakeAssessor{err: context.DeadlineExceeded})
	result := scorer.ScoreWithAI(context.Background(), models.Transaction{Amount: 60500, Timestamp: midday})
	if result.Score != 15 {
		t.Errorf("Expected rule score 15 after LLM failure, got %d", result.Score)
	}
}
