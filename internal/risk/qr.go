package risk

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// QR Payload Analyzer
//
// Parses upi://pay URIs (the payload of Indian payment QR codes) and scores
// the payment intent. The classic scam pattern is a "receive money" QR that
// actually debits the scanner, hence the always-on warning.

const QRWarning = "QR codes are used to SEND money, not receive money."

var qrHandleScamWords = []string{"support", "help", "refund", "cashback", "prize"}

// QRPayload is a parsed upi://pay URI.
type QRPayload struct {
	PayeeUPI   string  `json:"payeeUPI"`   // pa
	PayeeName  string  `json:"payeeName"`  // pn
	Amount     float64 `json:"amount"`     // am, 0 when absent
	Currency   string  `json:"currency"`   // cu
	RawPayload string  `json:"rawPayload"`
}

// ParseQRPayload parses any string beginning with upi://pay.
func ParseQRPayload(raw string) (*QRPayload, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(trimmed), "upi://pay") {
		return nil, fmt.Errorf("not a UPI payment QR payload")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("malformed UPI URI: %v", err)
	}

	query := parsed.Query()
	payload := &QRPayload{
		PayeeUPI:   strings.ToLower(query.Get("pa")),
		PayeeName:  query.Get("pn"),
		Currency:   query.Get("cu"),
		RawPayload: trimmed,
	}
	if am := query.Get("am"); am != "" {
		if value, err := strconv.ParseFloat(am, 64); err == nil && value > 0 {
			payload.Amount = value
		}
	}
	return payload, nil
}

// QRResult is the QR analyzer verdict.
type QRResult struct {
	Score      int                   `json:"score"` // 0-100
	Indicators []string              `json:"indicators"`
	Category   *models.FraudCategory `json:"category,omitempty"`
	Warning    string                `json:"warning"`
	Payload    *QRPayload            `json:"payload"`
}

// ScoreQRPayload scores a parsed payload. When a rule scorer is supplied,
// a synthetic QR-sourced transaction is dispatched through it and the
// stronger of the two scores wins.
func ScoreQRPayload(payload *QRPayload, scorer *RuleScorer) QRResult {
	result := QRResult{
		Indicators: []string{},
		Warning:    QRWarning,
		Payload:    payload,
		Category:   categoryByName("QR_SCAM"),
	}

	score := 0
	if payload.Amount > 0 {
		score += 30
		result.Indicators = append(result.Indicators, "QR pre-fills a payment amount")
		if payload.Amount > 5000 {
			score += 40
			result.Indicators = append(result.Indicators, "QR pre-fills a large amount (> Rs 5,000)")
		}
	}

	for _, word := range qrHandleScamWords {
		if strings.Contains(payload.PayeeUPI, word) {
			score += 30
			result.Indicators = append(result.Indicators, "Payee handle mimics a support/refund service")
			break
		}
	}

	if strings.TrimSpace(payload.PayeeName) == "" {
		score += 20
		result.Indicators = append(result.Indicators, "QR carries no merchant name")
	}

	if scorer != nil {
		synthetic := models.Transaction{
			ReceiverUPI: payload.PayeeUPI,
			Amount:      payload.Amount,
			Type:        models.TxTypeP2P,
			Source:      models.SourceQRScan,
			IsNewPayee:  true,
			Description: payload.RawPayload,
		}
		if txResult := scorer.Score(synthetic); txResult.Score > score {
			score = txResult.Score
			for _, ind := range txResult.Indicators {
				result.Indicators = appendUnique(result.Indicators, ind.Label)
			}
		}
	}

	if score > 100 {
		score = 100
	}
	result.Score = score
	return result
}
