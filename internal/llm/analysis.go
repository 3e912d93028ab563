package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// Domain-specific prompt wrappers over the raw completions client.
//
// Every method is total from the pipeline's point of view: callers treat an
// error as "no LLM signal" and continue on the rule path alone.

// IdentifierExtraction is the structured-extraction result requested from
// the model for free-text payment messages.
type IdentifierExtraction struct {
	SenderUPI       string   `json:"senderUPI"`
	ReceiverUPI     string   `json:"receiverUPI"`
	UPIIDs          []string `json:"upiIds"`
	Amount          *float64 `json:"amount"`
	PhoneNumbers    []string `json:"phoneNumbers"`
	BankAccounts    []string `json:"bankAccounts"`
	Links           []string `json:"links"`
	TransactionType string   `json:"transactionType"`
	ScamType        string   `json:"scamType"`
	FraudIndicators []string `json:"fraudIndicators"`
}

const extractionSystemPrompt = `You are a payment-message parser for Indian UPI fraud screening.
Extract structured payment identifiers from the user's message.
Reply with ONLY a JSON object, no prose:
{"senderUPI":"", "receiverUPI":"", "upiIds":[], "amount":null, "phoneNumbers":[],
 "bankAccounts":[], "links":[], "transactionType":"P2P|P2M|COLLECT|REFUND|UNKNOWN",
 "scamType":"", "fraudIndicators":[]}
Phone numbers must be Indian mobiles normalized to +91XXXXXXXXXX.
UPI IDs look like name@provider. Leave fields empty when absent.`

// ExtractIdentifiers asks the model for structured payment identifiers.
func (c *Client) ExtractIdentifiers(ctx context.Context, text string) (*IdentifierExtraction, error) {
	var out IdentifierExtraction
	if err := c.CompleteJSON(ctx, extractionSystemPrompt, text, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScamVerdict is the model's judgement of a free-text message.
type ScamVerdict struct {
	IsScam     bool     `json:"isScam"`
	Confidence float64  `json:"confidence"` // [0,1]
	ScamType   string   `json:"scamType"`
	Indicators []string `json:"indicators"`
	Reasoning  string   `json:"reasoning"`
}

const scamVerdictSystemPrompt = `You are a fraud analyst for Indian UPI payment scams
(KYC phishing, OTP theft, lottery bait, fake job offers, impersonation, QR tricks).
Judge whether the user's message is part of a scam attempt.
Reply with ONLY JSON:
{"isScam":false,"confidence":0.0,"scamType":"","indicators":[],"reasoning":""}
confidence is your scam probability in [0,1].`

// ClassifyMessage asks the model whether a message is a scam attempt.
func (c *Client) ClassifyMessage(ctx context.Context, text string) (*ScamVerdict, error) {
	var out ScamVerdict
	if err := c.CompleteJSON(ctx, scamVerdictSystemPrompt, text, &out); err != nil {
		return nil, err
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return &out, nil
}

// TransactionAssessment is the model's risk augmentation for a normalized
// transaction, layered on top of the rule scorer.
type TransactionAssessment struct {
	RiskScore         int           `json:"riskScore"` // 0-100
	IsHighRisk        bool          `json:"isHighRisk"`
	FraudCategory     LooseCategory `json:"fraudCategory"`
	Reasoning         string        `json:"reasoning"`
	Indicators        []string      `json:"indicators"`
	RecommendedAction string        `json:"recommendedAction"`
	Confidence        float64       `json:"confidence"`
}

const transactionSystemPrompt = `You are a UPI transaction risk analyst.
Given a transaction summary, estimate fraud risk.
Reply with ONLY JSON:
{"riskScore":0,"isHighRisk":false,"fraudCategory":"","reasoning":"",
 "indicators":[],"recommendedAction":"","confidence":0.0}
riskScore is 0-100.`

// AssessTransaction asks the model to score a normalized transaction.
func (c *Client) AssessTransaction(ctx context.Context, tx models.Transaction) (*TransactionAssessment, error) {
	summary := fmt.Sprintf(
		"receiver=%s sender=%s amount=%.2f type=%s source=%s newPayee=%v description=%q",
		tx.ReceiverUPI, tx.SenderUPI, tx.Amount, tx.Type, tx.Source, tx.IsNewPayee, tx.Description)

	var out TransactionAssessment
	if err := c.CompleteJSON(ctx, transactionSystemPrompt, summary, &out); err != nil {
		return nil, err
	}
	if out.RiskScore < 0 {
		out.RiskScore = 0
	}
	if out.RiskScore > 100 {
		out.RiskScore = 100
	}
	return &out, nil
}

const victimReplySystemPrompt = `You are roleplaying an ordinary Indian person replying to a
suspicious payment-related chat message. Stay fully in character:
- Write 2 to 4 short sentences in simple conversational English.
- Never confirm that any payment was made.
- Never reveal that you suspect a scam or that you are automated.
- Ask a believable follow-up question to keep the other person talking.
- If asked for an OTP, PIN or password, stall and refuse without sounding alert.`

// VictimReply generates a believable human-victim reply for the honeypot.
// recentTurns provides short conversation context, oldest first.
func (c *Client) VictimReply(ctx context.Context, scammerText string, recentTurns []string) (string, error) {
	var sb strings.Builder
	if len(recentTurns) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range recentTurns {
			sb.WriteString(turn)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("They just sent: ")
	sb.WriteString(scammerText)
	sb.WriteString("\nYour reply:")

	return c.Complete(ctx, victimReplySystemPrompt, sb.String(), 0.8)
}

// LooseCategory accepts a fraud category as either a bare string or a
// {name, icon} object, normalizing to models.FraudCategory.
type LooseCategory struct {
	Category *models.FraudCategory
}

func (lc *LooseCategory) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if asString != "" {
			lc.Category = &models.FraudCategory{Name: asString}
		}
		return nil
	}

	var asObject models.FraudCategory
	if err := json.Unmarshal(data, &asObject); err == nil {
		if asObject.Name != "" {
			lc.Category = &asObject
		}
		return nil
	}

	// Null or an unexpected shape: treat as absent rather than failing the
	// whole assessment decode.
	lc.Category = nil
	return nil
}

func (lc LooseCategory) MarshalJSON() ([]byte, error) {
	if lc.Category == nil {
		return []byte("null"), nil
	}
	return json.Marshal(lc.Category)
}
