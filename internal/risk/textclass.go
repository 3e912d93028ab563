package risk

import (
	"context"
	"log"
	"math"
	"strings"

	"github.com/rawblock/upi-fraud-engine/internal/llm"
)

// Scam Text Classifier
//
// Weighted category lexicon over raw message text. Each category counts at
// most once per message; the rule score is the capped weight sum. The URL
// and OTP sub-analyzers contribute additive boosts, and an optional LLM
// verdict is fused with the rule dominating when it is confident.

const DefaultScamThreshold = 0.4

type lexiconCategory struct {
	name    string
	weight  float64
	phrases []string
}

var scamLexicon = []lexiconCategory{
	{"urgency", 0.4, []string{
		"urgent", "immediately", "act now", "within 24 hours", "expires today",
		"last chance", "hurry", "right now", "final warning",
	}},
	{"threats", 0.5, []string{
		"blocked", "suspended", "legal action", "police", "arrest", "court",
		"penalty", "fine", "account will be closed", "deactivated",
	}},
	{"financialRequest", 0.5, []string{
		"pay me", "send me", "send money", "transfer money", "pay now",
		"payment required", "processing fee", "registration fee", "claim fee",
		"advance payment", "security deposit",
	}},
	{"impersonation", 0.4, []string{
		"bank officer", "bank manager", "customer care", "income tax",
		"customs", "rbi official", "government official", "courier company",
		"electricity board",
	}},
	{"rewards", 0.3, []string{
		"lottery", "prize", "winner", "cashback", "lucky draw", "reward",
		"congratulations you", "you have won", "gift card",
	}},
	{"verification", 0.3, []string{
		"kyc", "verify your", "verification", "re-verify", "update your details",
		"confirm your identity", "validate your account",
	}},
	{"jobScam", 0.5, []string{
		"work from home", "part time job", "earn daily", "no experience",
		"hiring", "salary upto", "job offer", "easy income",
	}},
}

// TextResult is the classifier output for one message.
type TextResult struct {
	IsScam     bool     `json:"isScam"`
	Confidence float64  `json:"confidence"` // [0,1], rounded to 2 decimals
	RuleScore  float64  `json:"ruleScore"`  // rule-only portion, pre-boost
	ScamType   string   `json:"scamType,omitempty"`
	Indicators []string `json:"indicators"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// ScamJudge is the optional LLM collaborator. *llm.Client satisfies it.
type ScamJudge interface {
	ClassifyMessage(ctx context.Context, text string) (*llm.ScamVerdict, error)
}

// TextClassifier scores free text for scam likelihood.
type TextClassifier struct {
	AI        ScamJudge
	URLs      *URLAnalyzer
	Threshold float64
}

func NewTextClassifier(ai ScamJudge, urls *URLAnalyzer, threshold float64) *TextClassifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultScamThreshold
	}
	return &TextClassifier{AI: ai, URLs: urls, Threshold: threshold}
}

// Classify runs the lexicon, the URL and OTP boosts, and the optional LLM
// fusion. A failed LLM call degrades to the rule result.
func (c *TextClassifier) Classify(ctx context.Context, text string) TextResult {
	result := TextResult{Indicators: []string{}}
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return result
	}

	ruleScore := 0.0
	for _, cat := range scamLexicon {
		for _, phrase := range cat.phrases {
			if strings.Contains(lower, phrase) {
				ruleScore += cat.weight
				result.Indicators = append(result.Indicators, "Scam language: "+cat.name)
				break // each category counts once
			}
		}
	}
	if ruleScore > 1.0 {
		ruleScore = 1.0
	}
	result.RuleScore = ruleScore

	finalConfidence := ruleScore

	// LLM fusion: the rule path dominates a dissenting model when it is
	// already confident; otherwise take the stronger signal.
	if c.AI != nil {
		verdict, err := c.AI.ClassifyMessage(ctx, text)
		if err != nil {
			log.Printf("[TextClassifier] LLM verdict unavailable: %v", err)
		} else {
			if ruleScore > DefaultScamThreshold && !verdict.IsScam {
				// Keep the rule confidence.
			} else if verdict.Confidence > finalConfidence {
				finalConfidence = verdict.Confidence
			}
			if verdict.ScamType != "" {
				result.ScamType = verdict.ScamType
			}
			result.Indicators = appendUnique(result.Indicators, verdict.Indicators...)
			if verdict.Reasoning != "" {
				result.Reasoning = verdict.Reasoning
			}
		}
	}

	// OTP sub-detector boost.
	otp := DetectOTPFraud(text)
	if otp.RiskIncrement > 0 {
		finalConfidence += float64(otp.RiskIncrement) / 100.0
		result.Indicators = appendUnique(result.Indicators, "OTP solicitation detected")
		if result.ScamType == "" {
			result.ScamType = "OTP_FRAUD"
		}
	}

	// URL sub-analyzer boost.
	if c.URLs != nil {
		urlResult := c.URLs.Analyze(ctx, text)
		if urlResult.RiskIncrement > 0 {
			finalConfidence += float64(urlResult.RiskIncrement) / 100.0
			result.Indicators = appendUnique(result.Indicators, urlResult.Indicators...)
		}
	}

	if finalConfidence > 1.0 {
		finalConfidence = 1.0
	}
	result.Confidence = math.Round(finalConfidence*100) / 100
	result.IsScam = result.Confidence >= c.Threshold
	return result
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		dst = append(dst, v)
	}
	return dst
}
