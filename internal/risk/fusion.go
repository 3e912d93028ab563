package risk

import (
	"math"
	"strings"

	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// Risk Fusion
//
// Two fusion modes over the per-signal analyzer outputs.
//
// Mode A (max-signal): the fused score is the maximum of the available
// signals, used by scan-message and chat-send where any single strong
// signal should dominate.
//
// Mode B (advanced ML-fused): a weighted blend of the rule score and the
// external ML probability, used by validate-pay. A blacklist hit overrides
// everything to 100.

// FuseSignals combines any subset of text / transaction / QR signals into a
// single verdict (Mode A). Nil signals are simply absent.
func FuseSignals(text *TextResult, rule *RuleResult, qr *QRResult) models.RiskVerdict {
	score := 0
	indicators := []string{}
	var category *models.FraudCategory
	var reasoningParts []string

	if text != nil {
		textScore := int(math.Round(text.Confidence * 100))
		if textScore > score {
			score = textScore
		}
		indicators = appendUnique(indicators, text.Indicators...)
		if text.ScamType != "" && category == nil {
			category = categoryByName(text.ScamType)
		}
		if text.Reasoning != "" {
			reasoningParts = append(reasoningParts, text.Reasoning)
		}
	}

	if rule != nil {
		if rule.Score > score {
			score = rule.Score
		}
		for _, ind := range rule.Indicators {
			indicators = appendUnique(indicators, ind.Label)
		}
		if rule.Category != nil {
			category = rule.Category
		}
		if rule.Reasoning != "" {
			reasoningParts = append(reasoningParts, rule.Reasoning)
		}
	}

	if qr != nil {
		if qr.Score > score {
			score = qr.Score
		}
		indicators = appendUnique(indicators, qr.Indicators...)
		indicators = appendUnique(indicators, qr.Warning)
		if qr.Category != nil {
			category = qr.Category
		}
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	verdict := models.RiskVerdict{
		RiskScore:          score,
		RiskLevel:          models.BandForScore(score),
		FraudCategory:      category,
		Indicators:         indicators,
		RecommendedActions: RecommendedActions(score, category),
		Reasoning:          strings.Join(reasoningParts, " "),
	}
	if verdict.Reasoning == "" {
		verdict.Reasoning = defaultReasoning(verdict.RiskLevel, len(indicators))
	}
	return verdict
}

func defaultReasoning(level models.RiskLevel, indicatorCount int) string {
	switch level {
	case models.RiskCritical:
		return "Multiple strong fraud signals detected; treat this as an active scam."
	case models.RiskHigh:
		return "Strong fraud signals detected across the message and transaction."
	case models.RiskMedium:
		return "Some fraud signals present; proceed only after verification."
	default:
		if indicatorCount > 0 {
			return "Minor signals present but nothing indicating an active scam."
		}
		return "No fraud signals detected."
	}
}

// FuseAdvanced is Mode B. ruleScore is 0-100, mlProbability in [0,1] (pass 0
// when the ML service returned nothing). A blacklist hit returns 100
// unconditionally.
func FuseAdvanced(ruleScore int, mlProbability float64, isBlacklisted bool) (int, models.RiskLevel) {
	if isBlacklisted {
		return 100, models.RiskCritical
	}

	mlScore := mlProbability * 100

	wRule, wML := 0.6, 0.4
	if mlProbability > 0.9 {
		// High-ML-confidence boost.
		wRule, wML = 0.4, 0.6
	}

	score := wRule*float64(ruleScore) + wML*mlScore
	if ruleScore > 80 {
		score += 10 // rule-strong boost
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	final := int(math.Round(score))
	return final, models.BandForScore(final)
}

// FuseLinear is the unboosted blend exposed for callers that want the plain
// weighted form: existing*0.6 + mlScore*0.4.
func FuseLinear(existingScore int, mlProbability float64) int {
	score := float64(existingScore)*0.6 + mlProbability*100*0.4
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return int(math.Round(score))
}
