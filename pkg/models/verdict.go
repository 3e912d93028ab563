package models

// RiskLevel is the four-band classification derived from the 0-100 risk score.
// Band boundaries: LOW < 40 <= MEDIUM < 70 <= HIGH < 85 <= CRITICAL.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// BandForScore maps a 0-100 risk score to its risk level.
func BandForScore(score int) RiskLevel {
	switch {
	case score >= 85:
		return RiskCritical
	case score >= 70:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// FraudCategory names a scam taxonomy entry. Icon is a UI adornment and may
// be empty when the category came from a loose LLM string.
type FraudCategory struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// RiskVerdict is the fused output of the risk pipeline. Indicators are
// de-duplicated preserving insertion order. MLProbability is only present
// when the external ML service contributed.
type RiskVerdict struct {
	RiskScore          int            `json:"riskScore"` // 0-100
	RiskLevel          RiskLevel      `json:"riskLevel"`
	FraudCategory      *FraudCategory `json:"fraudCategory,omitempty"`
	Indicators         []string       `json:"indicators"`
	RecommendedActions []string       `json:"recommendedActions"`
	Reasoning          string         `json:"reasoning"`
	MLProbability      *float64       `json:"mlProbability,omitempty"` // [0,1]
}
