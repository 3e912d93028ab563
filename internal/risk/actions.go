package risk

import "github.com/rawblock/upi-fraud-engine/pkg/models"

// Recommended-actions policy: band actions from the final score plus
// category-specific adjuncts, de-duplicated preserving order.

func bandActions(score int) []string {
	switch {
	case score >= 75:
		return []string{
			"BLOCK this transaction immediately",
			"Call your bank's fraud helpline",
			"Report to Cyber Crime helpline: 1930",
			"Change your UPI PIN immediately",
		}
	case score >= 50:
		return []string{
			"Hold this transaction and verify the payee",
			"Call the payee on a known number before paying",
			"Never share OTP or UPI PIN",
		}
	case score >= 25:
		return []string{
			"Review transaction details carefully",
			"Verify the receiver",
			"Ensure you are on official app",
		}
	default:
		return []string{
			"Transaction appears safe",
			"Always verify before large transfers",
		}
	}
}

var categoryActions = map[string][]string{
	"QR_SCAM": {
		"Never scan QR codes sent by strangers",
		"QR codes are for PAYING, not RECEIVING",
	},
	"OTP_FRAUD": {
		"NEVER share OTP",
	},
	"PHISHING": {
		"Do NOT click suspicious links",
	},
	"VISHING": {
		"Hang up and call your bank on the official number",
	},
}

// RecommendedActions derives the user-facing action list for a final score
// and optional fraud category.
func RecommendedActions(score int, category *models.FraudCategory) []string {
	actions := appendUnique([]string{}, bandActions(score)...)
	if category != nil {
		actions = appendUnique(actions, categoryActions[category.Name]...)
	}
	return actions
}
