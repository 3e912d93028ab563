package risk

import (
	"strings"

	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// Fraud-category taxonomy. Attribution is keyword overlap on the
// concatenated sender/receiver/description/source text; QR_SCAN source
// overrides everything to QR_SCAM.

type taxonomyEntry struct {
	category models.FraudCategory
	keywords []string
}

var fraudTaxonomy = []taxonomyEntry{
	{models.FraudCategory{Name: "PHISHING", Icon: "🎣"},
		[]string{"kyc", "verify", "link", "click", "update", "blocked", "suspended", "account"}},
	{models.FraudCategory{Name: "QR_SCAM", Icon: "📷"},
		[]string{"qr", "scan", "qr_scan"}},
	{models.FraudCategory{Name: "OTP_FRAUD", Icon: "🔑"},
		[]string{"otp", "one time password", "verification code", "pin"}},
	{models.FraudCategory{Name: "VISHING", Icon: "📞"},
		[]string{"call", "phone", "customer care", "helpline", "phone_call"}},
	{models.FraudCategory{Name: "LOTTERY_SCAM", Icon: "🎰"},
		[]string{"lottery", "prize", "winner", "lucky", "draw", "jackpot"}},
	{models.FraudCategory{Name: "JOB_SCAM", Icon: "💼"},
		[]string{"job", "salary", "work from home", "part time", "hiring", "registration fee"}},
	{models.FraudCategory{Name: "IMPERSONATION", Icon: "🎭"},
		[]string{"officer", "police", "bank manager", "income tax", "customs", "government", "rbi"}},
	{models.FraudCategory{Name: "REMOTE_ACCESS", Icon: "🖥️"},
		[]string{"anydesk", "teamviewer", "screen share", "remote", "install app"}},
	{models.FraudCategory{Name: "INVESTMENT_SCAM", Icon: "📈"},
		[]string{"investment", "returns", "double", "profit", "trading", "crypto", "stock tips"}},
}

// classifyFraudCategory picks the taxonomy entry with the highest keyword
// overlap, or nil when nothing matches.
func classifyFraudCategory(tx models.Transaction) *models.FraudCategory {
	if tx.Source == models.SourceQRScan {
		for _, entry := range fraudTaxonomy {
			if entry.category.Name == "QR_SCAM" {
				cat := entry.category
				return &cat
			}
		}
	}

	haystack := strings.ToLower(strings.Join([]string{
		tx.SenderUPI, tx.ReceiverUPI, tx.Description, string(tx.Source),
	}, " "))

	var best *models.FraudCategory
	bestHits := 0
	for _, entry := range fraudTaxonomy {
		hits := 0
		for _, kw := range entry.keywords {
			if strings.Contains(haystack, kw) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			cat := entry.category
			best = &cat
		}
	}
	return best
}

// categoryByName resolves a taxonomy entry from a loose name (LLM output or
// extractor scam-type guess), filling in the icon when the name is known.
func categoryByName(name string) *models.FraudCategory {
	if name == "" {
		return nil
	}
	upper := strings.ToUpper(strings.TrimSpace(name))
	upper = strings.ReplaceAll(upper, " ", "_")
	for _, entry := range fraudTaxonomy {
		if entry.category.Name == upper {
			cat := entry.category
			return &cat
		}
	}
	return &models.FraudCategory{Name: upper}
}

// normalizeCategory maps an externally supplied category onto the taxonomy
// so persisted categories always carry an icon when we know one.
func normalizeCategory(cat *models.FraudCategory) *models.FraudCategory {
	if cat == nil {
		return nil
	}
	resolved := categoryByName(cat.Name)
	if resolved != nil && resolved.Icon == "" && cat.Icon != "" {
		resolved.Icon = cat.Icon
	}
	return resolved
}
