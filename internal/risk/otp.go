package risk

import (
	"regexp"
	"strings"
)

// OTP Fraud Detector
//
// Detects OTP-solicitation language. A confirmed request is worth +40 risk
// points; combined with urgency amplifiers it escalates to +60. The detector
// is total: any input, including empty text, yields a zero result.

var otpRequestPhrases = []string{
	"share otp", "share the otp", "share your otp", "send otp", "send the otp",
	"tell me otp", "tell me the otp", "give me otp", "give otp",
	"verification code", "one time password", "enter otp", "provide otp",
	"otp received", "otp you received", "read out the otp",
}

var otpUrgencyWords = []string{
	"urgent", "now", "fast", "immediately", "asap", "right now", "quick",
}

var otpCodeRe = regexp.MustCompile(`\b\d{4,8}\b`)
var otpTokenRe = regexp.MustCompile(`(?i)\botp\b`)

// OTPResult carries the additive risk increment and any numeric code
// sightings found alongside OTP language.
type OTPResult struct {
	RiskIncrement int      `json:"riskIncrement"`
	Codes         []string `json:"codes"`
}

// DetectOTPFraud scans a message for OTP-request phrasing.
func DetectOTPFraud(text string) OTPResult {
	result := OTPResult{Codes: []string{}}
	if strings.TrimSpace(text) == "" {
		return result
	}

	lower := strings.ToLower(text)
	result.Codes = otpCodeRe.FindAllString(text, -1)
	if result.Codes == nil {
		result.Codes = []string{}
	}

	requested := false
	for _, phrase := range otpRequestPhrases {
		if strings.Contains(lower, phrase) {
			requested = true
			break
		}
	}
	// A bare "otp" token next to a numeric code is as good as a request.
	if !requested && otpTokenRe.MatchString(lower) && len(result.Codes) > 0 {
		requested = true
	}

	if !requested {
		return result
	}

	result.RiskIncrement = 40
	for _, word := range otpUrgencyWords {
		if strings.Contains(lower, word) {
			result.RiskIncrement = 60
			break
		}
	}
	return result
}
