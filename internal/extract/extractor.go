package extract

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/rawblock/upi-fraud-engine/internal/llm"
	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// Identifier Extractor
//
// Pulls structured payment identifiers out of free text: UPI IDs, Indian
// phone numbers, rupee amounts, context-qualified bank accounts and URLs.
// The rule path always runs; when an LLM is configured its structured
// extraction is merged on top (LLM values win on scalar conflicts, list
// fields are unioned).
//
// Ordering constraint: bank accounts are extracted before phone numbers so
// that digit slices of an account are never re-emitted as phones.

var ErrEmptyMessage = errors.New("Empty message")

// Result is the full extraction record for one message.
type Result struct {
	SenderUPI       string                   `json:"senderUPI,omitempty"`
	ReceiverUPI     string                   `json:"receiverUPI,omitempty"`
	AllUPIIDs       []string                 `json:"allUpiIds"`
	Amount          *float64                 `json:"amount,omitempty"`
	PhoneNumbers    []string                 `json:"phoneNumbers"`
	BankAccounts    []string                 `json:"bankAccounts"`
	Links           []string                 `json:"links"`
	TransactionType models.TransactionType   `json:"transactionType"`
	Source          models.TransactionSource `json:"source"`
	Description     string                   `json:"description"`
	IsNewPayee      bool                     `json:"isNewPayee"`
	FraudIndicators []string                 `json:"fraudIndicators"`
	ScamType        string                   `json:"scamType,omitempty"`
	RawMessage      string                   `json:"-"`
	AIExtracted     bool                     `json:"aiExtracted"`
}

// AIExtractor is the optional LLM collaborator. *llm.Client satisfies it.
type AIExtractor interface {
	ExtractIdentifiers(ctx context.Context, text string) (*llm.IdentifierExtraction, error)
}

// Extractor runs the rule path and optionally merges an LLM extraction.
// A nil AI field disables the LLM path entirely.
type Extractor struct {
	AI AIExtractor
}

func New(ai AIExtractor) *Extractor {
	return &Extractor{AI: ai}
}

// knownProviders is the UPI handle allowlist. Handles outside this list are
// still accepted when the provider part is short (<= 6 chars), which filters
// out full email domains like gmail.com.
var knownProviders = map[string]bool{
	"ybl": true, "oksbi": true, "paytm": true, "okicici": true,
	"okhdfcbank": true, "axl": true, "apl": true, "upi": true,
	"ibl": true, "sbi": true, "kotak": true, "idfcfirst": true,
	"okaxis": true, "yapl": true, "freecharge": true, "airtel": true,
	"jupiteraxis": true,
}

// Hosts that never count as suspicious links.
var legitimateHosts = map[string]bool{
	"google.com": true, "facebook.com": true, "whatsapp.com": true,
	"www.google.com": true, "www.facebook.com": true, "www.whatsapp.com": true,
}

var (
	upiRe = regexp.MustCompile(`[A-Za-z0-9._-]+@[A-Za-z0-9]+`)

	bankAccountRe = regexp.MustCompile(`(?i)\b(?:account|a/c|ac|acct)\s*(?:no|number|#)?\s*[:.\-]?\s*(\d{9,18})\b`)

	phoneRe = regexp.MustCompile(`(?:\+91[\-\s]?|91|0)?[6-9][0-9]{9}`)

	amountPrefixRe  = regexp.MustCompile(`(?i)(?:rs\.?|inr|₹)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	amountSuffixRe  = regexp.MustCompile(`(?i)\b([0-9][0-9,]*(?:\.[0-9]+)?)\s*(?:rs\b|rupees|inr|₹)`)
	amountContextRe = regexp.MustCompile(`(?i)\b(?:amount|pay|transfer|send|sending|receive|debit|credit)\b\D{0,24}?([0-9][0-9,]*(?:\.[0-9]+)?)`)

	fullURLRe = regexp.MustCompile(`https?://[^\s<>"']+`)
	bareURLRe = regexp.MustCompile(`\b[a-zA-Z0-9][a-zA-Z0-9\-]*\.(?:com|in|org|net|xyz|top|click|info|co|online|site|website|link|shop)(?:/[^\s<>"']*)?`)
)

// Extract runs the full extraction pipeline on a raw message.
func (e *Extractor) Extract(ctx context.Context, text string) (*Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}

	result := e.extractWithRules(trimmed)

	if e.AI != nil {
		aiResult, err := e.AI.ExtractIdentifiers(ctx, trimmed)
		if err != nil {
			log.Printf("[Extractor] LLM extraction failed, using rule result only: %v", err)
		} else if aiResult != nil {
			mergeAIExtraction(result, aiResult)
		}
	}

	return result, nil
}

func (e *Extractor) extractWithRules(text string) *Result {
	result := &Result{
		RawMessage:  text,
		Description: text,
		IsNewPayee:  true,
		Source:      detectSource(text),
	}

	result.AllUPIIDs = extractUPIIDs(text)
	result.SenderUPI, result.ReceiverUPI = assignUPIRoles(text, result.AllUPIIDs)

	// Bank accounts first: their digit slices are masked out of the phone
	// candidates below.
	result.BankAccounts = extractBankAccounts(text)
	result.PhoneNumbers = extractPhones(text, result.BankAccounts)

	result.Amount = extractAmount(text)
	result.Links = extractLinks(text)
	result.TransactionType = detectTransactionType(text, result)
	result.FraudIndicators, result.ScamType = scanFraudMarkers(text)

	if result.AllUPIIDs == nil {
		result.AllUPIIDs = []string{}
	}
	if result.PhoneNumbers == nil {
		result.PhoneNumbers = []string{}
	}
	if result.BankAccounts == nil {
		result.BankAccounts = []string{}
	}
	if result.Links == nil {
		result.Links = []string{}
	}
	if result.FraudIndicators == nil {
		result.FraudIndicators = []string{}
	}
	return result
}

func extractUPIIDs(text string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, loc := range upiRe.FindAllStringIndex(text, -1) {
		id := strings.ToLower(text[loc[0]:loc[1]])
		parts := strings.SplitN(id, "@", 2)
		if len(parts) != 2 {
			continue
		}
		provider := parts[1]
		// An email address continues with ".tld" right after the match.
		if loc[1]+1 < len(text) && text[loc[1]] == '.' && isLetter(text[loc[1]+1]) {
			continue
		}
		if !knownProviders[provider] && len(provider) > 6 {
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// assignUPIRoles decides which extracted UPI is the sender vs the receiver.
// A handle introduced with "my upi" or "from" belongs to the sender; the
// first remaining handle is treated as the payee.
func assignUPIRoles(text string, ids []string) (sender, receiver string) {
	lower := strings.ToLower(text)
	for _, id := range ids {
		idx := strings.Index(lower, id)
		if idx < 0 {
			continue
		}
		prefixStart := idx - 24
		if prefixStart < 0 {
			prefixStart = 0
		}
		prefix := lower[prefixStart:idx]
		if strings.Contains(prefix, "my upi") || strings.Contains(prefix, "from ") {
			if sender == "" {
				sender = id
			}
			continue
		}
		if receiver == "" {
			receiver = id
		}
	}
	if receiver == "" && sender == "" && len(ids) > 0 {
		receiver = ids[0]
	}
	return sender, receiver
}

func extractBankAccounts(text string) []string {
	var accounts []string
	seen := make(map[string]bool)
	for _, groups := range bankAccountRe.FindAllStringSubmatch(text, -1) {
		acct := groups[1]
		if !seen[acct] {
			seen[acct] = true
			accounts = append(accounts, acct)
		}
	}
	return accounts
}

func extractPhones(text string, bankAccounts []string) []string {
	var phones []string
	seen := make(map[string]bool)

	for _, loc := range phoneRe.FindAllStringIndex(text, -1) {
		// Reject candidates embedded in a longer digit run.
		if loc[0] > 0 && isDigit(text[loc[0]-1]) {
			continue
		}
		if loc[1] < len(text) && isDigit(text[loc[1]]) {
			continue
		}
		// The local part of a UPI handle (9876543210@ybl) is not a phone.
		if loc[1] < len(text) && text[loc[1]] == '@' {
			continue
		}

		digits := digitsOnly(text[loc[0]:loc[1]])
		local := digits
		if len(local) == 12 && strings.HasPrefix(local, "91") {
			local = local[2:]
		} else if len(local) == 11 && strings.HasPrefix(local, "0") {
			local = local[1:]
		}
		if len(local) != 10 || local[0] < '6' || local[0] > '9' {
			continue
		}

		// A digit slice of an already-extracted bank account is not a phone.
		if isAccountSlice(local, bankAccounts) {
			continue
		}

		normalized := "+91" + local
		if !seen[normalized] {
			seen[normalized] = true
			phones = append(phones, normalized)
		}
	}
	return phones
}

func isAccountSlice(digits string, accounts []string) bool {
	for _, acct := range accounts {
		if strings.Contains(acct, digits) {
			return true
		}
	}
	return false
}

func extractAmount(text string) *float64 {
	for _, re := range []*regexp.Regexp{amountPrefixRe, amountSuffixRe, amountContextRe} {
		groups := re.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		raw := strings.ReplaceAll(groups[1], ",", "")
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if value > 0 && value < 1e8 {
			return &value
		}
	}
	return nil
}

func extractLinks(text string) []string {
	var links []string
	seen := make(map[string]bool)

	add := func(link string) {
		link = strings.TrimRight(link, ".,;:!?)")
		host := hostOf(link)
		if host == "" || legitimateHosts[host] {
			return
		}
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	}

	covered := make([][]int, 0)
	for _, loc := range fullURLRe.FindAllStringIndex(text, -1) {
		covered = append(covered, loc)
		add(text[loc[0]:loc[1]])
	}

	// Bare domain.tld/path forms that were not part of a full URL above.
	for _, loc := range bareURLRe.FindAllStringIndex(text, -1) {
		overlaps := false
		for _, c := range covered {
			if loc[0] >= c[0] && loc[0] < c[1] {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		// Skip UPI handles and email-like tokens (preceded by '@' context).
		if loc[0] > 0 && text[loc[0]-1] == '@' {
			continue
		}
		add(text[loc[0]:loc[1]])
	}
	return links
}

func hostOf(link string) string {
	host := link
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	return strings.ToLower(host)
}

func detectSource(text string) models.TransactionSource {
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "upi://"):
		return models.SourceQRScan
	case strings.Contains(lower, "whatsapp"):
		return models.SourceWhatsApp
	default:
		return models.SourceSMS
	}
}

func detectTransactionType(text string, r *Result) models.TransactionType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "refund"):
		return models.TxTypeRefund
	case strings.Contains(lower, "collect request") || strings.Contains(lower, "payment request"):
		return models.TxTypeCollect
	case strings.Contains(lower, "merchant") || strings.Contains(lower, "order") || strings.Contains(lower, "shop"):
		return models.TxTypeP2M
	case len(r.AllUPIIDs) > 0:
		return models.TxTypeP2P
	default:
		return models.TxTypeUnknown
	}
}

// fraudMarkers maps quick scam-type guesses to their trigger phrases. The
// full scoring lexicon lives in the risk package; this scan only annotates
// the extraction record.
var fraudMarkers = []struct {
	scamType  string
	indicator string
	phrases   []string
}{
	{"OTP_FRAUD", "Message solicits an OTP", []string{"otp", "one time password", "verification code"}},
	{"PHISHING", "KYC / account-blocked pressure", []string{"kyc", "account blocked", "account suspended", "will be blocked"}},
	{"LOTTERY_SCAM", "Lottery or prize bait", []string{"lottery", "prize", "winner", "lucky draw"}},
	{"JOB_SCAM", "Job offer with upfront fee", []string{"work from home", "job offer", "registration fee", "part time job"}},
	{"IMPERSONATION", "Claims to be an authority", []string{"bank officer", "police", "income tax", "customs", "rbi"}},
}

func scanFraudMarkers(text string) (indicators []string, scamType string) {
	lower := strings.ToLower(text)
	for _, marker := range fraudMarkers {
		for _, phrase := range marker.phrases {
			if strings.Contains(lower, phrase) {
				indicators = append(indicators, marker.indicator)
				if scamType == "" {
					scamType = marker.scamType
				}
				break
			}
		}
	}
	return indicators, scamType
}

// mergeAIExtraction folds the LLM result into the rule result. Scalar fields
// prefer the LLM value when present; list fields are unioned. Phones that
// collide with extracted bank accounts stay excluded.
func mergeAIExtraction(r *Result, ai *llm.IdentifierExtraction) {
	contributed := false

	if ai.SenderUPI != "" {
		r.SenderUPI = strings.ToLower(ai.SenderUPI)
		contributed = true
	}
	if ai.ReceiverUPI != "" {
		r.ReceiverUPI = strings.ToLower(ai.ReceiverUPI)
		contributed = true
	}
	if ai.Amount != nil && *ai.Amount > 0 && *ai.Amount < 1e8 {
		r.Amount = ai.Amount
		contributed = true
	}
	if ai.TransactionType != "" {
		r.TransactionType = models.TransactionType(strings.ToUpper(ai.TransactionType))
		contributed = true
	}
	if ai.ScamType != "" {
		r.ScamType = ai.ScamType
		contributed = true
	}

	if len(ai.UPIIDs) > 0 {
		lowered := make([]string, 0, len(ai.UPIIDs))
		for _, id := range ai.UPIIDs {
			lowered = append(lowered, strings.ToLower(id))
		}
		r.AllUPIIDs = unionStrings(r.AllUPIIDs, lowered)
		contributed = true
	}
	if len(ai.PhoneNumbers) > 0 {
		filtered := make([]string, 0, len(ai.PhoneNumbers))
		for _, phone := range ai.PhoneNumbers {
			digits := digitsOnly(phone)
			if len(digits) >= 10 && !isAccountSlice(digits[len(digits)-10:], r.BankAccounts) {
				filtered = append(filtered, phone)
			}
		}
		r.PhoneNumbers = unionStrings(r.PhoneNumbers, filtered)
		contributed = true
	}
	if len(ai.BankAccounts) > 0 {
		r.BankAccounts = unionStrings(r.BankAccounts, ai.BankAccounts)
		contributed = true
	}
	if len(ai.Links) > 0 {
		r.Links = unionStrings(r.Links, ai.Links)
		contributed = true
	}
	if len(ai.FraudIndicators) > 0 {
		r.FraudIndicators = unionStrings(r.FraudIndicators, ai.FraudIndicators)
		contributed = true
	}

	if contributed {
		r.AIExtracted = true
	}
}

func unionStrings(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range incoming {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		existing = append(existing, v)
	}
	return existing
}

func digitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
