package risk

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// URL Risk Analyzer
//
// Scores every URL in a message against the persisted phishing-domain set
// and a handful of heuristics. A known phishing domain short-circuits to an
// 80-point increment; the heuristic path is capped at 40.

// DomainChecker looks a host up in the phishing-domain store. Lookups are
// best-effort: implementations return false on store errors so the analyzer
// stays total.
type DomainChecker interface {
	IsPhishingDomain(ctx context.Context, host string) bool
}

var suspiciousTLDs = map[string]bool{
	"xyz": true, "top": true, "click": true, "gq": true, "tk": true,
	"ru": true, "ml": true, "ga": true, "cf": true, "work": true,
	"link": true, "online": true, "site": true, "website": true,
	"space": true, "pw": true,
}

var phishingURLKeywords = []string{
	"verify", "verification", "update", "bank", "kyc", "reward",
	"urgent", "secure", "login", "account", "confirm", "activation",
	"unlock", "suspend", "blocked", "refund",
}

var urlInMessageRe = regexp.MustCompile(`https?://[^\s<>"']+`)

// URLResult is the analyzer output for one message.
type URLResult struct {
	RiskIncrement int      `json:"riskIncrement"`
	Indicators    []string `json:"indicators"`
}

// URLAnalyzer scores URLs. Domains is optional; without it only the
// heuristic checks run.
type URLAnalyzer struct {
	Domains DomainChecker
}

func NewURLAnalyzer(domains DomainChecker) *URLAnalyzer {
	return &URLAnalyzer{Domains: domains}
}

// Analyze extracts and scores all URLs in the message.
func (a *URLAnalyzer) Analyze(ctx context.Context, text string) URLResult {
	result := URLResult{Indicators: []string{}}
	urls := urlInMessageRe.FindAllString(text, -1)
	if len(urls) == 0 {
		return result
	}

	increment := 0
	seen := make(map[string]bool)
	addIndicator := func(s string) {
		if !seen[s] {
			seen[s] = true
			result.Indicators = append(result.Indicators, s)
		}
	}

	for _, raw := range urls {
		host := safeHostname(raw)
		if host == "" {
			continue
		}

		if a.Domains != nil && a.Domains.IsPhishingDomain(ctx, host) {
			return URLResult{
				RiskIncrement: 80,
				Indicators:    []string{"Known phishing domain"},
			}
		}

		scored := false
		if tld := lastLabel(host); suspiciousTLDs[tld] {
			increment += 15
			addIndicator(fmt.Sprintf("Suspicious domain TLD: .%s", tld))
			scored = true
		}

		keywordPoints := 0
		lowerURL := strings.ToLower(raw)
		for _, kw := range phishingURLKeywords {
			if !strings.Contains(lowerURL, kw) {
				continue
			}
			if keywordPoints < 15 {
				keywordPoints += 5
			}
			addIndicator("Phishing keyword in URL: " + kw)
			scored = true
		}
		increment += keywordPoints

		if !scored {
			increment += 5
			addIndicator("Message contains URL")
		}
	}

	if increment > 40 {
		increment = 40
	}
	result.RiskIncrement = increment
	return result
}

// safeHostname parses a URL and returns its lower-cased host, or "" when the
// URL cannot be parsed.
func safeHostname(raw string) string {
	parsed, err := url.Parse(strings.TrimRight(raw, ".,;:!?)"))
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func lastLabel(host string) string {
	idx := strings.LastIndex(host, ".")
	if idx < 0 || idx == len(host)-1 {
		return ""
	}
	return host[idx+1:]
}
