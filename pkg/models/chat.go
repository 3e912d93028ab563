package models

import "time"

// MessageSender identifies who produced a chat message.
type MessageSender string

const (
	SenderScammer  MessageSender = "scammer"
	SenderHoneypot MessageSender = "honeypot"
	SenderVictim   MessageSender = "victim"
)

// ChatMessage is one turn inside a scammer<->victim conversation.
// DeliveredToVictim is the projection filter for polling consumers; once set
// it never reverts.
type ChatMessage struct {
	ID                string        `json:"id"`
	Sender            MessageSender `json:"sender"`
	Text              string        `json:"text"`
	DeliveredToVictim bool          `json:"deliveredToVictim"`
	Timestamp         time.Time     `json:"timestamp"`
}

// ExtractedDetails accumulates every identifier seen across a session.
// The slices are sets: unioned on update, never shrunk.
type ExtractedDetails struct {
	UPIIDs       []string `json:"upiIds"`
	PhoneNumbers []string `json:"phoneNumbers"`
	Links        []string `json:"links"`
	BankAccounts []string `json:"bankAccounts"`
}

// Union merges new identifiers into the detail sets, preserving insertion
// order and dropping duplicates.
func (d *ExtractedDetails) Union(upis, phones, links, accounts []string) {
	d.UPIIDs = unionOrdered(d.UPIIDs, upis)
	d.PhoneNumbers = unionOrdered(d.PhoneNumbers, phones)
	d.Links = unionOrdered(d.Links, links)
	d.BankAccounts = unionOrdered(d.BankAccounts, accounts)
}

func unionOrdered(existing, incoming []string) []string {
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

// ChatSession is the durable per-conversation document.
//
// Monotonic state: DivertedToHoneypot and IsScamConfirmed never revert once
// set, and ExtractedDetails only grows. LastRisk is overwritten every turn.
type ChatSession struct {
	SessionID          string           `json:"sessionId"`
	ScammerID          string           `json:"scammerId"`
	VictimID           string           `json:"victimId,omitempty"`
	Messages           []ChatMessage    `json:"messages"`
	ExtractedDetails   ExtractedDetails `json:"extractedDetails"`
	LastRisk           *RiskVerdict     `json:"lastRisk,omitempty"`
	DivertedToHoneypot bool             `json:"divertedToHoneypot"`
	IsScamConfirmed    bool             `json:"isScamConfirmed"`
	CreatedAt          time.Time        `json:"createdAt"`
}

// BlacklistEntry is a persistent scammer-identifier record keyed by
// ScammerID. UPIIDs and PhoneNumbers carry set-union upsert semantics.
type BlacklistEntry struct {
	ScammerID    string    `json:"scammerId"`
	UPIIDs       []string  `json:"upiIds"`
	PhoneNumbers []string  `json:"phoneNumbers"`
	Reason       string    `json:"reason"`
	AddedAt      time.Time `json:"addedAt"`
}

// PhishingDomain is a known-bad host used by the URL analyzer.
type PhishingDomain struct {
	Domain  string    `json:"domain"` // lower-cased, unique
	AddedAt time.Time `json:"addedAt"`
}
