package chat

import (
	"context"
	"testing"

	"github.com/rawblock/upi-fraud-engine/internal/extract"
	"github.com/rawblock/upi-fraud-engine/internal/honeypot"
	"github.com/rawblock/upi-fraud-engine/internal/risk"
	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

func newTestOrchestrator() (*Orchestrator, *MemorySessionStore, *MemoryBlacklistStore) {
	sessions := NewMemorySessionStore()
	blacklist := NewMemoryBlacklistStore()
	o := NewOrchestrator(sessions, blacklist,
		extract.New(nil),
		risk.NewTextClassifier(nil, nil, risk.DefaultScamThreshold),
		risk.NewRuleScorer(nil),
		honeypot.NewGenerator(nil))
	return o, sessions, blacklist
}

const highRiskText = "URGENT: your account will be blocked! Share OTP immediately or pay the penalty. My number 9876543210, pay to scammer@ybl"

func TestHandleScammerTurn_SafeMessageIsDelivered(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	ctx := context.Background()

	outcome, err := o.HandleScammerTurn(ctx, "s1", "scammer-1", "victim-1", "Hi, sending the notes from class today")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Diverted {
		t.Error("Safe message must not divert")
	}
	if outcome.HoneypotReply != "" {
		t.Error("Safe message must not trigger a honeypot reply")
	}

	view, err := o.Project(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Messages) != 1 {
		t.Fatalf("Expected the delivered scammer message, got %d messages", len(view.Messages))
	}
	if view.IsScamConfirmed {
		t.Error("Safe session must not be scam-confirmed")
	}
}

func TestHandleScammerTurn_HighRiskDivertsAndBlacklists(t *testing.T) {
	o, sessions, blacklist := newTestOrchestrator()
	ctx := context.Background()

	outcome, err := o.HandleScammerTurn(ctx, "s1", "scammer-1", "victim-1", highRiskText)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Diverted {
		t.Fatalf("High-risk turn must divert (score %d)", outcome.Risk.RiskScore)
	}
	if outcome.HoneypotReply == "" {
		t.Error("Diverting turn must carry a honeypot reply")
	}

	session, err := sessions.FindBySessionID(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !session.DivertedToHoneypot || !session.IsScamConfirmed {
		t.Error("Session flags not set after divert")
	}
	if len(session.ExtractedDetails.UPIIDs) == 0 || len(session.ExtractedDetails.PhoneNumbers) == 0 {
		t.Errorf("Identifiers not accumulated: %+v", session.ExtractedDetails)
	}

	entry, err := blacklist.FindMatching(ctx, "scammer-1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("Scammer not blacklisted after confirmed scam")
	}
	if entry.Reason != "Confirmed scam activity" {
		t.Errorf("Unexpected blacklist reason %q", entry.Reason)
	}
	if len(entry.UPIIDs) == 0 {
		t.Error("Blacklist entry missing the harvested UPI IDs")
	}
}

func TestHandleScammerTurn_BlacklistedIdentifierDivertsImmediately(t *testing.T) {
	o, _, blacklist := newTestOrchestrator()
	ctx := context.Background()

	if err := blacklist.Upsert(ctx, "known-scammer", []string{"scammer@ybl"}, nil, "Confirmed scam activity"); err != nil {
		t.Fatal(err)
	}

	// The message itself is mild, but it carries a blacklisted UPI.
	outcome, err := o.HandleScammerTurn(ctx, "s2", "fresh-identity", "victim-1", "pay to scammer@ybl for the delivery")
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Diverted {
		t.Error("Blacklisted identifier must divert regardless of message risk")
	}
}

func TestHandleScammerTurn_DivertIsSticky(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	ctx := context.Background()

	if _, err := o.HandleScammerTurn(ctx, "s1", "scammer-1", "victim-1", highRiskText); err != nil {
		t.Fatal(err)
	}

	outcome, err := o.HandleScammerTurn(ctx, "s1", "scammer-1", "victim-1", "sorry, wrong number")
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Diverted {
		t.Error("A diverted session must stay diverted for mild follow-ups")
	}
	if outcome.HoneypotReply != "" {
		t.Error("Low-risk follow-up inside a divert must not generate a honeypot reply")
	}
}

func TestVictimReply(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	ctx := context.Background()

	if err := o.VictimReply(ctx, "missing", "hello"); err != ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	if _, err := o.HandleScammerTurn(ctx, "live", "scammer-1", "victim-1", "are the notes ready?"); err != nil {
		t.Fatal(err)
	}
	if err := o.VictimReply(ctx, "live", "yes, sending them now"); err != nil {
		t.Errorf("Victim reply into a live session must succeed, got %v", err)
	}

	if _, err := o.HandleScammerTurn(ctx, "diverted", "scammer-2", "victim-1", highRiskText); err != nil {
		t.Fatal(err)
	}
	if err := o.VictimReply(ctx, "diverted", "ok I will share the otp"); err != ErrVictimBlocked {
		t.Errorf("Expected ErrVictimBlocked for a diverted session, got %v", err)
	}
}

func TestProject_HidesIntelligenceAndUndelivered(t *testing.T) {
	o, sessions, _ := newTestOrchestrator()
	ctx := context.Background()

	if _, err := o.HandleScammerTurn(ctx, "s1", "scammer-1", "victim-1", highRiskText); err != nil {
		t.Fatal(err)
	}

	// Plant an undelivered message to prove the filter.
	session, err := sessions.FindBySessionID(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	session.Messages = append(session.Messages, models.ChatMessage{
		ID: "hidden", Sender: models.SenderScammer, Text: "internal", DeliveredToVictim: false,
	})
	if err := sessions.Save(ctx, session); err != nil {
		t.Fatal(err)
	}

	view, err := o.Project(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range view.Messages {
		if msg.ID == "hidden" {
			t.Error("Undelivered message leaked into the victim view")
		}
	}
	if !view.IsScamConfirmed {
		t.Error("Projection must expose the scam-confirmed flag")
	}
}

func TestProject_UnknownSessionYieldsEmptyShell(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	view, err := o.Project(context.Background(), "never-seen")
	if err != nil {
		t.Fatal(err)
	}
	if view.SessionID != "never-seen" || len(view.Messages) != 0 || view.IsScamConfirmed {
		t.Errorf("Unexpected empty-shell projection: %+v", view)
	}
}

func TestHandleScammerTurn_CapsMessageLength(t *testing.T) {
	o, sessions, _ := newTestOrchestrator()
	ctx := context.Background()

	long := make([]byte, MaxChatChars+500)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := o.HandleScammerTurn(ctx, "s1", "scammer-1", "victim-1", string(long)); err != nil {
		t.Fatal(err)
	}

	session, err := sessions.FindBySessionID(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got := len(session.Messages[0].Text); got != MaxChatChars {
		t.Errorf("Message not capped: %d chars", got)
	}
}

func TestMemoryBlacklistStore_UnionSemantics(t *testing.T) {
	store := NewMemoryBlacklistStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, "s", []string{"a@ybl"}, []string{"+911111111111"}, "first"); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, "s", []string{"a@ybl", "b@ybl"}, nil, "second"); err != nil {
		t.Fatal(err)
	}

	entry, err := store.FindMatching(ctx, "s", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(entry.UPIIDs) != 2 {
		t.Errorf("Expected unioned UPI set of 2, got %v", entry.UPIIDs)
	}
	if len(entry.PhoneNumbers) != 1 {
		t.Errorf("Phone set must survive a partial upsert, got %v", entry.PhoneNumbers)
	}
	if entry.Reason != "second" {
		t.Errorf("Reason should track the latest upsert, got %q", entry.Reason)
	}

	byUPI, err := store.FindMatching(ctx, "someone-else", []string{"b@ybl"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if byUPI == nil {
		t.Error("Lookup by UPI overlap failed")
	}
}
