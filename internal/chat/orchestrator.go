package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rawblock/upi-fraud-engine/internal/extract"
	"github.com/rawblock/upi-fraud-engine/internal/honeypot"
	"github.com/rawblock/upi-fraud-engine/internal/risk"
	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// Session Orchestrator
//
// The state machine behind the scammer<->victim chat. Every scammer turn is
// extracted, checked against the blacklist, risk-scored, triaged into one of
// three delivery modes, and persisted in a single save so pollers never see
// a honeypot reply without its causally preceding scammer message.
//
// Turns within one session are serialized through a keyed mutex; the
// monotonic flags (divertedToHoneypot, isScamConfirmed) only ever upgrade.

const (
	// MaxChatChars caps incoming chat text.
	MaxChatChars = 4000

	// honeypotReplyThreshold is the risk score at which the honeypot takes
	// over the conversation.
	honeypotReplyThreshold = 70

	// deliveryThreshold is kept for documentation of the triage bands: the
	// 40-70 band delivers the raw message to the victim with no honeypot
	// engagement. Below 40 the message is simply delivered.
	deliveryThreshold = 40

	blacklistReason = "Confirmed scam activity"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrVictimBlocked   = errors.New("victim replies are blocked while this conversation is diverted")
)

// TurnOutcome is the orchestrator's result for one scammer turn.
type TurnOutcome struct {
	Diverted      bool               `json:"diverted"`
	Risk          models.RiskVerdict `json:"risk"`
	HoneypotReply string             `json:"honeypotReply,omitempty"`
	AgentNote     string             `json:"agentNote,omitempty"`
}

// SessionView is the victim-safe projection: delivered messages only, never
// the extracted identifier sets.
type SessionView struct {
	SessionID       string               `json:"sessionId"`
	Messages        []models.ChatMessage `json:"messages"`
	IsScamConfirmed bool                 `json:"isScamConfirmed"`
	LastRisk        *models.RiskVerdict  `json:"lastRisk,omitempty"`
}

// AlertFunc receives HIGH/CRITICAL verdicts for operator broadcast.
type AlertFunc func(source, sessionID string, verdict models.RiskVerdict)

// Orchestrator wires the analyzers, stores and honeypot together.
type Orchestrator struct {
	Sessions   SessionStore
	Blacklist  BlacklistStore
	Extractor  *extract.Extractor
	Classifier *risk.TextClassifier
	Rules      *risk.RuleScorer
	Honeypot   *honeypot.Generator
	Events     RiskEventRecorder // optional
	Alert      AlertFunc         // optional

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewOrchestrator(sessions SessionStore, blacklist BlacklistStore, extractor *extract.Extractor,
	classifier *risk.TextClassifier, rules *risk.RuleScorer, generator *honeypot.Generator) *Orchestrator {
	return &Orchestrator{
		Sessions:   sessions,
		Blacklist:  blacklist,
		Extractor:  extractor,
		Classifier: classifier,
		Rules:      rules,
		Honeypot:   generator,
		locks:      make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the per-session mutex, creating it on first use.
// Locks are never evicted; the population is bounded by active sessions.
func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[sessionID] = lock
	}
	return lock
}

// HandleScammerTurn triages one incoming scammer message.
func (o *Orchestrator) HandleScammerTurn(ctx context.Context, sessionID, scammerID, victimID, text string) (*TurnOutcome, error) {
	text = strings.TrimSpace(text)
	if len(text) > MaxChatChars {
		text = text[:MaxChatChars]
	}

	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := o.Sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session, err = o.Sessions.Create(ctx, sessionID, scammerID, victimID)
		if err != nil {
			return nil, err
		}
	}

	extracted, extractErr := o.Extractor.Extract(ctx, text)
	if extractErr == nil {
		session.ExtractedDetails.Union(extracted.AllUPIIDs, extracted.PhoneNumbers,
			extracted.Links, extracted.BankAccounts)
	}

	blacklistHit, err := o.Blacklist.FindMatching(ctx, scammerID,
		session.ExtractedDetails.UPIIDs, session.ExtractedDetails.PhoneNumbers)
	if err != nil {
		log.Printf("[Orchestrator] Blacklist lookup failed, treating as no match: %v", err)
		blacklistHit = nil
	}

	scammerMsg := &models.ChatMessage{
		ID:        uuid.NewString(),
		Sender:    models.SenderScammer,
		Text:      text,
		Timestamp: time.Now(),
	}
	session.Messages = append(session.Messages, *scammerMsg)
	msgIndex := len(session.Messages) - 1

	verdict := o.computeRisk(ctx, text, extracted)
	session.LastRisk = &verdict

	outcome := &TurnOutcome{Risk: verdict}

	if session.DivertedToHoneypot || blacklistHit != nil {
		// Diverted branch: a blacklist hit confirms the scam immediately.
		session.DivertedToHoneypot = true
		session.IsScamConfirmed = true
		session.Messages[msgIndex].DeliveredToVictim = true

		if verdict.RiskScore >= honeypotReplyThreshold {
			o.appendHoneypotReply(ctx, session, text, outcome)
		}
		outcome.Diverted = true
	} else {
		// Live branch.
		switch {
		case verdict.RiskScore >= honeypotReplyThreshold:
			if err := o.Blacklist.Upsert(ctx, scammerID,
				session.ExtractedDetails.UPIIDs, session.ExtractedDetails.PhoneNumbers,
				blacklistReason); err != nil {
				log.Printf("[Orchestrator] Blacklist upsert failed: %v", err)
			}
			session.DivertedToHoneypot = true
			session.IsScamConfirmed = true
			session.Messages[msgIndex].DeliveredToVictim = true
			o.appendHoneypotReply(ctx, session, text, outcome)

		default:
			// Medium and low risk both deliver the raw message; neither
			// diverts nor engages the honeypot.
			session.Messages[msgIndex].DeliveredToVictim = true
		}
		outcome.Diverted = session.DivertedToHoneypot
	}

	if err := o.Sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	o.recordAndAlert(ctx, "chat", sessionID, verdict)
	return outcome, nil
}

// appendHoneypotReply generates and appends a delivered honeypot message.
func (o *Orchestrator) appendHoneypotReply(ctx context.Context, session *models.ChatSession, scammerText string, outcome *TurnOutcome) {
	scammerTurns := 0
	var recent []string
	for _, msg := range session.Messages {
		if msg.Sender == models.SenderScammer {
			scammerTurns++
		}
		recent = append(recent, string(msg.Sender)+": "+msg.Text)
	}
	if len(recent) > 6 {
		recent = recent[len(recent)-6:]
	}

	reply := o.Honeypot.Generate(ctx, scammerText, scammerTurns, recent)
	session.Messages = append(session.Messages, models.ChatMessage{
		ID:                uuid.NewString(),
		Sender:            models.SenderHoneypot,
		Text:              reply.Text,
		DeliveredToVictim: true,
		Timestamp:         time.Now(),
	})
	outcome.HoneypotReply = reply.Text
	outcome.AgentNote = reply.AgentNote
}

// computeRisk runs the scan pipeline over one chat turn: text classifier,
// transaction rules, and the QR analyzer when the text is a QR payload.
func (o *Orchestrator) computeRisk(ctx context.Context, text string, extracted *extract.Result) models.RiskVerdict {
	textResult := o.Classifier.Classify(ctx, text)

	var ruleResult *risk.RuleResult
	if extracted != nil {
		tx := TransactionFromExtraction(extracted)
		r := o.Rules.Score(tx)
		ruleResult = &r
	}

	var qrResult *risk.QRResult
	if payload, err := risk.ParseQRPayload(text); err == nil {
		q := risk.ScoreQRPayload(payload, o.Rules)
		qrResult = &q
	}

	return risk.FuseSignals(&textResult, ruleResult, qrResult)
}

// VictimReply appends a victim message unless the session is under a
// high-risk divert.
func (o *Orchestrator) VictimReply(ctx context.Context, sessionID, text string) error {
	text = strings.TrimSpace(text)
	if len(text) > MaxChatChars {
		text = text[:MaxChatChars]
	}

	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := o.Sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}

	if session.DivertedToHoneypot && session.LastRisk != nil &&
		session.LastRisk.RiskScore >= honeypotReplyThreshold {
		return ErrVictimBlocked
	}

	session.Messages = append(session.Messages, models.ChatMessage{
		ID:                uuid.NewString(),
		Sender:            models.SenderVictim,
		Text:              text,
		DeliveredToVictim: true,
		Timestamp:         time.Now(),
	})
	return o.Sessions.Save(ctx, session)
}

// Project returns the victim-safe view. An unknown session yields an empty
// shell rather than an error so polling UIs never deadlock.
func (o *Orchestrator) Project(ctx context.Context, sessionID string) (*SessionView, error) {
	session, err := o.Sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return &SessionView{SessionID: sessionID, Messages: []models.ChatMessage{}}, nil
	}

	view := &SessionView{
		SessionID:       session.SessionID,
		Messages:        []models.ChatMessage{},
		IsScamConfirmed: session.IsScamConfirmed,
		LastRisk:        session.LastRisk,
	}
	for _, msg := range session.Messages {
		if msg.DeliveredToVictim {
			view.Messages = append(view.Messages, msg)
		}
	}
	return view, nil
}

func (o *Orchestrator) recordAndAlert(ctx context.Context, source, refID string, verdict models.RiskVerdict) {
	if o.Events != nil {
		if err := o.Events.RecordRiskEvent(ctx, source, refID, verdict); err != nil {
			log.Printf("[Orchestrator] Failed to record risk event: %v", err)
		}
	}
	if o.Alert != nil && (verdict.RiskLevel == models.RiskHigh || verdict.RiskLevel == models.RiskCritical) {
		o.Alert(source, refID, verdict)
	}
}

// TransactionFromExtraction builds the normalized transaction a chat turn or
// scanned message implies.
func TransactionFromExtraction(r *extract.Result) models.Transaction {
	tx := models.Transaction{
		SenderUPI:   r.SenderUPI,
		ReceiverUPI: r.ReceiverUPI,
		Type:        r.TransactionType,
		Description: r.Description,
		Source:      r.Source,
		IsNewPayee:  r.IsNewPayee,
		Timestamp:   time.Now(),
	}
	if r.Amount != nil {
		tx.Amount = *r.Amount
	}
	return tx
}
