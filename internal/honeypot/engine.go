package honeypot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rawblock/upi-fraud-engine/internal/extract"
	"github.com/rawblock/upi-fraud-engine/internal/risk"
)

// Standalone Honeypot Engine
//
// In-memory sessions for the single-turn /honeypot endpoint. Each session
// aggregates per-turn scam confidences, extracts intelligence from the
// scammer's messages, and fires a one-shot external callback once the
// conversation is confidently a scam.
//
// Concurrency: the session map is guarded by the engine mutex; each session
// carries its own lock so turns within one session serialize while
// independent sessions proceed in parallel. scamDetected and callbackSent
// are monotonic once true.

const (
	DefaultSessionTimeout = 30 * time.Minute
	DefaultSweepInterval  = 5 * time.Minute
	DefaultMinMessages    = 3
	DefaultMaxSessions    = 10000

	callbackTimeout = 5 * time.Second
)

// Message is one incoming conversational turn.
type Message struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Intelligence accumulates identifiers harvested from scammer messages.
type Intelligence struct {
	BankAccounts       []string `json:"bankAccounts"`
	UPIIDs             []string `json:"upiIds"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// Session is the in-memory honeypot conversation state.
type Session struct {
	SessionID           string            `json:"sessionId"`
	CreatedAt           time.Time         `json:"createdAt"`
	LastActivity        time.Time         `json:"lastActivity"`
	ScamScores          []float64         `json:"scamScores"`
	ScamDetected        bool              `json:"scamDetected"`
	ScamConfidence      float64           `json:"scamConfidence"` // mean of ScamScores
	MessageCount        int               `json:"messageCount"`
	ConversationHistory []Message         `json:"conversationHistory"`
	Intelligence        Intelligence      `json:"extractedIntelligence"`
	AgentNotes          []string          `json:"agentNotes"`
	Tactics             []string          `json:"observedTactics"`
	CallbackSent        bool              `json:"callbackSent"`
	ScamType            string            `json:"scamType,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`

	mu sync.Mutex
}

// Config tunes the engine. Zero values fall back to the defaults above.
type Config struct {
	ScamThreshold  float64
	MinMessages    int
	SessionTimeout time.Duration
	SweepInterval  time.Duration
	MaxSessions    int
	CallbackURL    string
}

// Engine owns the session map and the turn pipeline.
type Engine struct {
	cfg        Config
	extractor  *extract.Extractor
	classifier *risk.TextClassifier
	generator  *Generator
	httpClient *http.Client

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewEngine(cfg Config, extractor *extract.Extractor, classifier *risk.TextClassifier, generator *Generator) *Engine {
	if cfg.ScamThreshold <= 0 {
		cfg.ScamThreshold = risk.DefaultScamThreshold
	}
	if cfg.MinMessages <= 0 {
		cfg.MinMessages = DefaultMinMessages
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.SweepInterval <= 0 || cfg.SweepInterval > DefaultSweepInterval {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	return &Engine{
		cfg:        cfg,
		extractor:  extractor,
		classifier: classifier,
		generator:  generator,
		httpClient: &http.Client{Timeout: callbackTimeout},
		sessions:   make(map[string]*Session),
	}
}

// TurnResult is the reply plus the debug envelope for one handled turn.
type TurnResult struct {
	Reply                 string  `json:"reply"`
	AgentNote             string  `json:"agentNote"`
	ScamDetected          bool    `json:"scamDetected"`
	Confidence            float64 `json:"confidence"`
	LastMessageConfidence float64 `json:"lastMessageConfidence"`
	MessageCount          int     `json:"messageCount"`
	CallbackSent          bool    `json:"callbackSent"`
}

// HandleMessage processes one conversational turn for a session.
func (e *Engine) HandleMessage(ctx context.Context, sessionID string, msg Message) (*TurnResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionId is required")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, fmt.Errorf("message text is required")
	}

	session := e.lookupOrCreate(sessionID)
	session.mu.Lock()
	defer session.mu.Unlock()

	session.LastActivity = time.Now()

	lastConfidence := 0.0
	if msg.Sender == "scammer" {
		session.ConversationHistory = append(session.ConversationHistory, msg)
		session.MessageCount++

		e.harvestIntelligence(ctx, session, msg.Text)

		classification := e.classifier.Classify(ctx, msg.Text)
		lastConfidence = classification.Confidence
		session.ScamScores = append(session.ScamScores, classification.Confidence)
		if session.ScamType == "" && classification.ScamType != "" {
			session.ScamType = classification.ScamType
		}

		avg := mean(session.ScamScores)
		session.ScamConfidence = avg
		if avg >= e.cfg.ScamThreshold && !session.ScamDetected {
			session.ScamDetected = true
			session.AgentNotes = append(session.AgentNotes,
				fmt.Sprintf("Scam confidence crossed threshold at %.2f after %d messages", avg, session.MessageCount))
			log.Printf("[Honeypot] Session %s flagged as scam (confidence %.2f)", sessionID, avg)
		}
	}

	reply := e.generator.Generate(ctx, msg.Text, session.MessageCount, recentTurns(session, 6))
	session.ConversationHistory = append(session.ConversationHistory, Message{
		Sender:    "user",
		Text:      reply.Text,
		Timestamp: time.Now(),
	})
	session.AgentNotes = append(session.AgentNotes, reply.AgentNote)

	session.Tactics = observeTactics(session.ConversationHistory)

	if session.ScamDetected && !session.CallbackSent && session.MessageCount >= e.cfg.MinMessages {
		e.refreshIntelligence(ctx, session)
		if err := e.sendCallback(ctx, session); err != nil {
			// Retried on the next eligible turn.
			log.Printf("[Honeypot] Callback for session %s failed: %v", sessionID, err)
		} else {
			session.CallbackSent = true
		}
	}

	return &TurnResult{
		Reply:                 reply.Text,
		AgentNote:             reply.AgentNote,
		ScamDetected:          session.ScamDetected,
		Confidence:            session.ScamConfidence,
		LastMessageConfidence: lastConfidence,
		MessageCount:          session.MessageCount,
		CallbackSent:          session.CallbackSent,
	}, nil
}

func (e *Engine) lookupOrCreate(sessionID string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	if session, ok := e.sessions[sessionID]; ok {
		return session
	}

	if len(e.sessions) >= e.cfg.MaxSessions {
		e.evictOldestLocked()
	}

	now := time.Now()
	session := &Session{
		SessionID:    sessionID,
		CreatedAt:    now,
		LastActivity: now,
		ScamScores:   []float64{},
		AgentNotes:   []string{},
		Metadata:     map[string]string{},
	}
	e.sessions[sessionID] = session
	return session
}

// evictOldestLocked drops the longest-idle session. Caller holds e.mu.
func (e *Engine) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, s := range e.sessions {
		if oldestID == "" || s.LastActivity.Before(oldest) {
			oldestID = id
			oldest = s.LastActivity
		}
	}
	if oldestID != "" {
		delete(e.sessions, oldestID)
		log.Printf("[Honeypot] Session cap reached, evicted idle session %s", oldestID)
	}
}

// Snapshot returns a copy of the session state for debug views.
func (e *Engine) Snapshot(sessionID string) (*Session, bool) {
	e.mu.RLock()
	session, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	snapshot := &Session{
		SessionID:           session.SessionID,
		CreatedAt:           session.CreatedAt,
		LastActivity:        session.LastActivity,
		ScamScores:          append([]float64(nil), session.ScamScores...),
		ScamDetected:        session.ScamDetected,
		ScamConfidence:      session.ScamConfidence,
		MessageCount:        session.MessageCount,
		ConversationHistory: append([]Message(nil), session.ConversationHistory...),
		Intelligence:        session.Intelligence,
		AgentNotes:          append([]string(nil), session.AgentNotes...),
		Tactics:             append([]string(nil), session.Tactics...),
		CallbackSent:        session.CallbackSent,
		ScamType:            session.ScamType,
		Metadata:            session.Metadata,
	}
	return snapshot, true
}

// Delete evicts a session from the in-memory map.
func (e *Engine) Delete(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[sessionID]; !ok {
		return false
	}
	delete(e.sessions, sessionID)
	return true
}

// ForceCallback fires the external callback immediately for a scam-flagged
// session, regardless of the message-count gate.
func (e *Engine) ForceCallback(ctx context.Context, sessionID string) error {
	e.mu.RLock()
	session, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if !session.ScamDetected {
		return fmt.Errorf("session %s is not flagged as a scam", sessionID)
	}

	e.refreshIntelligence(ctx, session)
	if err := e.sendCallback(ctx, session); err != nil {
		return err
	}
	session.CallbackSent = true
	return nil
}

// RunSweeper evicts sessions idle longer than the session timeout. Blocks
// until ctx is cancelled; run it on its own goroutine.
func (e *Engine) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Honeypot] Stopping session sweeper")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-e.cfg.SessionTimeout)
			e.mu.Lock()
			for id, session := range e.sessions {
				if session.LastActivity.Before(cutoff) {
					delete(e.sessions, id)
					log.Printf("[Honeypot] Evicted idle session %s", id)
				}
			}
			e.mu.Unlock()
		}
	}
}

// harvestIntelligence unions identifiers from one scammer message into the
// session's intelligence sets. Caller holds the session lock.
func (e *Engine) harvestIntelligence(ctx context.Context, session *Session, text string) {
	extracted, err := e.extractor.Extract(ctx, text)
	if err != nil {
		return
	}
	intel := &session.Intelligence
	intel.BankAccounts = unionStrings(intel.BankAccounts, extracted.BankAccounts)
	intel.UPIIDs = unionStrings(intel.UPIIDs, extracted.AllUPIIDs)
	intel.PhishingLinks = unionStrings(intel.PhishingLinks, extracted.Links)
	intel.PhoneNumbers = unionStrings(intel.PhoneNumbers, extracted.PhoneNumbers)
	intel.SuspiciousKeywords = unionStrings(intel.SuspiciousKeywords, keywordSightings(text))
}

// refreshIntelligence re-extracts over the full scammer history so the
// callback payload is complete even if early turns predate the session.
func (e *Engine) refreshIntelligence(ctx context.Context, session *Session) {
	for _, msg := range session.ConversationHistory {
		if msg.Sender == "scammer" {
			e.harvestIntelligence(ctx, session, msg.Text)
		}
	}
}

// callbackPayload is the one-shot intelligence report.
type callbackPayload struct {
	SessionID              string       `json:"sessionId"`
	ScamDetected           bool         `json:"scamDetected"`
	TotalMessagesExchanged int          `json:"totalMessagesExchanged"`
	ExtractedIntelligence  Intelligence `json:"extractedIntelligence"`
	AgentNotes             string       `json:"agentNotes"`
}

func (e *Engine) sendCallback(ctx context.Context, session *Session) error {
	if e.cfg.CallbackURL == "" {
		return fmt.Errorf("no callback URL configured")
	}

	payload := callbackPayload{
		SessionID:              session.SessionID,
		ScamDetected:           session.ScamDetected,
		TotalMessagesExchanged: len(session.ConversationHistory),
		ExtractedIntelligence:  session.Intelligence,
		AgentNotes:             strings.Join(session.AgentNotes, "; "),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.CallbackURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("callback sink returned status %d", resp.StatusCode)
	}

	log.Printf("[Honeypot] Intelligence callback delivered for session %s", session.SessionID)
	return nil
}

// Tactic phrase table for the observed-tactics scan. Ordered so repeated
// scans produce stable output.
var tacticTable = []struct {
	name    string
	phrases []string
}{
	{"urgency", []string{"urgent", "immediately", "right now", "hurry", "fast", "asap"}},
	{"threats", []string{"blocked", "suspended", "police", "arrest", "legal", "penalty", "fine"}},
	{"information_request", []string{"otp", "pin", "password", "account number", "card number", "cvv", "share your"}},
	{"reward_bait", []string{"lottery", "prize", "winner", "cashback", "reward", "gift"}},
	{"impersonation", []string{"bank officer", "customer care", "income tax", "rbi", "government", "courier"}},
}

func observeTactics(history []Message) []string {
	var observed []string
	seen := make(map[string]bool)
	for _, entry := range tacticTable {
		for _, msg := range history {
			if msg.Sender != "scammer" || seen[entry.name] {
				continue
			}
			lower := strings.ToLower(msg.Text)
			for _, phrase := range entry.phrases {
				if strings.Contains(lower, phrase) {
					seen[entry.name] = true
					observed = append(observed, entry.name)
					break
				}
			}
		}
	}
	return observed
}

var suspiciousKeywordList = []string{
	"otp", "kyc", "urgent", "blocked", "verify", "lottery", "prize",
	"refund", "police", "arrest", "pin", "password", "anydesk",
}

func keywordSightings(text string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, kw := range suspiciousKeywordList {
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

func recentTurns(session *Session, limit int) []string {
	history := session.ConversationHistory
	start := len(history) - limit
	if start < 0 {
		start = 0
	}
	turns := make([]string, 0, len(history)-start)
	for _, msg := range history[start:] {
		turns = append(turns, msg.Sender+": "+msg.Text)
	}
	return turns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
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
