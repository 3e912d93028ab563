package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// In-memory store implementations. Used by the tests and as the fallback
// when no DATABASE_URL is configured.

type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ChatSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*models.ChatSession)}
}

func (s *MemorySessionStore) FindBySessionID(_ context.Context, sessionID string) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return cloneSession(session), nil
}

func (s *MemorySessionStore) Create(_ context.Context, sessionID, scammerID, victimID string) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := &models.ChatSession{
		SessionID: sessionID,
		ScammerID: scammerID,
		VictimID:  victimID,
		Messages:  []models.ChatMessage{},
		CreatedAt: time.Now(),
	}
	s.sessions[sessionID] = session
	return cloneSession(session), nil
}

func (s *MemorySessionStore) Save(_ context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = cloneSession(session)
	return nil
}

// cloneSession deep-copies through JSON so callers can mutate freely.
func cloneSession(session *models.ChatSession) *models.ChatSession {
	raw, _ := json.Marshal(session)
	var out models.ChatSession
	_ = json.Unmarshal(raw, &out)
	return &out
}

type MemoryBlacklistStore struct {
	mu      sync.RWMutex
	entries map[string]*models.BlacklistEntry
}

func NewMemoryBlacklistStore() *MemoryBlacklistStore {
	return &MemoryBlacklistStore{entries: make(map[string]*models.BlacklistEntry)}
}

func (s *MemoryBlacklistStore) FindMatching(_ context.Context, scammerID string, upiIDs, phoneNumbers []string) (*models.BlacklistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entry, ok := s.entries[scammerID]; ok {
		return copyEntry(entry), nil
	}
	for _, entry := range s.entries {
		if overlaps(entry.UPIIDs, upiIDs) || overlaps(entry.PhoneNumbers, phoneNumbers) {
			return copyEntry(entry), nil
		}
	}
	return nil, nil
}

func (s *MemoryBlacklistStore) Upsert(_ context.Context, scammerID string, upiIDs, phoneNumbers []string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[scammerID]
	if !ok {
		entry = &models.BlacklistEntry{ScammerID: scammerID, AddedAt: time.Now()}
		s.entries[scammerID] = entry
	}
	entry.UPIIDs = unionStrings(entry.UPIIDs, upiIDs)
	entry.PhoneNumbers = unionStrings(entry.PhoneNumbers, phoneNumbers)
	entry.Reason = reason
	return nil
}

func copyEntry(entry *models.BlacklistEntry) *models.BlacklistEntry {
	out := *entry
	out.UPIIDs = append([]string(nil), entry.UPIIDs...)
	out.PhoneNumbers = append([]string(nil), entry.PhoneNumbers...)
	return &out
}

func overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
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
