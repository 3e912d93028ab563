package chat

import (
	"context"

	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// Store contracts the orchestrator depends on. The Postgres implementations
// live in internal/db; the in-memory ones in this package back the tests.

// SessionStore persists ChatSession documents keyed by sessionId. Mutation
// is coarse-grained: load, mutate in memory, Save the whole document. The
// orchestrator serializes turns per session, so Save never races itself.
type SessionStore interface {
	// FindBySessionID returns (nil, nil) when the session does not exist.
	FindBySessionID(ctx context.Context, sessionID string) (*models.ChatSession, error)
	Create(ctx context.Context, sessionID, scammerID, victimID string) (*models.ChatSession, error)
	Save(ctx context.Context, session *models.ChatSession) error
}

// BlacklistStore persists scammer-identifier records with set-union upsert
// semantics on the UPI and phone collections.
type BlacklistStore interface {
	// FindMatching returns the first entry matching the scammer ID, any of
	// the UPI IDs, or any of the phone numbers; (nil, nil) when none match.
	FindMatching(ctx context.Context, scammerID string, upiIDs, phoneNumbers []string) (*models.BlacklistEntry, error)
	Upsert(ctx context.Context, scammerID string, upiIDs, phoneNumbers []string, reason string) error
}

// RiskEventRecorder persists per-turn verdicts for offline investigation.
// Recording is best-effort; failures are logged, never propagated.
type RiskEventRecorder interface {
	RecordRiskEvent(ctx context.Context, source, refID string, verdict models.RiskVerdict) error
}
