package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time.
// This ensures schema init works inside the Docker runtime image which
// does not copy internal/db/schema.sql into the final stage.
//
//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for UPI Fraud Engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	_, err := s.pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("UPI Fraud Engine schema initialized")
	return nil
}

// GetPool exposes the connection pool for other subsystems
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}

// FindBySessionID loads one chat session document. Returns (nil, nil) when
// the session does not exist.
func (s *PostgresStore) FindBySessionID(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	sql := `SELECT document FROM chat_sessions WHERE session_id = $1`

	var raw []byte
	err := s.pool.QueryRow(ctx, sql, sessionID).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat session %s: %v", sessionID, err)
	}

	var session models.ChatSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("corrupt session document %s: %v", sessionID, err)
	}
	return &session, nil
}

// Create inserts a fresh chat session document.
func (s *PostgresStore) Create(ctx context.Context, sessionID, scammerID, victimID string) (*models.ChatSession, error) {
	session := &models.ChatSession{
		SessionID: sessionID,
		ScammerID: scammerID,
		VictimID:  victimID,
		Messages:  []models.ChatMessage{},
		CreatedAt: time.Now(),
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}

	sql := `
		INSERT INTO chat_sessions (session_id, scammer_id, victim_id, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, sql, sessionID, scammerID, victimID, raw); err != nil {
		return nil, fmt.Errorf("failed to create chat session %s: %v", sessionID, err)
	}
	return session, nil
}

// Save upserts the full session document. The orchestrator serializes turns
// per session so the whole-document write never races itself.
func (s *PostgresStore) Save(ctx context.Context, session *models.ChatSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}

	sql := `
		INSERT INTO chat_sessions (session_id, scammer_id, victim_id, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE SET
			document = EXCLUDED.document,
			updated_at = NOW();
	`
	_, err = s.pool.Exec(ctx, sql, session.SessionID, session.ScammerID, session.VictimID, raw)
	if err != nil {
		return fmt.Errorf("failed to save chat session %s: %v", session.SessionID, err)
	}
	return nil
}

// FindMatching returns the first blacklist entry matching the scammer ID,
// any of the UPI IDs, or any of the phone numbers. Returns (nil, nil) on no
// match.
func (s *PostgresStore) FindMatching(ctx context.Context, scammerID string, upiIDs, phoneNumbers []string) (*models.BlacklistEntry, error) {
	sql := `
		SELECT scammer_id, upi_ids, phone_numbers, reason, added_at
		FROM blacklist_entries
		WHERE scammer_id = $1 OR upi_ids && $2 OR phone_numbers && $3
		LIMIT 1;
	`
	var entry models.BlacklistEntry
	err := s.pool.QueryRow(ctx, sql, scammerID, upiIDs, phoneNumbers).
		Scan(&entry.ScammerID, &entry.UPIIDs, &entry.PhoneNumbers, &entry.Reason, &entry.AddedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blacklist lookup failed: %v", err)
	}
	return &entry, nil
}

// Upsert merges identifiers into a blacklist entry with array set-union
// semantics.
func (s *PostgresStore) Upsert(ctx context.Context, scammerID string, upiIDs, phoneNumbers []string, reason string) error {
	sql := `
		INSERT INTO blacklist_entries (scammer_id, upi_ids, phone_numbers, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scammer_id) DO UPDATE SET
			upi_ids = (
				SELECT ARRAY(SELECT DISTINCT unnest(blacklist_entries.upi_ids || EXCLUDED.upi_ids))
			),
			phone_numbers = (
				SELECT ARRAY(SELECT DISTINCT unnest(blacklist_entries.phone_numbers || EXCLUDED.phone_numbers))
			),
			reason = EXCLUDED.reason,
			updated_at = NOW();
	`
	_, err := s.pool.Exec(ctx, sql, scammerID, upiIDs, phoneNumbers, reason)
	if err != nil {
		return fmt.Errorf("blacklist upsert failed for %s: %v", scammerID, err)
	}
	return nil
}

// IsPhishingDomain checks the known-bad host table. Lookup is lower-cased.
// Errors degrade to false so the URL analyzer keeps working without the DB.
func (s *PostgresStore) IsPhishingDomain(ctx context.Context, host string) bool {
	sql := `SELECT EXISTS (SELECT 1 FROM phishing_domains WHERE domain = $1)`

	var found bool
	if err := s.pool.QueryRow(ctx, sql, strings.ToLower(host)).Scan(&found); err != nil {
		log.Printf("[DB] Phishing domain lookup failed: %v", err)
		return false
	}
	return found
}

// AddPhishingDomain registers a known-bad host.
func (s *PostgresStore) AddPhishingDomain(ctx context.Context, host string) error {
	sql := `INSERT INTO phishing_domains (domain) VALUES ($1) ON CONFLICT (domain) DO NOTHING`
	_, err := s.pool.Exec(ctx, sql, strings.ToLower(strings.TrimSpace(host)))
	return err
}

// ListPhishingDomains returns all registered hosts, newest first.
func (s *PostgresStore) ListPhishingDomains(ctx context.Context) ([]models.PhishingDomain, error) {
	sql := `SELECT domain, added_at FROM phishing_domains ORDER BY added_at DESC`

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	domains := make([]models.PhishingDomain, 0)
	for rows.Next() {
		var d models.PhishingDomain
		if err := rows.Scan(&d.Domain, &d.AddedAt); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// RecordRiskEvent stores one fused verdict for offline investigation.
func (s *PostgresStore) RecordRiskEvent(ctx context.Context, source, refID string, verdict models.RiskVerdict) error {
	var category *string
	if verdict.FraudCategory != nil {
		category = &verdict.FraudCategory.Name
	}

	sql := `
		INSERT INTO risk_events (source, ref_id, risk_score, risk_level, category, indicators)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := s.pool.Exec(ctx, sql, source, refID, verdict.RiskScore, string(verdict.RiskLevel), category, verdict.Indicators)
	return err
}
