package convo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore is the durable SessionStore backed by Postgres. The
// exchange sequence lives in a JSONB column and only ever grows.
type PostgresStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureSchema() error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS chat_sessions (
  session_id TEXT PRIMARY KEY,
  company_id TEXT NOT NULL DEFAULT '',
  messages JSONB NOT NULL DEFAULT '[]'::jsonb,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  last_activity TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_last_activity ON chat_sessions (last_activity);`)
	})
	return s.schemaErr
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, sessionID, companyID string) (Session, error) {
	if err := s.ensureSchema(); err != nil {
		return Session{}, err
	}
	id := strings.TrimSpace(sessionID)

	var sess Session
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
SELECT session_id, company_id, messages, created_at, updated_at, last_activity
FROM chat_sessions WHERE session_id = $1`, id).Scan(
		&sess.SessionID, &sess.CompanyID, &raw,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.LastActivity)
	if err == nil {
		if uerr := json.Unmarshal(raw, &sess.Exchanges); uerr != nil {
			return Session{}, uerr
		}
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Session{}, err
	}

	err = s.db.QueryRowContext(ctx, `
INSERT INTO chat_sessions (session_id, company_id)
VALUES ($1, $2)
ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
RETURNING session_id, company_id, created_at, updated_at, last_activity`,
		id, companyID).Scan(
		&sess.SessionID, &sess.CompanyID,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.LastActivity)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *PostgresStore) AppendExchanges(ctx context.Context, sessionID string, exchanges []Exchange) error {
	if len(exchanges) == 0 {
		return nil
	}
	if err := s.ensureSchema(); err != nil {
		return err
	}
	raw, err := json.Marshal(exchanges)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO chat_sessions (session_id, messages, updated_at, last_activity)
VALUES ($1, $2::jsonb, NOW(), NOW())
ON CONFLICT (session_id)
DO UPDATE SET messages = chat_sessions.messages || EXCLUDED.messages,
  updated_at = NOW(), last_activity = NOW()`,
		strings.TrimSpace(sessionID), raw)
	return err
}

func (s *PostgresStore) Touch(ctx context.Context, sessionID, companyID string) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE chat_sessions SET last_activity = NOW(),
  company_id = CASE WHEN $2 <> '' THEN $2 ELSE company_id END
WHERE session_id = $1`,
		strings.TrimSpace(sessionID), companyID)
	return err
}
