package convo

import (
	"context"
	"time"
)

// Session is the durable record of one conversation. Its exchange
// sequence is append-only: never reordered, never mutated.
type Session struct {
	SessionID    string     `json:"session_id"`
	CompanyID    string     `json:"company_id,omitempty"`
	Exchanges    []Exchange `json:"messages"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastActivity time.Time  `json:"last_activity"`
}

// SessionStore is the durable side of the conversation cache.
type SessionStore interface {
	// GetOrCreate fetches a session, lazily creating the record on first
	// access.
	GetOrCreate(ctx context.Context, sessionID, companyID string) (Session, error)
	// AppendExchanges appends drained buffer entries to the exchange
	// sequence in one update, refreshing last-activity.
	AppendExchanges(ctx context.Context, sessionID string, exchanges []Exchange) error
	// Touch refreshes the session's last-activity timestamp.
	Touch(ctx context.Context, sessionID, companyID string) error
}
