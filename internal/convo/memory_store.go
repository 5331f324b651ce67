package convo

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process SessionStore for local runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Session)}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, sessionID, companyID string) (Session, error) {
	id := strings.TrimSpace(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byID[id]; ok {
		return cloneSession(sess), nil
	}
	now := time.Now().UTC()
	sess := &Session{
		SessionID:    id,
		CompanyID:    companyID,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActivity: now,
	}
	s.byID[id] = sess
	return cloneSession(sess), nil
}

func (s *MemoryStore) AppendExchanges(_ context.Context, sessionID string, exchanges []Exchange) error {
	if len(exchanges) == 0 {
		return nil
	}
	id := strings.TrimSpace(sessionID)
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		sess = &Session{SessionID: id, CreatedAt: now}
		s.byID[id] = sess
	}
	sess.Exchanges = append(sess.Exchanges, exchanges...)
	sess.UpdatedAt = now
	sess.LastActivity = now
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, sessionID, companyID string) error {
	id := strings.TrimSpace(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byID[id]; ok {
		sess.LastActivity = time.Now().UTC()
		if companyID != "" {
			sess.CompanyID = companyID
		}
	}
	return nil
}

func cloneSession(sess *Session) Session {
	out := *sess
	out.Exchanges = make([]Exchange, len(sess.Exchanges))
	copy(out.Exchanges, sess.Exchanges)
	return out
}
