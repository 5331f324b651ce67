package convo

import (
	"sync"
	"time"
)

type memoryEntry struct {
	values    map[string]string
	expiresAt time.Time
}

// SessionMemory is the sticky per-session key-value association, layered
// on the same hot-cache technology as the buffer with its own TTL. Never
// authoritative: callers fall back to full resolution when a key is gone.
type SessionMemory struct {
	mu    sync.Mutex
	items map[string]*memoryEntry
	ttl   time.Duration
}

func NewSessionMemory(ttl time.Duration) *SessionMemory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionMemory{
		items: make(map[string]*memoryEntry),
		ttl:   ttl,
	}
}

// Get returns a copy of the session's context map.
func (m *SessionMemory) Get(sessionID string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, ok := m.items[sessionID]
	if !ok {
		return nil
	}
	if time.Now().After(ent.expiresAt) {
		delete(m.items, sessionID)
		return nil
	}
	out := make(map[string]string, len(ent.values))
	for k, v := range ent.values {
		out[k] = v
	}
	return out
}

// Set merge-updates the session's context and refreshes its TTL.
func (m *SessionMemory) Set(sessionID string, updates map[string]string) {
	if len(updates) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, ok := m.items[sessionID]
	if !ok || time.Now().After(ent.expiresAt) {
		ent = &memoryEntry{values: make(map[string]string, len(updates))}
		m.items[sessionID] = ent
	}
	for k, v := range updates {
		ent.values[k] = v
	}
	ent.expiresAt = time.Now().Add(m.ttl)
}

// Clear drops the session's context.
func (m *SessionMemory) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, sessionID)
}

// Project returns the sticky project remembered for a session.
func (m *SessionMemory) Project(sessionID string) (id, name string, ok bool) {
	ctx := m.Get(sessionID)
	if ctx == nil {
		return "", "", false
	}
	id, name = ctx["project_id"], ctx["project_name"]
	if id == "" || name == "" {
		return "", "", false
	}
	return id, name, true
}

// SetProject remembers the resolved project for later turns.
func (m *SessionMemory) SetProject(sessionID, projectID, projectName string) {
	m.Set(sessionID, map[string]string{
		"project_id":   projectID,
		"project_name": projectName,
	})
}
