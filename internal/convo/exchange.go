// Package convo keeps conversation history: a hot per-session buffer in
// front of a durable store, reconciled by a debounced write-behind flush,
// plus a small sticky session memory.
package convo

import (
	"encoding/json"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Exchange is one message of a conversation turn. Immutable once created;
// a user question and its assistant answer are always created together.
type Exchange struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPair builds the user+assistant exchange pair for one turn.
func NewPair(userText, assistantText string) [2]Exchange {
	now := time.Now().UTC()
	return [2]Exchange{
		{Role: RoleUser, Content: userText, Timestamp: now},
		{Role: RoleAssistant, Content: assistantText, Timestamp: now},
	}
}

func marshalExchange(e Exchange) string {
	raw, _ := json.Marshal(e)
	return string(raw)
}

func unmarshalExchange(raw string) (Exchange, error) {
	var e Exchange
	err := json.Unmarshal([]byte(raw), &e)
	return e, err
}

// LastN returns the most recent n exchanges, preserving order.
func LastN(history []Exchange, n int) []Exchange {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
