// Package oracle adapts a language model into the pipeline's structured
// decision capability: API relevance, project resolution, free-text
// answers and result interpretation.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrInvalidJSON = errors.New("invalid json from LLM")

// ParseError marks a decision payload that did not match its contract.
// The orchestrator maps it to a conservative fallback, never a crash.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "decision parse failure: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// LLMClient is the raw model surface. Cross-cutting concerns (caching,
// timeouts, fallbacks) live in Oracle, not here.
type LLMClient interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	GenerateText(ctx context.Context, prompt string, input any) (string, error)
	Close() error
}
