package agent

import (
	"time"

	"askerp/internal/erpcall"
	"askerp/internal/oracle"
)

// Timings is the per-stage wall-clock breakdown. Part of the result
// contract, not a logging side effect.
type Timings struct {
	ContextMS          float64 `json:"context_fetching_ms"`
	APISelectionMS     float64 `json:"api_selection_ms"`
	ProjectSelectionMS float64 `json:"project_selection_ms"`
	APICallsMS         float64 `json:"api_calls_ms"`
	InterpretationMS   float64 `json:"interpretation_ms"`
	TotalMS            float64 `json:"total_ms"`
}

// Result is the orchestrator's terminal answer for one query. Every
// failure mode sets a field a caller can branch on.
type Result struct {
	Success        bool   `json:"success"`
	Response       string `json:"response"`
	Error          string `json:"error,omitempty"`
	IsGeneralQuery bool   `json:"is_general_query,omitempty"`

	Project      *oracle.ProjectRef           `json:"project,omitempty"`
	SelectedAPIs []oracle.CapabilitySelection `json:"selected_apis,omitempty"`
	APIResponses []erpcall.Outcome            `json:"api_responses,omitempty"`
	RawData      []any                        `json:"raw_data,omitempty"`

	NeedsClarification   bool                `json:"needs_clarification,omitempty"`
	ClarificationMessage string              `json:"clarification_message,omitempty"`
	ClarificationNote    string              `json:"clarification_note,omitempty"`
	AlternativeProjects  []oracle.ProjectRef `json:"alternative_projects,omitempty"`

	Timings Timings `json:"timings"`
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
