package oracle

// CapabilitySelection is one capability the model picked for a query,
// with its resolved parameter mapping.
type CapabilitySelection struct {
	CapabilityID string         `json:"api_id"`
	Confidence   float64        `json:"confidence"`
	Reasoning    string         `json:"reasoning,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}

// APIDecision is the structured answer to "which capabilities does this
// query need, if any".
type APIDecision struct {
	IsGeneralQuery       bool                  `json:"is_general_query"`
	Selected             []CapabilitySelection `json:"selected_apis"`
	NeedsClarification   bool                  `json:"needs_clarification"`
	ClarificationMessage string                `json:"clarification_message,omitempty"`
}

// ProjectRef names a project candidate.
type ProjectRef struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
}

// ProjectDecision is the structured answer to "which project does this
// query concern".
type ProjectDecision struct {
	Selected             *ProjectRef  `json:"selected_project"`
	Confidence           float64      `json:"confidence"`
	Reasoning            string       `json:"reasoning,omitempty"`
	NeedsClarification   bool         `json:"needs_clarification"`
	ClarificationMessage string       `json:"clarification_message,omitempty"`
	Alternatives         []ProjectRef `json:"alternative_projects,omitempty"`
}
