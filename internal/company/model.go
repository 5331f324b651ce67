package company

import (
	"sort"
	"strings"
	"time"
)

type ProjectStatus string

const (
	StatusActive    ProjectStatus = "active"
	StatusInactive  ProjectStatus = "inactive"
	StatusCompleted ProjectStatus = "completed"
	StatusOnHold    ProjectStatus = "on_hold"
)

// Project is one business project within a company. Keywords and aliases
// feed fuzzy matching during project resolution.
type Project struct {
	ProjectID   string         `json:"project_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      ProjectStatus  `json:"status"`
	Location    string         `json:"location,omitempty"`
	Keywords    []string       `json:"keywords,omitempty"`
	Aliases     []string       `json:"aliases,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Supplier struct {
	SupplierID string         `json:"supplier_id"`
	Name       string         `json:"name"`
	Type       string         `json:"type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type Module struct {
	ModuleID string `json:"module_id"`
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
}

// Company is the aggregate root. Created and refreshed by the bootstrap
// sync; read-only from the orchestrator except for the default project.
type Company struct {
	CompanyID        string     `json:"company_id"`
	Name             string     `json:"name"`
	Projects         []Project  `json:"projects"`
	Suppliers        []Supplier `json:"suppliers,omitempty"`
	Modules          []Module   `json:"modules,omitempty"`
	DefaultProjectID string     `json:"default_project_id,omitempty"`
	LastSyncedAt     time.Time  `json:"last_synced_at"`
}

// ProjectByID returns the project with the given id, if present.
func (c *Company) ProjectByID(projectID string) (Project, bool) {
	id := strings.TrimSpace(projectID)
	for _, p := range c.Projects {
		if p.ProjectID == id {
			return p, true
		}
	}
	return Project{}, false
}

// ProjectByName matches name or alias, case-insensitively.
func (c *Company) ProjectByName(name string) (Project, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range c.Projects {
		if strings.ToLower(p.Name) == n {
			return p, true
		}
		for _, alias := range p.Aliases {
			if strings.ToLower(alias) == n {
				return p, true
			}
		}
	}
	return Project{}, false
}

// SearchProjects scores projects against a free-text query across name,
// aliases, keywords and description, best match first.
func (c *Company) SearchProjects(query string) []Project {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	type scored struct {
		p     Project
		score int
	}
	var hits []scored
	for _, p := range c.Projects {
		score := 0
		if strings.Contains(strings.ToLower(p.Name), q) {
			score += 10
		}
		for _, alias := range p.Aliases {
			if strings.Contains(strings.ToLower(alias), q) {
				score += 8
			}
		}
		for _, kw := range p.Keywords {
			if strings.Contains(strings.ToLower(kw), q) {
				score += 5
			}
		}
		if p.Description != "" && strings.Contains(strings.ToLower(p.Description), q) {
			score += 3
		}
		if score > 0 {
			hits = append(hits, scored{p: p, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	out := make([]Project, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out
}
