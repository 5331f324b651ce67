package catalog

import (
	"strings"
	"sync"
)

// Location says where a parameter travels in the HTTP request.
type Location string

const (
	LocationQuery Location = "query"
	LocationPath  Location = "path"
	LocationForm  Location = "form"
	LocationBody  Location = "body"
)

// Parameter is one entry of a capability's parameter contract.
type Parameter struct {
	Name        string   `json:"name"`
	Location    Location `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required"`
	Default     any      `json:"default,omitempty"`
	Example     any      `json:"example,omitempty"`
}

// Capability is one invocable ERP operation. Immutable after load;
// ID is the unique key.
type Capability struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Endpoint      string      `json:"endpoint"`
	Method        string      `json:"method"`
	Parameters    []Parameter `json:"parameters"`
	Tags          []string    `json:"tags,omitempty"`
	Examples      []string    `json:"examples,omitempty"`
	ResponseDescr string      `json:"response_description,omitempty"`
}

// Catalog holds the loaded capability set.
type Catalog struct {
	mu   sync.RWMutex
	path string
	caps []Capability
	byID map[string]int
}

func New(caps []Capability) *Catalog {
	c := &Catalog{byID: make(map[string]int)}
	c.replace(caps)
	return c
}

func (c *Catalog) replace(caps []Capability) {
	c.caps = caps
	c.byID = make(map[string]int, len(caps))
	for i, def := range caps {
		c.byID[def.ID] = i
	}
}

// ListAll returns a copy of every capability definition.
func (c *Catalog) ListAll() []Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Capability, len(c.caps))
	copy(out, c.caps)
	return out
}

// ByID returns the capability with the given id, if present.
func (c *Catalog) ByID(id string) (Capability, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Capability{}, false
	}
	return c.caps[i], true
}

// Len reports the number of loaded capabilities.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.caps)
}

// Search does a case-insensitive substring match over name, description
// and tags.
func (c *Catalog) Search(query string) []Capability {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Capability
	for _, def := range c.caps {
		if strings.Contains(strings.ToLower(def.Name), q) ||
			strings.Contains(strings.ToLower(def.Description), q) {
			out = append(out, def)
			continue
		}
		for _, tag := range def.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				out = append(out, def)
				break
			}
		}
	}
	return out
}
