package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type catalogFile struct {
	APIs []Capability `json:"apis"`
}

// LoadFile reads a catalog JSON file. A missing file yields an empty
// catalog rather than an error so a fresh deployment can start clean.
func LoadFile(path string) (*Catalog, error) {
	c := New(nil)
	c.path = path

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var doc catalogFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i := range doc.APIs {
		doc.APIs[i].ID = strings.TrimSpace(doc.APIs[i].ID)
	}
	c.replace(doc.APIs)
	return c, nil
}

// Reload re-reads the backing file in place.
func (c *Catalog) Reload() error {
	c.mu.RLock()
	path := c.path
	c.mu.RUnlock()
	if path == "" {
		return nil
	}
	fresh, err := LoadFile(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replace(fresh.caps)
	return nil
}

// Add registers a new capability and persists the catalog when it is
// file-backed. Duplicate ids are rejected.
func (c *Catalog) Add(def Capability) error {
	def.ID = strings.TrimSpace(def.ID)
	if def.ID == "" {
		return errors.New("capability id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[def.ID]; ok {
		return fmt.Errorf("capability %q already in catalog", def.ID)
	}
	c.caps = append(c.caps, def)
	c.byID[def.ID] = len(c.caps) - 1
	return c.saveLocked()
}

func (c *Catalog) saveLocked() error {
	if c.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(catalogFile{APIs: c.caps}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path, raw, 0o644)
}
