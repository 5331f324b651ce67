package company

import (
	"context"
	"encoding/json"
)

func (s *Store) ensureSchema() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS companies (
  company_id TEXT PRIMARY KEY,
  doc JSONB NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);`)
	})
	return s.schemaErr
}

func (s *Store) getDB(ctx context.Context, companyID string) (Company, bool) {
	if err := s.ensureSchema(); err != nil {
		return Company{}, false
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM companies WHERE company_id = $1`, companyID).Scan(&raw)
	if err != nil {
		return Company{}, false
	}
	var c Company
	if err := json.Unmarshal(raw, &c); err != nil {
		return Company{}, false
	}
	c.CompanyID = companyID
	return c, true
}

func (s *Store) putDB(ctx context.Context, c Company) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO companies (company_id, doc, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (company_id)
DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`,
		c.CompanyID, raw)
	return err
}
