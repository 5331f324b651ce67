package company

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store is the durable company record. Backed by Postgres when a DSN is
// supplied, otherwise an in-memory map (local/dev and tests).
type Store struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error

	mu   sync.RWMutex
	byID map[string]Company
}

func New() *Store {
	return &Store{byID: make(map[string]Company)}
}

func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the company aggregate, if synced.
func (s *Store) Get(ctx context.Context, companyID string) (Company, bool) {
	if s == nil {
		return Company{}, false
	}
	id := strings.TrimSpace(companyID)
	if id == "" {
		return Company{}, false
	}
	if s.db != nil {
		return s.getDB(ctx, id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok
}

// Put stores the whole aggregate, replacing any prior record.
func (s *Store) Put(ctx context.Context, c Company) error {
	if s == nil {
		return nil
	}
	c.CompanyID = strings.TrimSpace(c.CompanyID)
	if c.CompanyID == "" {
		return nil
	}
	if s.db != nil {
		return s.putDB(ctx, c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[c.CompanyID] = c
	return nil
}

// GetProject resolves one project of a company.
func (s *Store) GetProject(ctx context.Context, companyID, projectID string) (Project, bool) {
	c, ok := s.Get(ctx, companyID)
	if !ok {
		return Project{}, false
	}
	return c.ProjectByID(projectID)
}

// SetDefaultProject records the company's fallback project id.
func (s *Store) SetDefaultProject(ctx context.Context, companyID, projectID string) error {
	c, ok := s.Get(ctx, companyID)
	if !ok {
		return nil
	}
	c.DefaultProjectID = strings.TrimSpace(projectID)
	return s.Put(ctx, c)
}
