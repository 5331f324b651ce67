package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"askerp/internal/agent"
	"askerp/internal/catalog"
	"askerp/internal/company"
	"askerp/internal/convo"
	"askerp/internal/erpcall"
	"askerp/internal/logging"
)

// apiServer is the thin HTTP surface in front of the orchestrator.
// Validation and auth middleware live outside this repo.
type apiServer struct {
	orch      *agent.Orchestrator
	history   *convo.History
	caller    *erpcall.Caller
	catalog   *catalog.Catalog
	companies *company.Store
	log       *logging.Logger
}

func newAPIServer(orch *agent.Orchestrator, history *convo.History, caller *erpcall.Caller, cat *catalog.Catalog, companies *company.Store, log *logging.Logger) *apiServer {
	return &apiServer{orch: orch, history: history, caller: caller, catalog: cat, companies: companies, log: log.Component("http")}
}

func buildMux(s *apiServer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/chat/history", s.handleHistory)
	mux.HandleFunc("/apis", s.handleAPIs)
	mux.HandleFunc("/apis/reload", s.handleReloadAPIs)
	mux.HandleFunc("/projects", s.handleProjects)
	mux.HandleFunc("/projects/default", s.handleDefaultProject)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

type chatRequest struct {
	Query     string `json:"query"`
	CompanyID string `json:"company_id"`
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id,omitempty"`
}

func (s *apiServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in chatRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.SessionID) == "" {
		in.SessionID = uuid.NewString()
	}

	// A client abandoning the request must not abort in-flight capability
	// calls; the turn runs to completion and lands in history either way.
	ctx := context.WithoutCancel(r.Context())
	res := s.orch.ProcessQuery(ctx, agent.Query{
		Query:     in.Query,
		CompanyID: in.CompanyID,
		SessionID: in.SessionID,
		ProjectID: in.ProjectID,
	})

	writeJSON(w, map[string]any{
		"session_id": in.SessionID,
		"result":     res,
	})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	history, err := s.history.Load(r.Context(), sessionID, r.URL.Query().Get("company_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"session_id": sessionID,
		"messages":   history,
	})
}

func (s *apiServer) handleAPIs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
			writeJSON(w, map[string]any{"apis": s.catalog.Search(q)})
			return
		}
		writeJSON(w, map[string]any{"apis": s.catalog.ListAll()})
	case http.MethodPost:
		var def catalog.Capability
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if err := s.catalog.Add(def); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		s.log.Info().Str("capability", def.ID).Msg("capability added")
		writeJSON(w, map[string]any{"added": def.ID, "total": s.catalog.Len()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *apiServer) handleReloadAPIs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.catalog.Reload(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"reloaded": true, "total": s.catalog.Len()})
}

// handleProjects lists a synced company's projects; ?q= narrows them with
// the scored free-text search so a chat UI can offer a picker.
func (s *apiServer) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	companyID := strings.TrimSpace(r.URL.Query().Get("company_id"))
	if companyID == "" {
		http.Error(w, "company_id is required", http.StatusBadRequest)
		return
	}
	comp, ok := s.companies.Get(r.Context(), companyID)
	if !ok {
		http.Error(w, "company not synced", http.StatusNotFound)
		return
	}
	projects := comp.Projects
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		projects = comp.SearchProjects(q)
	}
	writeJSON(w, map[string]any{
		"company_id":         companyID,
		"default_project_id": comp.DefaultProjectID,
		"projects":           projects,
	})
}

type defaultProjectRequest struct {
	CompanyID string `json:"company_id"`
	ProjectID string `json:"project_id"`
}

func (s *apiServer) handleDefaultProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in defaultProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.CompanyID) == "" || strings.TrimSpace(in.ProjectID) == "" {
		http.Error(w, "company_id and project_id are required", http.StatusBadRequest)
		return
	}
	if _, ok := s.companies.GetProject(r.Context(), in.CompanyID, in.ProjectID); !ok {
		http.Error(w, "project not found for company", http.StatusNotFound)
		return
	}
	if err := s.companies.SetDefaultProject(r.Context(), in.CompanyID, in.ProjectID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info().Str("company", in.CompanyID).Str("project", in.ProjectID).Msg("default project set")
	writeJSON(w, map[string]any{"company_id": in.CompanyID, "default_project_id": in.ProjectID})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	erp := "healthy"
	if err := s.caller.HealthCheck(r.Context()); err != nil {
		erp = "unhealthy"
	}
	writeJSON(w, map[string]any{"status": "ok", "erp": erp})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// withCORS mirrors the request origin. Credential-bearing auth sits in
// front of this service.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
