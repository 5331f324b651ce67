package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"askerp/internal/catalog"
	"askerp/internal/company"
	"askerp/internal/config"
	"askerp/internal/convo"
	"askerp/internal/erpcall"
	"askerp/internal/logging"
)

// Oracle wraps an LLMClient with the pipeline's decision contracts:
// timeouts, response caching, history windowing, and conservative
// fallbacks when the model fails or returns garbage.
type Oracle struct {
	cli     LLMClient
	timeout time.Duration
	window  int
	cache   *expirable.LRU[string, string]
	log     *logging.Logger
}

func New(cli LLMClient, cfg config.OracleConfig, log *logging.Logger) *Oracle {
	if log == nil {
		log = logging.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	window := cfg.HistoryWindow
	if window <= 0 {
		window = 10
	}
	var cache *expirable.LRU[string, string]
	if cfg.CacheCap > 0 && cfg.CacheTTL > 0 {
		cache = expirable.NewLRU[string, string](cfg.CacheCap, nil, cfg.CacheTTL)
	}
	return &Oracle{
		cli:     cli,
		timeout: timeout,
		window:  window,
		cache:   cache,
		log:     log.Component("oracle"),
	}
}

func (o *Oracle) Close() error { return o.cli.Close() }

// decideAPIsInput is the structured context handed to the model for API
// relevance decisions.
type decideAPIsInput struct {
	Query        string               `json:"query"`
	CompanyID    string               `json:"company_id"`
	ProjectID    string               `json:"project_id"`
	Capabilities []catalog.Capability `json:"capabilities"`
	History      []convo.Exchange     `json:"history,omitempty"`
}

// DecideAPIs asks the model which capabilities the query needs. Any model
// or parse failure degrades to a needs-clarification decision.
func (o *Oracle) DecideAPIs(ctx context.Context, query string, caps []catalog.Capability, companyID, projectID string, history []convo.Exchange) APIDecision {
	if projectID == "" {
		projectID = "TBD"
	}
	input := decideAPIsInput{
		Query:        query,
		CompanyID:    companyID,
		ProjectID:    projectID,
		Capabilities: caps,
		History:      convo.LastN(history, o.window),
	}

	raw, err := o.generateJSONCached(ctx, decideAPIsPrompt, input)
	if err != nil {
		o.log.Warn().Err(err).Msg("API decision failed, falling back to clarification")
		return APIDecision{
			NeedsClarification:   true,
			ClarificationMessage: "I had trouble understanding which data to fetch. Could you rephrase your question?",
		}
	}

	var d APIDecision
	if err := json.Unmarshal(raw, &d); err != nil {
		perr := &ParseError{Err: err}
		o.log.Warn().Err(perr).Msg("API decision unparseable, falling back to clarification")
		return APIDecision{
			NeedsClarification:   true,
			ClarificationMessage: "I had trouble understanding which data to fetch. Could you rephrase your question?",
		}
	}
	return d
}

type decideProjectInput struct {
	Query    string            `json:"query"`
	Projects []company.Project `json:"projects"`
	History  []convo.Exchange  `json:"history,omitempty"`
}

// DecideProject asks the model which project the query concerns. On
// failure it falls back to the first project at low confidence with the
// full candidate list attached, so the pipeline ends in a clarification
// rather than a crash.
func (o *Oracle) DecideProject(ctx context.Context, query string, projects []company.Project, history []convo.Exchange) ProjectDecision {
	input := decideProjectInput{
		Query:    query,
		Projects: projects,
		History:  convo.LastN(history, o.window),
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	raw, err := o.cli.GenerateJSON(callCtx, decideProjectPrompt, input)
	var d ProjectDecision
	if err == nil {
		if uerr := json.Unmarshal(raw, &d); uerr != nil {
			err = &ParseError{Err: uerr}
		}
	}
	if err != nil {
		o.log.Warn().Err(err).Msg("project decision failed, falling back to first project")
		return fallbackProjectDecision(projects)
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	return d
}

func fallbackProjectDecision(projects []company.Project) ProjectDecision {
	d := ProjectDecision{
		Confidence:         0.3,
		NeedsClarification: true,
	}
	names := make([]string, 0, len(projects))
	for _, p := range projects {
		d.Alternatives = append(d.Alternatives, ProjectRef{ProjectID: p.ProjectID, ProjectName: p.Name})
		names = append(names, p.Name)
	}
	if len(projects) > 0 {
		d.Selected = &ProjectRef{ProjectID: projects[0].ProjectID, ProjectName: projects[0].Name}
	}
	d.ClarificationMessage = "I'm not sure which project you're referring to. Available projects: " + strings.Join(names, ", ")
	return d
}

type answerInput struct {
	Query   string           `json:"query"`
	History []convo.Exchange `json:"history,omitempty"`
}

// Answer returns a free-text reply for general queries.
func (o *Oracle) Answer(ctx context.Context, query string, history []convo.Exchange) string {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	text, err := o.cli.GenerateText(callCtx, answerPrompt, answerInput{
		Query:   query,
		History: convo.LastN(history, o.window),
	})
	if err != nil {
		o.log.Warn().Err(err).Msg("answer failed")
		return fmt.Sprintf("Sorry, I encountered an error: %v", err)
	}
	return text
}

type interpretInput struct {
	Query       string            `json:"query"`
	ProjectName string            `json:"project_name,omitempty"`
	Results     []erpcall.Outcome `json:"api_results"`
	History     []convo.Exchange  `json:"history,omitempty"`
}

// Interpret turns the surviving per-capability payloads into the
// user-visible prose answer. Never cached: payloads are per-turn.
func (o *Oracle) Interpret(ctx context.Context, query string, results []erpcall.Outcome, projectName string, history []convo.Exchange) string {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	text, err := o.cli.GenerateText(callCtx, interpretPrompt, interpretInput{
		Query:       query,
		ProjectName: projectName,
		Results:     results,
		History:     convo.LastN(history, o.window),
	})
	if err != nil {
		o.log.Warn().Err(err).Msg("interpretation failed")
		return fmt.Sprintf("I received the data but had trouble interpreting it: %v", err)
	}
	return text
}

// generateJSONCached serves repeated identical decision requests from the
// expirable cache.
func (o *Oracle) generateJSONCached(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	key := o.cacheKey(prompt, input)
	if o.cache != nil {
		if hit, ok := o.cache.Get(key); ok {
			o.log.Debug().Msg("oracle cache hit")
			return json.RawMessage(hit), nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	raw, err := o.cli.GenerateJSON(callCtx, prompt, input)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		o.cache.Add(key, string(raw))
	}
	return raw, nil
}

func (o *Oracle) cacheKey(prompt string, input any) string {
	in, _ := json.Marshal(input)
	sum := sha256.Sum256([]byte(o.cli.Name() + "\x00" + prompt + "\x00" + string(in)))
	return hex.EncodeToString(sum[:])
}
