// Package agent composes catalog, oracle, caller and conversation cache
// into the end-to-end query pipeline.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"askerp/internal/catalog"
	"askerp/internal/company"
	"askerp/internal/config"
	"askerp/internal/convo"
	"askerp/internal/erpcall"
	"askerp/internal/logging"
	"askerp/internal/oracle"
)

// Decider is the decision-oracle surface the orchestrator consumes.
type Decider interface {
	DecideAPIs(ctx context.Context, query string, caps []catalog.Capability, companyID, projectID string, history []convo.Exchange) oracle.APIDecision
	DecideProject(ctx context.Context, query string, projects []company.Project, history []convo.Exchange) oracle.ProjectDecision
	Answer(ctx context.Context, query string, history []convo.Exchange) string
	Interpret(ctx context.Context, query string, results []erpcall.Outcome, projectName string, history []convo.Exchange) string
}

// ERPCaller executes resolved capability calls and serves bootstrap data.
type ERPCaller interface {
	Call(ctx context.Context, def catalog.Capability, params map[string]any) erpcall.Outcome
	FetchBootstrap(ctx context.Context, companyID string) (erpcall.Bootstrap, error)
}

// Query is one inbound question.
type Query struct {
	Query     string
	CompanyID string
	SessionID string
	// ProjectID, when set, pins the project explicitly.
	ProjectID string
}

// Orchestrator runs the single-pass pipeline. It keeps no state across
// calls beyond what the conversation cache and session memory provide.
type Orchestrator struct {
	catalog   *catalog.Catalog
	decider   Decider
	caller    ERPCaller
	companies *company.Store
	history   *convo.History
	memory    *convo.SessionMemory
	cfg       config.OracleConfig
	log       *logging.Logger
}

func New(cat *catalog.Catalog, decider Decider, caller ERPCaller, companies *company.Store,
	history *convo.History, memory *convo.SessionMemory, cfg config.OracleConfig, log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.ConfidenceHigh <= 0 {
		cfg.ConfidenceHigh = 0.7
	}
	if cfg.ConfidenceLow <= 0 {
		cfg.ConfidenceLow = 0.5
	}
	return &Orchestrator{
		catalog:   cat,
		decider:   decider,
		caller:    caller,
		companies: companies,
		history:   history,
		memory:    memory,
		cfg:       cfg,
		log:       log.Component("agent"),
	}
}

// ProcessQuery drives one turn: relevance decision, project resolution,
// parallel invocation, interpretation, persistence. It always terminates
// with a Result; failures are fields, not panics.
func (o *Orchestrator) ProcessQuery(ctx context.Context, q Query) Result {
	start := time.Now()
	var res Result
	defer func() { res.Timings.TotalMS = ms(time.Since(start)) }()

	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		res = Result{
			Error:    "empty query",
			Response: "Query cannot be empty.",
		}
		return res
	}

	// Context fetching: history plus sticky project.
	tCtx := time.Now()
	history, err := o.history.Load(ctx, q.SessionID, q.CompanyID)
	if err != nil {
		o.log.Warn().Err(err).Str("session", q.SessionID).Msg("history load failed, proceeding without context")
		history = nil
	}
	explicitProject := strings.TrimSpace(q.ProjectID) != ""
	stickyProject := false
	if !explicitProject {
		if id, name, ok := o.memory.Project(q.SessionID); ok {
			q.ProjectID = id
			stickyProject = true
			o.log.Debug().Str("session", q.SessionID).Str("project", name).Msg("using sticky project")
		}
	}
	res.Timings.ContextMS = ms(time.Since(tCtx))

	// DecideRelevance.
	tSel := time.Now()
	decision := o.decider.DecideAPIs(ctx, q.Query, o.catalog.ListAll(), q.CompanyID, q.ProjectID, history)
	res.Timings.APISelectionMS = ms(time.Since(tSel))

	if decision.IsGeneralQuery || (len(decision.Selected) == 0 && !decision.NeedsClarification) {
		tAns := time.Now()
		answer := o.decider.Answer(ctx, q.Query, history)
		res.Timings.InterpretationMS = ms(time.Since(tAns))
		res.Success = true
		res.Response = answer
		res.IsGeneralQuery = decision.IsGeneralQuery
		res.SelectedAPIs = []oracle.CapabilitySelection{}
		o.persist(ctx, q, res.Response, nil)
		return res
	}
	if len(decision.Selected) == 0 {
		res.NeedsClarification = true
		res.Response = clarificationOr(decision.ClarificationMessage,
			"I couldn't find a relevant API. Could you rephrase your question?")
		res.ClarificationMessage = res.Response
		o.persist(ctx, q, res.Response, nil)
		return res
	}

	// ResolveProject.
	tProj := time.Now()
	proj, note, fail := o.resolveProject(ctx, q, history, explicitProject, stickyProject)
	res.Timings.ProjectSelectionMS = ms(time.Since(tProj))
	if fail != nil {
		res.NeedsClarification = true
		res.Error = fail.err
		res.Response = fail.message
		res.ClarificationMessage = fail.message
		res.AlternativeProjects = fail.alternatives
		o.persist(ctx, q, res.Response, nil)
		return res
	}
	res.Project = &oracle.ProjectRef{ProjectID: proj.ProjectID, ProjectName: proj.ProjectName}

	// Invoke.
	tCalls := time.Now()
	outcomes := o.invoke(ctx, decision.Selected, proj.ProjectID, q.CompanyID)
	res.Timings.APICallsMS = ms(time.Since(tCalls))
	res.SelectedAPIs = decision.Selected
	res.APIResponses = outcomes

	succeeded := 0
	for _, out := range outcomes {
		if out.Success {
			succeeded++
			res.RawData = append(res.RawData, out.Data)
		}
	}
	if succeeded == 0 {
		res.Error = "failed to fetch data from APIs"
		res.Response = "I encountered an error while fetching the data. Please try again."
		o.persist(ctx, q, res.Response, nil)
		return res
	}

	// Interpret.
	tInt := time.Now()
	res.Response = o.decider.Interpret(ctx, q.Query, outcomes, proj.ProjectName, history)
	res.Timings.InterpretationMS = ms(time.Since(tInt))
	res.Success = true
	res.ClarificationNote = note

	o.persist(ctx, q, res.Response, res.Project)
	return res
}

type projectFailure struct {
	err          string
	message      string
	alternatives []oracle.ProjectRef
}

// resolveProject settles which project the turn concerns. Explicit ids
// are validated and invalid ones rejected; a stale sticky id falls back
// to full resolution instead.
func (o *Orchestrator) resolveProject(ctx context.Context, q Query, history []convo.Exchange, explicit, sticky bool) (oracle.ProjectRef, string, *projectFailure) {
	if q.ProjectID != "" {
		if p, ok := o.lookupProject(ctx, q.CompanyID, q.ProjectID); ok {
			return oracle.ProjectRef{ProjectID: p.ProjectID, ProjectName: p.Name}, "", nil
		}
		if explicit {
			return oracle.ProjectRef{}, "", &projectFailure{
				err:     "invalid project",
				message: fmt.Sprintf("Project %s not found for company %s.", q.ProjectID, q.CompanyID),
			}
		}
		// Sticky project no longer valid: forget it and resolve afresh.
		if sticky {
			o.memory.Clear(q.SessionID)
		}
	}

	boot, err := o.caller.FetchBootstrap(ctx, q.CompanyID)
	if err != nil {
		return oracle.ProjectRef{}, "", &projectFailure{
			err:     "bootstrap fetch failed",
			message: fmt.Sprintf("Unable to fetch company data: %v", err),
		}
	}
	comp, serr := erpcall.SyncCompany(ctx, o.companies, q.CompanyID, boot)
	if serr != nil {
		o.log.Warn().Err(serr).Str("company", q.CompanyID).Msg("company sync failed")
		comp = company.Company{CompanyID: q.CompanyID, Projects: boot.Projects}
	}
	projects := boot.Projects
	if len(projects) == 0 {
		return oracle.ProjectRef{}, "", &projectFailure{
			err:     "no projects",
			message: "No projects found for this company. Please sync projects first.",
		}
	}

	// A single project is accepted outright, never sent to the oracle.
	if len(projects) == 1 {
		return oracle.ProjectRef{ProjectID: projects[0].ProjectID, ProjectName: projects[0].Name}, "", nil
	}

	d := o.decider.DecideProject(ctx, q.Query, projects, history)
	// Repair a selection whose id matches no project: the model sometimes
	// returns the right name with a mangled id.
	if d.Selected != nil {
		if _, ok := comp.ProjectByID(d.Selected.ProjectID); !ok {
			if p, ok := comp.ProjectByName(d.Selected.ProjectName); ok {
				d.Selected = &oracle.ProjectRef{ProjectID: p.ProjectID, ProjectName: p.Name}
			} else {
				o.log.Warn().Str("project", d.Selected.ProjectID).Msg("oracle selected unknown project")
				d.Selected = nil
			}
		}
	}
	if d.Selected == nil || d.Confidence < o.cfg.ConfidenceLow {
		// A company-configured default project settles the turn instead of
		// a clarification round-trip.
		if comp.DefaultProjectID != "" {
			if p, ok := comp.ProjectByID(comp.DefaultProjectID); ok {
				note := fmt.Sprintf("Using default project: %s. Please specify if you meant a different project.", p.Name)
				return oracle.ProjectRef{ProjectID: p.ProjectID, ProjectName: p.Name}, note, nil
			}
		}
		alts := d.Alternatives
		if len(alts) == 0 {
			for _, p := range projects {
				alts = append(alts, oracle.ProjectRef{ProjectID: p.ProjectID, ProjectName: p.Name})
			}
		}
		return oracle.ProjectRef{}, "", &projectFailure{
			err: "project clarification needed",
			message: clarificationOr(d.ClarificationMessage,
				"Please specify which project you're asking about. Available projects: "+projectNames(projects)),
			alternatives: alts,
		}
	}

	note := ""
	if d.Confidence <= o.cfg.ConfidenceHigh {
		note = clarificationOr(d.ClarificationMessage,
			fmt.Sprintf("Using project: %s. Please specify if you meant a different project.", d.Selected.ProjectName))
	}
	return *d.Selected, note, nil
}

func (o *Orchestrator) lookupProject(ctx context.Context, companyID, projectID string) (company.Project, bool) {
	if p, ok := o.companies.GetProject(ctx, companyID, projectID); ok {
		return p, true
	}
	// Company possibly never synced; refresh once from bootstrap.
	if _, ok := o.companies.Get(ctx, companyID); !ok {
		boot, err := o.caller.FetchBootstrap(ctx, companyID)
		if err != nil {
			return company.Project{}, false
		}
		if _, err := erpcall.SyncCompany(ctx, o.companies, companyID, boot); err != nil {
			return company.Project{}, false
		}
		return o.companies.GetProject(ctx, companyID, projectID)
	}
	return company.Project{}, false
}

// invoke fans out every selected capability concurrently and waits for
// all to settle. Failed calls stay in the outcome set; the batch only
// fails as a whole upstream when nothing succeeded.
func (o *Orchestrator) invoke(ctx context.Context, selected []oracle.CapabilitySelection, projectID, companyID string) []erpcall.Outcome {
	type job struct {
		def    catalog.Capability
		params map[string]any
	}
	jobs := make([]job, 0, len(selected))
	for _, sel := range selected {
		def, ok := o.catalog.ByID(sel.CapabilityID)
		if !ok {
			o.log.Warn().Str("capability", sel.CapabilityID).Msg("selected capability not in catalog")
			continue
		}
		jobs = append(jobs, job{def: def, params: mergeParams(def, sel.Parameters, projectID, companyID)})
	}
	if len(jobs) == 0 {
		return nil
	}

	outcomes := make([]erpcall.Outcome, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			outcomes[i] = o.caller.Call(ctx, j.def, j.params)
		}(i, j)
	}
	wg.Wait()
	return outcomes
}

// mergeParams resolves the final parameter mapping: oracle-resolved value
// wins over the capability default, default wins over example. The
// resolved project and company ids are always injected.
func mergeParams(def catalog.Capability, resolved map[string]any, projectID, companyID string) map[string]any {
	params := make(map[string]any, len(resolved)+2)
	for k, v := range resolved {
		params[k] = v
	}
	if _, ok := params["projectId"]; !ok {
		params["projectId"] = projectID
	}
	if _, ok := params["company_id"]; !ok {
		params["company_id"] = companyID
	}
	for _, p := range def.Parameters {
		if _, ok := params[p.Name]; ok {
			continue
		}
		if p.Default != nil {
			params[p.Name] = p.Default
		} else if p.Example != nil {
			params[p.Name] = p.Example
		}
	}
	return params
}

// persist records the turn in the conversation cache and pins the
// resolved project for later turns in the session.
func (o *Orchestrator) persist(ctx context.Context, q Query, response string, proj *oracle.ProjectRef) {
	if proj != nil && proj.ProjectID != "" && proj.ProjectName != "" {
		o.memory.SetProject(q.SessionID, proj.ProjectID, proj.ProjectName)
	}
	if err := o.history.Append(ctx, q.SessionID, q.CompanyID, q.Query, response); err != nil {
		o.log.Warn().Err(err).Str("session", q.SessionID).Msg("exchange append failed")
	}
}

func clarificationOr(msg, fallback string) string {
	if strings.TrimSpace(msg) != "" {
		return msg
	}
	return fallback
}

func projectNames(projects []company.Project) string {
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}
