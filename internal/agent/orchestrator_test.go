package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"askerp/internal/catalog"
	"askerp/internal/company"
	"askerp/internal/config"
	"askerp/internal/convo"
	"askerp/internal/erpcall"
	"askerp/internal/oracle"
)

type fakeDecider struct {
	apiDecision  oracle.APIDecision
	projDecision oracle.ProjectDecision

	mu             sync.Mutex
	projectCalls   int
	answerCalls    int
	interpretCalls int
}

func (f *fakeDecider) DecideAPIs(context.Context, string, []catalog.Capability, string, string, []convo.Exchange) oracle.APIDecision {
	return f.apiDecision
}

func (f *fakeDecider) DecideProject(context.Context, string, []company.Project, []convo.Exchange) oracle.ProjectDecision {
	f.mu.Lock()
	f.projectCalls++
	f.mu.Unlock()
	return f.projDecision
}

func (f *fakeDecider) Answer(context.Context, string, []convo.Exchange) string {
	f.mu.Lock()
	f.answerCalls++
	f.mu.Unlock()
	return "general answer"
}

func (f *fakeDecider) Interpret(context.Context, string, []erpcall.Outcome, string, []convo.Exchange) string {
	f.mu.Lock()
	f.interpretCalls++
	f.mu.Unlock()
	return "interpreted answer"
}

type fakeCaller struct {
	boot    erpcall.Bootstrap
	bootErr error

	mu       sync.Mutex
	outcomes map[string]erpcall.Outcome
	calls    []string
	params   map[string]map[string]any
}

func (f *fakeCaller) Call(_ context.Context, def catalog.Capability, params map[string]any) erpcall.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, def.ID)
	if f.params == nil {
		f.params = make(map[string]map[string]any)
	}
	f.params[def.ID] = params
	if out, ok := f.outcomes[def.ID]; ok {
		return out
	}
	return erpcall.Outcome{CapabilityID: def.ID, Success: true, Data: map[string]any{"ok": true}}
}

func (f *fakeCaller) FetchBootstrap(context.Context, string) (erpcall.Bootstrap, error) {
	if f.bootErr != nil {
		return erpcall.Bootstrap{}, f.bootErr
	}
	return f.boot, nil
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Capability{
		{ID: "units-get", Name: "Units", Endpoint: "/units-get", Method: "GET",
			Parameters: []catalog.Parameter{
				{Name: "projectId", Location: catalog.LocationQuery, Required: true},
				{Name: "status", Location: catalog.LocationQuery, Default: "all", Example: "sold"},
			}},
		{ID: "bookings-get", Name: "Bookings", Endpoint: "/bookings-get", Method: "GET"},
		{ID: "payables-get", Name: "Payables", Endpoint: "/payables-get", Method: "GET"},
	})
}

func twoProjects() []company.Project {
	return []company.Project{
		{ProjectID: "165", Name: "Paradise apartments", Status: company.StatusActive},
		{ProjectID: "201", Name: "Elanza towers", Status: company.StatusActive},
	}
}

func selectAll() oracle.APIDecision {
	return oracle.APIDecision{Selected: []oracle.CapabilitySelection{
		{CapabilityID: "units-get", Confidence: 0.9},
		{CapabilityID: "bookings-get", Confidence: 0.9},
		{CapabilityID: "payables-get", Confidence: 0.9},
	}}
}

type fixture struct {
	orch    *Orchestrator
	decider *fakeDecider
	caller  *fakeCaller
	store   *company.Store
	memory  *convo.SessionMemory
	history *convo.History
}

func newFixture(decider *fakeDecider, caller *fakeCaller) *fixture {
	store := company.New()
	history := convo.NewHistory(convo.NewMemoryStore(), config.ConvoConfig{
		BufferTTL:        time.Minute,
		SessionMemoryTTL: time.Minute,
		FlushDelay:       time.Hour,
	}, nil)
	memory := convo.NewSessionMemory(time.Minute)
	cfg := config.OracleConfig{ConfidenceHigh: 0.7, ConfidenceLow: 0.5, HistoryWindow: 10}
	return &fixture{
		orch:    New(testCatalog(), decider, caller, store, history, memory, cfg, nil),
		decider: decider,
		caller:  caller,
		store:   store,
		memory:  memory,
		history: history,
	}
}

func TestHighConfidenceProjectAcceptedSilently(t *testing.T) {
	decider := &fakeDecider{
		apiDecision: selectAll(),
		projDecision: oracle.ProjectDecision{
			Selected:   &oracle.ProjectRef{ProjectID: "165", ProjectName: "Paradise apartments"},
			Confidence: 0.92,
		},
	}
	f := newFixture(decider, &fakeCaller{boot: erpcall.Bootstrap{Projects: twoProjects()}})

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "unit status in paradise", CompanyID: "88", SessionID: "s1"})
	require.True(t, res.Success)
	require.Empty(t, res.ClarificationNote)
	require.Equal(t, "165", res.Project.ProjectID)
	require.Equal(t, "interpreted answer", res.Response)
}

func TestMediumConfidenceProjectAcceptedWithNote(t *testing.T) {
	decider := &fakeDecider{
		apiDecision: selectAll(),
		projDecision: oracle.ProjectDecision{
			Selected:   &oracle.ProjectRef{ProjectID: "165", ProjectName: "Paradise apartments"},
			Confidence: 0.6,
		},
	}
	f := newFixture(decider, &fakeCaller{boot: erpcall.Bootstrap{Projects: twoProjects()}})

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "show units", CompanyID: "88", SessionID: "s1"})
	require.True(t, res.Success)
	require.NotEmpty(t, res.ClarificationNote)
	require.Equal(t, "165", res.Project.ProjectID)
}

func TestLowConfidenceProjectAsksForClarification(t *testing.T) {
	decider := &fakeDecider{
		apiDecision: selectAll(),
		projDecision: oracle.ProjectDecision{
			Selected:   &oracle.ProjectRef{ProjectID: "165", ProjectName: "Paradise apartments"},
			Confidence: 0.3,
		},
	}
	caller := &fakeCaller{boot: erpcall.Bootstrap{Projects: twoProjects()}}
	f := newFixture(decider, caller)

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "show units", CompanyID: "88", SessionID: "s1"})
	require.False(t, res.Success)
	require.True(t, res.NeedsClarification)
	require.Len(t, res.AlternativeProjects, 2)
	require.Zero(t, caller.callCount())
}

func TestSingleProjectSkipsProjectDecision(t *testing.T) {
	decider := &fakeDecider{apiDecision: selectAll()}
	f := newFixture(decider, &fakeCaller{boot: erpcall.Bootstrap{Projects: twoProjects()[:1]}})

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "show units", CompanyID: "88", SessionID: "s1"})
	require.True(t, res.Success)
	require.Equal(t, "165", res.Project.ProjectID)
	require.Zero(t, decider.projectCalls)
}

func TestPartialInvocationFailureStillSucceeds(t *testing.T) {
	decider := &fakeDecider{
		apiDecision: selectAll(),
		projDecision: oracle.ProjectDecision{
			Selected:   &oracle.ProjectRef{ProjectID: "165", ProjectName: "Paradise apartments"},
			Confidence: 0.9,
		},
	}
	caller := &fakeCaller{
		boot: erpcall.Bootstrap{Projects: twoProjects()},
		outcomes: map[string]erpcall.Outcome{
			"units-get":    {CapabilityID: "units-get", Success: true, Data: map[string]any{"units": 42}},
			"bookings-get": {CapabilityID: "bookings-get", Error: "HTTP error 500", Failure: erpcall.FailureStatus},
			"payables-get": {CapabilityID: "payables-get", Error: "request timeout", Failure: erpcall.FailureTimeout},
		},
	}
	f := newFixture(decider, caller)

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "show everything", CompanyID: "88", SessionID: "s1"})
	require.True(t, res.Success)
	require.Len(t, res.SelectedAPIs, 3)
	require.Len(t, res.RawData, 1)
	require.Len(t, res.APIResponses, 3)
}

func TestTotalInvocationFailureFailsTheTurn(t *testing.T) {
	decider := &fakeDecider{
		apiDecision: oracle.APIDecision{Selected: []oracle.CapabilitySelection{{CapabilityID: "units-get"}}},
		projDecision: oracle.ProjectDecision{
			Selected:   &oracle.ProjectRef{ProjectID: "165", ProjectName: "Paradise apartments"},
			Confidence: 0.9,
		},
	}
	caller := &fakeCaller{
		boot: erpcall.Bootstrap{Projects: twoProjects()},
		outcomes: map[string]erpcall.Outcome{
			"units-get": {CapabilityID: "units-get", Error: "HTTP error 503", Failure: erpcall.FailureStatus},
		},
	}
	f := newFixture(decider, caller)

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "show units", CompanyID: "88", SessionID: "s1"})
	require.False(t, res.Success)
	require.NotEmpty(t, res.Error)
	require.Zero(t, decider.interpretCalls)
}

func TestGeneralQuerySkipsProjectResolution(t *testing.T) {
	decider := &fakeDecider{apiDecision: oracle.APIDecision{IsGeneralQuery: true}}
	caller := &fakeCaller{}
	f := newFixture(decider, caller)

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "What is 8 × 8?", CompanyID: "88", SessionID: "s1"})
	require.True(t, res.Success)
	require.True(t, res.IsGeneralQuery)
	require.Empty(t, res.SelectedAPIs)
	require.Equal(t, "general answer", res.Response)
	require.Zero(t, res.Timings.ProjectSelectionMS)
	require.Zero(t, decider.projectCalls)
	require.Zero(t, caller.callCount())
}

func TestZeroSelectionWithoutClarificationFallsBackToAnswer(t *testing.T) {
	decider := &fakeDecider{apiDecision: oracle.APIDecision{}}
	f := newFixture(decider, &fakeCaller{})

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "tell me something", CompanyID: "88", SessionID: "s1"})
	require.True(t, res.Success)
	require.False(t, res.IsGeneralQuery)
	require.Equal(t, "general answer", res.Response)
	require.Equal(t, 1, decider.answerCalls)
}

func TestZeroSelectionWithClarificationIsTerminalHint(t *testing.T) {
	decider := &fakeDecider{apiDecision: oracle.APIDecision{
		NeedsClarification:   true,
		ClarificationMessage: "Which module do you mean?",
	}}
	f := newFixture(decider, &fakeCaller{})

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "show it", CompanyID: "88", SessionID: "s1"})
	require.False(t, res.Success)
	require.True(t, res.NeedsClarification)
	require.Equal(t, "Which module do you mean?", res.Response)
	require.Zero(t, decider.answerCalls)
}

func TestExplicitUnknownProjectRejectedBeforeInvocation(t *testing.T) {
	decider := &fakeDecider{apiDecision: selectAll()}
	caller := &fakeCaller{boot: erpcall.Bootstrap{Projects: twoProjects()}}
	f := newFixture(decider, caller)

	// Company already synced; the explicit id simply does not exist.
	require.NoError(t, f.store.Put(context.Background(), company.Company{CompanyID: "88", Projects: twoProjects()}))

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "show units", CompanyID: "88", SessionID: "s1", ProjectID: "999"})
	require.False(t, res.Success)
	require.True(t, res.NeedsClarification)
	require.Zero(t, caller.callCount())
	require.Zero(t, decider.projectCalls)
}

func TestStickyProjectSkipsResolutionNextTurn(t *testing.T) {
	decider := &fakeDecider{
		apiDecision: selectAll(),
		projDecision: oracle.ProjectDecision{
			Selected:   &oracle.ProjectRef{ProjectID: "165", ProjectName: "Paradise apartments"},
			Confidence: 0.95,
		},
	}
	f := newFixture(decider, &fakeCaller{boot: erpcall.Bootstrap{Projects: twoProjects()}})
	ctx := context.Background()

	res := f.orch.ProcessQuery(ctx, Query{Query: "units in paradise", CompanyID: "88", SessionID: "s1"})
	require.True(t, res.Success)
	require.Equal(t, 1, decider.projectCalls)

	id, name, ok := f.memory.Project("s1")
	require.True(t, ok)
	require.Equal(t, "165", id)
	require.Equal(t, "Paradise apartments", name)

	res = f.orch.ProcessQuery(ctx, Query{Query: "and the bookings?", CompanyID: "88", SessionID: "s1"})
	require.True(t, res.Success)
	require.Equal(t, "165", res.Project.ProjectID)
	// Second turn rode the sticky project; no new oracle project decision.
	require.Equal(t, 1, decider.projectCalls)
}

func TestBootstrapFailureSurfacesAsClarification(t *testing.T) {
	decider := &fakeDecider{apiDecision: selectAll()}
	f := newFixture(decider, &fakeCaller{bootErr: errors.New("ERP unreachable")})

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "show units", CompanyID: "88", SessionID: "s1"})
	require.False(t, res.Success)
	require.True(t, res.NeedsClarification)
	require.Contains(t, res.Response, "Unable to fetch company data")
}

func TestEmptyQueryRejected(t *testing.T) {
	f := newFixture(&fakeDecider{}, &fakeCaller{})

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "   ", CompanyID: "88", SessionID: "s1"})
	require.False(t, res.Success)
	require.Equal(t, "empty query", res.Error)
}

func TestExchangePersistedForTurn(t *testing.T) {
	decider := &fakeDecider{apiDecision: oracle.APIDecision{IsGeneralQuery: true}}
	f := newFixture(decider, &fakeCaller{})
	ctx := context.Background()

	f.orch.ProcessQuery(ctx, Query{Query: "hello", CompanyID: "88", SessionID: "s1"})

	got, err := f.history.Load(ctx, "s1", "88")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "hello", got[0].Content)
	require.Equal(t, "general answer", got[1].Content)
}

func TestMergeParamsPrecedence(t *testing.T) {
	def := catalog.Capability{
		ID: "units-get",
		Parameters: []catalog.Parameter{
			{Name: "status", Default: "all", Example: "sold"},
			{Name: "floor", Example: 3},
			{Name: "projectId"},
		},
	}

	params := mergeParams(def, map[string]any{"status": "available"}, "165", "88")
	require.Equal(t, "available", params["status"]) // resolved wins over default
	require.Equal(t, 3, params["floor"])            // example fills the gap
	require.Equal(t, "165", params["projectId"])
	require.Equal(t, "88", params["company_id"])

	params = mergeParams(def, nil, "165", "88")
	require.Equal(t, "all", params["status"]) // default wins over example
}

func TestOracleSelectionRepairedByProjectName(t *testing.T) {
	decider := &fakeDecider{
		apiDecision: selectAll(),
		projDecision: oracle.ProjectDecision{
			Selected:   &oracle.ProjectRef{ProjectID: "garbled-id", ProjectName: "Paradise apartments"},
			Confidence: 0.9,
		},
	}
	f := newFixture(decider, &fakeCaller{boot: erpcall.Bootstrap{Projects: twoProjects()}})

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "units in paradise", CompanyID: "88", SessionID: "s1"})
	require.True(t, res.Success)
	require.Equal(t, "165", res.Project.ProjectID)
}

func TestOracleSelectionUnknownEitherWayClarifies(t *testing.T) {
	decider := &fakeDecider{
		apiDecision: selectAll(),
		projDecision: oracle.ProjectDecision{
			Selected:   &oracle.ProjectRef{ProjectID: "garbled-id", ProjectName: "No Such Towers"},
			Confidence: 0.9,
		},
	}
	f := newFixture(decider, &fakeCaller{boot: erpcall.Bootstrap{Projects: twoProjects()}})

	res := f.orch.ProcessQuery(context.Background(), Query{Query: "show units", CompanyID: "88", SessionID: "s1"})
	require.False(t, res.Success)
	require.True(t, res.NeedsClarification)
	require.Len(t, res.AlternativeProjects, 2)
}

func TestDefaultProjectSettlesLowConfidence(t *testing.T) {
	decider := &fakeDecider{
		apiDecision: selectAll(),
		projDecision: oracle.ProjectDecision{
			Selected:   &oracle.ProjectRef{ProjectID: "165", ProjectName: "Paradise apartments"},
			Confidence: 0.3,
		},
	}
	f := newFixture(decider, &fakeCaller{boot: erpcall.Bootstrap{Projects: twoProjects()}})
	ctx := context.Background()

	// Admin pinned a company default; sync preserves it.
	require.NoError(t, f.store.Put(ctx, company.Company{CompanyID: "88", Projects: twoProjects()}))
	require.NoError(t, f.store.SetDefaultProject(ctx, "88", "201"))

	res := f.orch.ProcessQuery(ctx, Query{Query: "show units", CompanyID: "88", SessionID: "s1"})
	require.True(t, res.Success)
	require.Equal(t, "201", res.Project.ProjectID)
	require.Contains(t, res.ClarificationNote, "default project")
}
