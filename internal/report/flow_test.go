package report

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/finflow/agent"
	"github.com/BaSui01/finflow/agent/artifacts"
	"github.com/BaSui01/finflow/config"
	"github.com/BaSui01/finflow/internal/history"
	"github.com/BaSui01/finflow/internal/metrics"
	"github.com/BaSui01/finflow/retry"
	"github.com/BaSui01/finflow/testutil/mocks"
	"github.com/BaSui01/finflow/tools"
	"github.com/BaSui01/finflow/types"
	"github.com/BaSui01/finflow/workflow"
)

func noSleep(context.Context, time.Duration) error { return nil }

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Retry.KickoffAttempts = 2
	cfg.Retry.KickoffDelay = time.Second
	cfg.Retry.AgentRetryBudget = 0
	cfg.Retry.AgentRetryDelay = 0
	cfg.Flow.MaxConcurrency = 1
	return cfg
}

// scriptedBackend answers by agent name; agents in fail return the error.
func scriptedBackend(fail map[string]error) *mocks.MockBackend {
	return mocks.NewMockBackend().WithGenerateFunc(func(ctx context.Context, req *agent.Request) (*agent.Response, error) {
		if err, ok := fail[req.Agent]; ok {
			return nil, err
		}
		switch req.Agent {
		case "retrieve_news", "website_scraper":
			return &agent.Response{Content: `{"articles":[{"url":"https://example.com/tsla","title":"Tesla rallies"}]}`}, nil
		case "market_data_analyst":
			return &agent.Response{Content: `{"labels":["Mon","Tue"],"series":[{"name":"TSLA","values":[250,255]}]}`}, nil
		}
		return &agent.Response{Content: "# " + req.Agent + "\n\n" + req.Agent + " output"}, nil
	})
}

type fixture struct {
	runner  *Runner
	backend *mocks.MockBackend
	store   artifacts.Store
	history history.Store
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, fail map[string]error) *fixture {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig()

	store, err := artifacts.OpenBlobStore(ctx, "mem://", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hist, err := history.Open(ctx, config.HistoryConfig{
		Driver:   "sqlite",
		Database: config.DatabaseConfig{Name: ":memory:", MaxOpenConns: 1},
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	reg := prometheus.NewRegistry()
	backend := scriptedBackend(fail)
	runner, err := NewRunner(Deps{
		Config:           cfg,
		Backend:          backend,
		Store:            store,
		Metrics:          metrics.NewCollector("test", reg, zap.NewNop()),
		History:          hist,
		SchedulerOptions: []workflow.SchedulerOption{workflow.WithRetrySleeper(noSleep)},
	})
	require.NoError(t, err)
	return &fixture{runner: runner, backend: backend, store: store, history: hist, reg: reg}
}

// promptsOf returns the task prompts sent on behalf of agentName.
func (f *fixture) promptsOf(agentName string) []string {
	var out []string
	for _, req := range f.backend.Calls() {
		if req.Agent == agentName && len(req.Messages) > 1 {
			out = append(out, req.Messages[1].Content)
		}
	}
	return out
}

func TestNewFlow_Graph(t *testing.T) {
	f, err := NewFlow(config.DefaultRetryConfig(), Handlers{}, nil)
	require.NoError(t, err)

	assert.Equal(t, FlowName, f.Name())
	assert.Equal(t, []string{StepVisualizer, StepNews, StepReport}, f.Plan())
	assert.ElementsMatch(t, []string{StepVisualizer, StepNews}, f.StartSteps())

	report, ok := f.Step(StepReport)
	require.True(t, ok)
	assert.Equal(t, workflow.JoinAll, report.Combinator)
	assert.Equal(t, []string{StepVisualizer, StepNews}, report.Predecessors)

	vis, _ := f.Step(StepVisualizer)
	news, _ := f.Step(StepNews)
	assert.Equal(t, 3, vis.Retry.MaxAttempts)
	assert.Equal(t, retry.ExhaustContinue, vis.Retry.Exhaustion)
	assert.Equal(t, retry.ExhaustPropagate, news.Retry.Exhaustion)

	assert.Contains(t, f.Mermaid(), "visualizer_crew_kickoff")
}

func TestNewFlow_UnboundHandlersFail(t *testing.T) {
	f, err := NewFlow(config.RetryConfig{}, Handlers{}, nil)
	require.NoError(t, err)

	res, err := workflow.NewScheduler(nil, workflow.WithMaxConcurrency(1)).Run(context.Background(), f, nil)
	require.Error(t, err)
	// configuration errors are never retried nor absorbed
	assert.Equal(t, workflow.StepFailed, res.Step(StepVisualizer).Status)
	assert.Equal(t, 1, res.Step(StepVisualizer).Attempts)
	assert.Equal(t, workflow.StepSkipped, res.Step(StepReport).Status)
}

func TestRunner_Run(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	res, err := fx.runner.Run(ctx, "", "2024-05-01 10:00:00")
	require.NoError(t, err)
	require.True(t, res.Flow.Succeeded())

	assert.Equal(t, ReportState{
		UserQuestion:     DefaultQuestion,
		PresentTime:      "2024-05-01 10:00:00",
		VisualizerResult: "images/visualization_report.md",
		NewsResult:       "news/news_article.md",
		FinalReport:      "report.md",
	}, res.State)
	assert.Equal(t, []string{StepVisualizer, StepNews, StepReport}, res.Flow.Order)
	require.Len(t, res.Crews, 3)
	assert.True(t, res.Crews[NewsCrew].Success)

	// every artifact of the three crews is committed
	for _, loc := range []string{
		"news/news_urls.json", "news/news_scraped.json", "news/news_article.md",
		"images/market_data.json", "images/visualization_report.md",
		"report/visual_section.md", "report.md",
	} {
		_, err := fx.store.Stat(ctx, loc)
		assert.NoError(t, err, loc)
	}
	final, _, err := fx.store.Read(ctx, "report.md")
	require.NoError(t, err)
	assert.Contains(t, string(final), "reporting_analyst output")

	// placeholders are interpolated and the report crew sees both upstream artifacts
	news := fx.promptsOf("retrieve_news")
	require.Len(t, news, 1)
	assert.Contains(t, news[0], "current price of tesla stock")
	assert.Contains(t, news[0], "2024-05-01 10:00:00")

	merger := fx.promptsOf("reporting_analyst")
	require.Len(t, merger, 1)
	assert.Contains(t, merger[0], "ai_news_writer output")
	elaborator := fx.promptsOf("visualization_elaborator")
	require.Len(t, elaborator, 1)
	assert.Contains(t, elaborator[0], "visualization_designer output")

	rec, err := fx.history.Get(ctx, res.Flow.RunID)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", rec.Status)
	assert.Equal(t, "report.md", rec.FinalReport)
	assert.Len(t, rec.Steps, 3)

	n, err := testutil.GatherAndCount(fx.reg, "test_flow_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = testutil.GatherAndCount(fx.reg, "test_crew_tasks_total")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestRunner_VisualizerFailureIsAbsorbed(t *testing.T) {
	fx := newFixture(t, map[string]error{
		"market_data_analyst": types.NewTransient(nil, "search backend down"),
	})

	res, err := fx.runner.Run(context.Background(), "tsla outlook", "2024-05-01 10:00:00")
	require.NoError(t, err)
	assert.True(t, res.Flow.Succeeded())

	vis := res.Flow.Step(StepVisualizer)
	assert.Equal(t, workflow.StepAbsorbed, vis.Status)
	assert.Equal(t, 2, vis.Attempts)
	assert.Equal(t, workflow.StepSucceeded, res.Flow.Step(StepReport).Status)

	assert.Equal(t, DefaultVisualizerResult, res.State.VisualizerResult)
	assert.Equal(t, "report.md", res.State.FinalReport)

	elaborator := fx.promptsOf("visualization_elaborator")
	require.Len(t, elaborator, 1)
	assert.Contains(t, elaborator[0], "no visualizations")
}

func TestRunner_VisualizerNonRetryableFailureIsAbsorbed(t *testing.T) {
	fx := newFixture(t, map[string]error{
		"market_data_analyst": types.NewError(types.ErrRateLimit, "quota exceeded").WithRetryable(false),
	})

	res, err := fx.runner.Run(context.Background(), "tsla outlook", "2024-05-01 10:00:00")
	require.NoError(t, err)
	assert.True(t, res.Flow.Succeeded())

	vis := res.Flow.Step(StepVisualizer)
	assert.Equal(t, workflow.StepAbsorbed, vis.Status)
	assert.Contains(t, vis.Error, "quota exceeded")
	assert.Equal(t, workflow.StepSucceeded, res.Flow.Step(StepNews).Status)
	assert.Equal(t, workflow.StepSucceeded, res.Flow.Step(StepReport).Status)
	assert.Equal(t, "report.md", res.State.FinalReport)
}

func TestRunner_NewsFailureSkipsReport(t *testing.T) {
	fx := newFixture(t, map[string]error{
		"ai_news_writer": types.NewError(types.ErrAuthentication, "bad key"),
	})
	ctx := context.Background()

	res, err := fx.runner.Run(ctx, "tsla outlook", "")
	require.Error(t, err)
	require.NotNil(t, res)

	assert.Equal(t, workflow.FlowFailed, res.Flow.Status)
	assert.Equal(t, workflow.StepFailed, res.Flow.Step(StepNews).Status)
	assert.Equal(t, workflow.StepSkipped, res.Flow.Step(StepReport).Status)
	assert.Empty(t, res.State.FinalReport)
	assert.Empty(t, fx.promptsOf("reporting_analyst"))

	_, statErr := fx.store.Stat(ctx, "report.md")
	assert.Error(t, statErr)

	rec, err := fx.history.Get(ctx, res.Flow.RunID)
	require.NoError(t, err)
	assert.Equal(t, "failed", rec.Status)
}

func TestNewRunner_Validation(t *testing.T) {
	store, err := artifacts.OpenBlobStore(context.Background(), "mem://", nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = NewRunner(Deps{Store: store})
	assert.True(t, types.IsCode(err, types.ErrConfiguration))

	_, err = NewRunner(Deps{Backend: mocks.NewMockBackend()})
	assert.True(t, types.IsCode(err, types.ErrConfiguration))

	cats, err := LoadCatalogs("")
	require.NoError(t, err)
	delete(cats, ReportCrew)
	_, err = NewRunner(Deps{Backend: mocks.NewMockBackend(), Store: store, Catalogs: cats})
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
}

func TestLoadCatalogs(t *testing.T) {
	cats, err := LoadCatalogs("")
	require.NoError(t, err)
	require.Len(t, cats, 3)

	reg, err := NewToolRegistry(config.DefaultConfig(), ToolSources{}, nil)
	require.NoError(t, err)

	for name, cs := range crewSpecs {
		cat := cats[name]
		for _, task := range cs.spec.Tasks {
			def, err := cat.Task(task)
			require.NoError(t, err, "%s/%s", name, task)
			agentDef, err := cat.Agent(def.Agent)
			require.NoError(t, err, "%s/%s", name, def.Agent)
			_, err = reg.Resolve(agentDef.Tools...)
			assert.NoError(t, err, "%s/%s", name, def.Agent)
		}
	}

	_, err = LoadCatalogs(t.TempDir())
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
}

type fakeSearch struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeSearch) Name() string { return "fake" }

func (f *fakeSearch) Search(_ context.Context, query string, opts tools.SearchOptions) ([]tools.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, opts.Kind)
	return []tools.SearchResult{{Title: query, URL: "https://example.com/" + opts.Kind}}, nil
}

func TestNewToolRegistry(t *testing.T) {
	search := &fakeSearch{}
	reg, err := NewToolRegistry(config.DefaultConfig(), ToolSources{Search: search}, zap.NewNop())
	require.NoError(t, err)

	var names []string
	for _, s := range reg.List() {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"web_search", "news_search", "scrape_website", "chart_renderer", "file_writer", "file_reader"}, names)

	for _, name := range []string{"web_search", "news_search"} {
		tool, ok := reg.Get(name)
		require.True(t, ok)
		out, err := tool.Call(context.Background(), json.RawMessage(`{"query":"tsla"}`))
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(out), "example.com"))
	}
	assert.Equal(t, []string{"search", "news"}, search.kinds)
}
