package report

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/finflow/agent"
	"github.com/BaSui01/finflow/agent/artifacts"
	"github.com/BaSui01/finflow/agent/crews"
	"github.com/BaSui01/finflow/config"
	"github.com/BaSui01/finflow/internal/history"
	"github.com/BaSui01/finflow/internal/metrics"
	"github.com/BaSui01/finflow/retry"
	"github.com/BaSui01/finflow/tools"
	"github.com/BaSui01/finflow/types"
	"github.com/BaSui01/finflow/workflow"
)

// FlowName is the name of the report flow.
const FlowName = "report_flow"

// Step ids.
const (
	StepVisualizer = "visualizer_crew_kickoff"
	StepNews       = "news_crew_kickoff"
	StepReport     = "report_crew_kickoff"
)

// Handlers are the step handlers of the report flow.
type Handlers struct {
	Visualizer workflow.StepHandler
	News       workflow.StepHandler
	Report     workflow.StepHandler
}

func unavailable(ctx context.Context, sc *workflow.StepContext) (any, error) {
	return nil, types.NewConfiguration("step %s has no handler bound", sc.Step)
}

// NewFlow builds the report flow graph. Nil handlers are replaced by ones that
// fail, which is enough for plotting and exporting the definition.
func NewFlow(rc config.RetryConfig, h Handlers, logger *zap.Logger) (*workflow.Flow, error) {
	if h.Visualizer == nil {
		h.Visualizer = unavailable
	}
	if h.News == nil {
		h.News = unavailable
	}
	if h.Report == nil {
		h.Report = unavailable
	}
	attempts := rc.KickoffAttempts
	if attempts < 1 {
		attempts = 1
	}
	kickoff := retry.Attempts(attempts, rc.KickoffDelay)

	return workflow.NewFlowBuilder(FlowName).
		WithLogger(logger).
		WithState(StateFields()...).
		Start(StepVisualizer, h.Visualizer).
		WithRetry(kickoff.BestEffort()).
		WithDescription("Kick off the visualizer crew to build market charts").
		Done().
		Start(StepNews, h.News).
		WithRetry(kickoff).
		WithDescription("Kick off the news crew to write the news article").
		Done().
		ListenAll(StepReport, h.Report, StepVisualizer, StepNews).
		WithRetry(kickoff).
		WithDescription("Merge charts and news into the final report").
		Done().
		Build()
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Config   *config.Config
	Backend  agent.Backend
	Tools    *tools.Registry
	Store    artifacts.Store
	Catalogs Catalogs
	Metrics  *metrics.Collector // optional
	History  history.Store      // optional
	Logger   *zap.Logger

	SchedulerOptions []workflow.SchedulerOption
	WorkerOptions    []agent.Option
}

// Runner executes the report flow.
type Runner struct {
	cfg       *config.Config
	deps      Deps
	flow      *workflow.Flow
	scheduler *workflow.Scheduler
	logger    *zap.Logger
}

// Result is the outcome of one report run.
type Result struct {
	Flow  *workflow.FlowResult
	State ReportState
	Crews map[string]*crews.CrewResult
}

// NewRunner validates the dependencies and builds the flow.
func NewRunner(deps Deps) (*Runner, error) {
	if deps.Backend == nil {
		return nil, types.NewConfiguration("report: backend is nil")
	}
	if deps.Store == nil {
		return nil, types.NewConfiguration("report: artifact store is nil")
	}
	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.History == nil {
		deps.History, _ = history.Open(context.Background(), config.HistoryConfig{}, deps.Logger)
	}
	if deps.Tools == nil {
		reg, err := NewToolRegistry(deps.Config, ToolSources{}, deps.Logger)
		if err != nil {
			return nil, err
		}
		deps.Tools = reg
	}
	if deps.Catalogs == nil {
		cats, err := LoadCatalogs(deps.Config.Catalog.Dir)
		if err != nil {
			return nil, err
		}
		deps.Catalogs = cats
	}
	for name := range crewSpecs {
		if deps.Catalogs[name] == nil {
			return nil, types.NewConfiguration("report: no catalog for %s", name)
		}
	}

	r := &Runner{
		cfg:    deps.Config,
		deps:   deps,
		logger: deps.Logger.With(zap.String("component", "report_flow")),
	}

	f, err := NewFlow(r.cfg.Retry, Handlers{
		Visualizer: r.visualizerStep,
		News:       r.newsStep,
		Report:     r.reportStep,
	}, deps.Logger)
	if err != nil {
		return nil, err
	}
	r.flow = f

	opts := []workflow.SchedulerOption{workflow.WithMaxConcurrency(r.cfg.Flow.MaxConcurrency)}
	if r.cfg.Flow.ContinueOnFailure {
		opts = append(opts, workflow.WithContinueOnFailure())
	}
	if m := deps.Metrics; m != nil {
		opts = append(opts,
			workflow.WithRetryObserver(m.RetryObserver()),
			workflow.WithStepObserver(func(flow, step string, status workflow.StepStatus, attempts int, d time.Duration) {
				m.RecordStep(flow, step, string(status), attempts, d)
			}),
		)
	}
	opts = append(opts, deps.SchedulerOptions...)
	r.scheduler = workflow.NewScheduler(deps.Logger, opts...)
	return r, nil
}

// Flow returns the flow graph.
func (r *Runner) Flow() *workflow.Flow { return r.flow }

// Run executes the flow for one question. presentTime defaults to now.
// The result is non-nil whenever the flow started; err reports a run that
// did not succeed.
func (r *Runner) Run(ctx context.Context, question, presentTime string) (*Result, error) {
	if question == "" {
		question = DefaultQuestion
	}
	if presentTime == "" {
		presentTime = time.Now().Format(PresentTimeLayout)
	}
	if r.cfg.Flow.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Flow.Timeout)
		defer cancel()
	}

	r.logger.Info("starting report flow",
		zap.String("user_question", question),
		zap.String("present_time", presentTime))

	fr, runErr := r.scheduler.Run(ctx, r.flow, map[string]any{
		FieldUserQuestion: question,
		FieldPresentTime:  presentTime,
	})
	if fr == nil {
		return nil, runErr
	}

	res := &Result{
		Flow:  fr,
		State: StateFromSnapshot(fr.State),
		Crews: make(map[string]*crews.CrewResult),
	}
	for step, crew := range map[string]string{StepVisualizer: VisualizerCrew, StepNews: NewsCrew, StepReport: ReportCrew} {
		if o := fr.Step(step); o != nil {
			if cr, ok := o.Output.(*crews.CrewResult); ok {
				res.Crews[crew] = cr
			}
		}
	}

	if r.deps.Metrics != nil {
		r.deps.Metrics.RecordFlowRun(fr.Flow, string(fr.Status), fr.Duration())
	}
	// history uses a fresh context so a cancelled run is still recorded
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rec := history.FromFlowResult(fr, r.flow.Plan(), res.State.FinalReport)
	if err := r.deps.History.Save(saveCtx, rec); err != nil {
		r.logger.Warn("failed to save run history", zap.String("run_id", fr.RunID), zap.Error(err))
	}

	return res, runErr
}

// kickoff builds a crew for this attempt and runs it.
func (r *Runner) kickoff(ctx context.Context, sc *workflow.StepContext, name string, inputs map[string]string) (*crews.CrewResult, error) {
	cs := crewSpecs[name]

	workerOpts := append([]agent.Option(nil), r.deps.WorkerOptions...)
	var crewOpts []crews.Option
	if m := r.deps.Metrics; m != nil {
		workerOpts = append(workerOpts,
			agent.WithRetryObserver(m.RetryObserver()),
			agent.WithToolObserver(m.RecordToolCall),
		)
		crewOpts = append(crewOpts, crews.WithTaskObserver(func(crew, task string, status crews.TaskStatus, d time.Duration) {
			m.RecordTask(crew, task, string(status), d)
		}))
	}

	crew, err := crews.Build(cs.spec, r.deps.Catalogs[name], crews.Deps{
		Backend:       r.deps.Backend,
		Tools:         r.deps.Tools,
		Store:         r.deps.Store,
		Logger:        sc.Logger,
		RetryBudget:   r.cfg.Retry.AgentRetryBudget,
		RetryDelay:    r.cfg.Retry.AgentRetryDelay,
		WorkerOptions: workerOpts,
	}, crewOpts...)
	if err != nil {
		return nil, err
	}

	sc.Logger.Info("kicking off crew", zap.String("crew", name), zap.Int("attempt", sc.Attempt))
	res, err := crew.Kickoff(ctx, inputs)
	if err != nil {
		return nil, err
	}
	sc.Logger.Info("crew completed", zap.String("crew", name), zap.Duration("duration", res.Duration))
	return res, nil
}

// publish records the locator of task's artifact in field.
func publish(sc *workflow.StepContext, res *crews.CrewResult, task, field string) error {
	ref := res.Artifact(task)
	if ref == nil {
		return types.NewTransient(nil, "crew %s produced no artifact for %s", res.Crew, task)
	}
	return sc.State.Set(field, ref.Locator)
}

func (r *Runner) visualizerStep(ctx context.Context, sc *workflow.StepContext) (any, error) {
	st := StateOf(sc.State)
	res, err := r.kickoff(ctx, sc, VisualizerCrew, map[string]string{
		FieldUserQuestion: st.UserQuestion,
		FieldPresentTime:  st.PresentTime,
	})
	if err != nil {
		return nil, err
	}
	if err := publish(sc, res, taskVisualization, FieldVisualizerResult); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Runner) newsStep(ctx context.Context, sc *workflow.StepContext) (any, error) {
	st := StateOf(sc.State)
	res, err := r.kickoff(ctx, sc, NewsCrew, map[string]string{
		FieldUserQuestion: st.UserQuestion,
		FieldPresentTime:  st.PresentTime,
	})
	if err != nil {
		return nil, err
	}
	if err := publish(sc, res, taskNewsArticle, FieldNewsResult); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Runner) reportStep(ctx context.Context, sc *workflow.StepContext) (any, error) {
	st := StateOf(sc.State)

	visualization := r.readArtifact(ctx, sc, st.VisualizerResult)
	if o, ok := sc.Input(StepVisualizer); ok && o.Status == workflow.StepAbsorbed {
		visualization = "(no visualizations: the visualizer crew did not complete)"
	}

	res, err := r.kickoff(ctx, sc, ReportCrew, map[string]string{
		FieldUserQuestion:      st.UserQuestion,
		FieldPresentTime:       st.PresentTime,
		FieldVisualizerResult:  st.VisualizerResult,
		FieldNewsResult:        st.NewsResult,
		"visualization_report": visualization,
		"news_article":         r.readArtifact(ctx, sc, st.NewsResult),
	})
	if err != nil {
		return nil, err
	}
	if err := publish(sc, res, taskFinalReport, FieldFinalReport); err != nil {
		return nil, err
	}
	sc.Logger.Info("final report generated", zap.String("locator", sc.State.GetString(FieldFinalReport)))
	return res, nil
}

// readArtifact returns the artifact content, or a note the agents can act on
// when it is missing.
func (r *Runner) readArtifact(ctx context.Context, sc *workflow.StepContext, locator string) string {
	data, _, err := r.deps.Store.Read(ctx, locator)
	if err != nil {
		sc.Logger.Warn("input artifact unavailable", zap.String("locator", locator), zap.Error(err))
		return fmt.Sprintf("(%s is not available)", locator)
	}
	return string(data)
}
