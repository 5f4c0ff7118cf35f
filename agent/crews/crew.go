package crews

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/finflow/agent"
	"github.com/BaSui01/finflow/agent/artifacts"
	"github.com/BaSui01/finflow/tools"
	"github.com/BaSui01/finflow/types"
)

// TaskObserver is notified once per task that reached a terminal state.
type TaskObserver func(crew, task string, status TaskStatus, d time.Duration)

// Option 配置团队
type Option func(*Crew)

// WithProcess 设置进程策略，默认顺序执行
func WithProcess(p Process) Option {
	return func(c *Crew) {
		if p != nil {
			c.process = p
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(c *Crew) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer 设置 kickoff 与任务 span 使用的 tracer
func WithTracer(t trace.Tracer) Option {
	return func(c *Crew) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithTaskObserver 接收每个任务的最终状态
func WithTaskObserver(o TaskObserver) Option {
	return func(c *Crew) { c.observer = o }
}

// WithRunIDGenerator 替换 kickoff ID 生成器
func WithRunIDGenerator(fn func() string) Option {
	return func(c *Crew) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// Crew 代表一组工作者按任务依赖协作
type Crew struct {
	name     string
	tasks    []*TaskSpec
	byID     map[string]*TaskSpec
	plan     []*TaskSpec
	workers  map[string]*agent.Worker
	store    artifacts.Store
	process  Process
	logger   *zap.Logger
	tracer   trace.Tracer
	observer TaskObserver
	newID    func() string
}

// CrewResult 载有一次 kickoff 的结果
type CrewResult struct {
	RunID     string                 `json:"run_id"`
	Crew      string                 `json:"crew"`
	Process   ProcessType            `json:"process"`
	Success   bool                   `json:"success"`
	Tasks     map[string]*TaskResult `json:"tasks"`
	Order     []string               `json:"order"` // 实际执行顺序
	Artifacts []*artifacts.Ref       `json:"artifacts"`
	StartTime time.Time              `json:"start_time"`
	EndTime   time.Time              `json:"end_time"`
	Duration  time.Duration          `json:"duration"`
}

// Final 返回执行顺序中最后一个完成的任务结果
func (r *CrewResult) Final() *TaskResult {
	for i := len(r.Order) - 1; i >= 0; i-- {
		if t := r.Tasks[r.Order[i]]; t != nil && t.Status == TaskCompleted {
			return t
		}
	}
	return nil
}

// Artifact 返回指定任务提交的产物
func (r *CrewResult) Artifact(taskID string) *artifacts.Ref {
	if t := r.Tasks[taskID]; t != nil {
		return t.Artifact
	}
	return nil
}

// New 创建团队。tasks 的顺序即声明顺序；每个任务的 Agent 必须在 workers 中
func New(name string, tasks []TaskSpec, workers []*agent.Worker, store artifacts.Store, opts ...Option) (*Crew, error) {
	if name == "" {
		return nil, types.NewConfiguration("crew name is empty")
	}
	if store == nil {
		return nil, types.NewConfiguration("crew %s has no artifact store", name)
	}
	c := &Crew{
		name:    name,
		byID:    make(map[string]*TaskSpec, len(tasks)),
		workers: make(map[string]*agent.Worker, len(workers)),
		store:   store,
		process: Sequential(),
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("github.com/BaSui01/finflow/agent/crews"),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "crew"), zap.String("crew", name))

	for _, w := range workers {
		c.workers[w.Name()] = w
	}
	for i := range tasks {
		t := tasks[i]
		t.index = i
		t.DependsOn = append([]string(nil), t.DependsOn...)
		if t.Kind == "" {
			t.Kind = artifacts.KindForLocator(t.Output)
		}
		if _, ok := c.workers[t.Agent]; !ok {
			return nil, types.NewConfiguration("crew %s: task %s is assigned to unknown agent %q", name, t.ID, t.Agent)
		}
		c.tasks = append(c.tasks, &t)
	}
	if err := validateTasks(c.tasks); err != nil {
		return nil, fmt.Errorf("crew %s: %w", name, err)
	}
	for _, t := range c.tasks {
		c.byID[t.ID] = t
	}
	c.plan, _ = plan(c.tasks)
	return c, nil
}

// Name returns the crew name.
func (c *Crew) Name() string { return c.name }

// Tasks returns the task specs in declaration order.
func (c *Crew) Tasks() []TaskSpec {
	out := make([]TaskSpec, len(c.tasks))
	for i, t := range c.tasks {
		out[i] = *t
	}
	return out
}

// Plan returns the sequential execution order: a topological order of the
// dependencies with ties broken by declaration order.
func (c *Crew) Plan() []string {
	out := make([]string, len(c.plan))
	for i, t := range c.plan {
		out[i] = t.ID
	}
	return out
}

// kickoffState 是一次 kickoff 的私有状态
type kickoffState struct {
	result  *CrewResult
	markers map[string]*artifacts.Ref // 完成标记，只在产物提交后设置
	halted  bool
	seq     int
}

// Kickoff 执行团队的所有任务。必需任务失败时剩余任务被跳过并返回错误
func (c *Crew) Kickoff(ctx context.Context, inputs map[string]string) (*CrewResult, error) {
	runID := c.newID()
	ctx = types.WithCrew(ctx, c.name)
	ctx, span := c.tracer.Start(ctx, "crew.kickoff", trace.WithAttributes(
		attribute.String("crew", c.name),
		attribute.String("run_id", runID),
		attribute.String("process", string(c.process.Type())),
	))
	defer span.End()

	logger := c.logger.With(zap.String("run_id", runID))
	logger.Info("starting crew kickoff", zap.Int("tasks", len(c.tasks)), zap.String("process", string(c.process.Type())))

	st := &kickoffState{
		result: &CrewResult{
			RunID:     runID,
			Crew:      c.name,
			Process:   c.process.Type(),
			Tasks:     make(map[string]*TaskResult, len(c.tasks)),
			StartTime: time.Now(),
		},
		markers: make(map[string]*artifacts.Ref, len(c.tasks)),
	}
	for _, t := range c.tasks {
		st.result.Tasks[t.ID] = &TaskResult{TaskID: t.ID, Agent: t.Agent, Status: TaskPending, BestEffort: t.BestEffort}
	}

	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		ready := c.ready(st)
		if len(ready) == 0 {
			break
		}
		next := c.process.Next(ctx, ready, RunView{Crew: c.name, Inputs: inputs, Completed: st.completed()})
		if err := c.runTask(ctx, st, next, inputs, logger); err != nil && !next.BestEffort {
			st.halted = true
			runErr = fmt.Errorf("crew %s: task %s failed: %w", c.name, next.ID, err)
			break
		}
	}

	c.skipRemaining(st, runErr)

	res := st.result
	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	res.Success = runErr == nil
	for _, id := range res.Order {
		if ref := res.Tasks[id].Artifact; ref != nil {
			res.Artifacts = append(res.Artifacts, ref)
		}
	}

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		logger.Warn("crew kickoff failed", zap.Duration("duration", res.Duration), zap.Error(runErr))
		return res, runErr
	}
	logger.Info("crew kickoff completed", zap.Duration("duration", res.Duration), zap.Int("artifacts", len(res.Artifacts)))
	return res, nil
}

// ready 返回所有依赖均已终结的待执行任务，按声明顺序
func (c *Crew) ready(st *kickoffState) []*TaskSpec {
	var out []*TaskSpec
	for _, t := range c.tasks {
		if st.result.Tasks[t.ID].Status != TaskPending {
			continue
		}
		ok := true
		for _, d := range t.DependsOn {
			if !st.result.Tasks[d].Status.IsTerminal() {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, t)
		}
	}
	return out
}

func (st *kickoffState) completed() []string {
	var out []string
	for _, id := range st.result.Order {
		if st.result.Tasks[id].Status == TaskCompleted {
			out = append(out, id)
		}
	}
	return out
}

// runTask 执行单个任务：校验完成标记 → 读取依赖产物 → 调用工作者 → 提交产物 → 设置完成标记
func (c *Crew) runTask(ctx context.Context, st *kickoffState, t *TaskSpec, inputs map[string]string, logger *zap.Logger) (err error) {
	tr := st.result.Tasks[t.ID]
	st.seq++
	tr.Sequence = st.seq
	tr.Status = TaskRunning
	st.result.Order = append(st.result.Order, t.ID)
	start := time.Now()
	logger = logger.With(zap.String("task", t.ID), zap.String("agent", t.Agent))

	ctx = types.WithTaskID(ctx, t.ID)
	ctx, span := c.tracer.Start(ctx, "crew.task", trace.WithAttributes(
		attribute.String("task", t.ID),
		attribute.String("agent", t.Agent),
		attribute.Bool("best_effort", t.BestEffort),
	))
	defer func() {
		tr.Duration = time.Since(start)
		if err != nil {
			tr.Status = TaskFailed
			tr.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("task failed", zap.Bool("best_effort", t.BestEffort), zap.Error(err))
		} else {
			tr.Status = TaskCompleted
			logger.Info("task completed", zap.Duration("duration", tr.Duration))
		}
		span.End()
		c.notify(t.ID, tr.Status, tr.Duration)
	}()

	attachments, readable, err := c.gatherInputs(ctx, st, t, tr)
	if err != nil {
		return err
	}

	worker := c.workers[t.Agent]
	slot := tools.NewOutputSlot(t.Output, t.Kind)
	binding := &tools.Binding{Task: t.ID, Output: slot, Store: c.store, Readable: readable}

	out, err := worker.Execute(tools.WithBinding(ctx, binding), agent.Task{
		ID:             t.ID,
		Description:    Interpolate(t.Description, inputs),
		ExpectedOutput: Interpolate(t.ExpectedOutput, inputs),
		OutputLocator:  t.Output,
		Context:        attachments,
	}, inputs)
	if err != nil {
		return err
	}
	tr.Iterations = out.Iterations
	tr.ToolCalls = len(out.ToolResults)

	data, written := slot.Content()
	if !written {
		data = []byte(cleanOutput(t.Kind, out.Content))
	}
	ref, err := c.store.Commit(ctx, t.ID, t.Output, t.Kind, data)
	if err != nil {
		return err
	}
	tr.Output = string(data)
	tr.Artifact = ref
	st.markers[t.ID] = ref
	span.SetAttributes(attribute.String("artifact", ref.Locator), attribute.Int64("size", ref.Size))
	return nil
}

// gatherInputs 校验每个依赖的完成标记并读取其产物。失败的尽力而为依赖作为缺失输入标记
func (c *Crew) gatherInputs(ctx context.Context, st *kickoffState, t *TaskSpec, tr *TaskResult) ([]agent.Attachment, map[string]bool, error) {
	readable := make(map[string]bool, len(t.DependsOn))
	var attachments []agent.Attachment

	deps := append([]string(nil), t.DependsOn...)
	sort.SliceStable(deps, func(i, j int) bool { return c.byID[deps[i]].index < c.byID[deps[j]].index })

	for _, d := range deps {
		dep := c.byID[d]
		if ref, ok := st.markers[d]; ok {
			data, _, err := c.store.Read(ctx, ref.Locator)
			if err != nil {
				return nil, nil, fmt.Errorf("read input %s of %s: %w", ref.Locator, t.ID, err)
			}
			readable[ref.Locator] = true
			attachments = append(attachments, agent.Attachment{Task: d, Locator: ref.Locator, Content: string(data)})
			continue
		}
		depResult := st.result.Tasks[d]
		if depResult.Status == TaskFailed && dep.BestEffort {
			tr.MissingInputs = append(tr.MissingInputs, dep.Output)
			attachments = append(attachments, agent.Attachment{Task: d, Locator: dep.Output, Missing: true})
			continue
		}
		return nil, nil, types.NewDependencyNotMet("task %s started before dependency %s completed (status %s)", t.ID, d, depResult.Status)
	}
	return attachments, readable, nil
}

// skipRemaining 将未执行的任务标记为跳过
func (c *Crew) skipRemaining(st *kickoffState, cause error) {
	for _, t := range c.tasks {
		tr := st.result.Tasks[t.ID]
		if tr.Status != TaskPending {
			continue
		}
		tr.Status = TaskSkipped
		switch {
		case cause != nil:
			tr.Error = types.NewDependencyNotMet("crew halted").WithCause(cause).Error()
		default:
			tr.Error = types.NewDependencyNotMet("dependencies of %s did not complete", t.ID).Error()
		}
		c.notify(t.ID, TaskSkipped, 0)
	}
}

func (c *Crew) notify(task string, status TaskStatus, d time.Duration) {
	if c.observer != nil {
		c.observer(c.name, task, status, d)
	}
}
