package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/finflow/retry"
	"github.com/BaSui01/finflow/tools"
	"github.com/BaSui01/finflow/types"
)

const (
	defaultMaxIterations      = 15
	defaultRetryBudget        = 2
	defaultMaxDelegationDepth = 2
	defaultMaxDelegations     = 3

	// DelegateToolName is the pseudo tool under which delegations appear in
	// the transcript.
	DelegateToolName = "delegate_work"
)

// Config 工作者配置
type Config struct {
	Name               string        `json:"name"`
	Role               string        `json:"role"`
	Goal               string        `json:"goal"`
	Backstory          string        `json:"backstory,omitempty"`
	AllowDelegation    bool          `json:"allow_delegation"`
	MaxIterations      int           `json:"max_iterations"`
	RetryBudget        int           `json:"retry_budget"` // 重试次数，总尝试次数为 RetryBudget+1
	RetryDelay         time.Duration `json:"retry_delay"`
	MaxDelegationDepth int           `json:"max_delegation_depth"`
	MaxDelegations     int           `json:"max_delegations"` // 单个任务内的委派总预算
}

// Task 是交给工作者的一次任务
type Task struct {
	ID             string       `json:"id"`
	Description    string       `json:"description"`
	ExpectedOutput string       `json:"expected_output"`
	OutputLocator  string       `json:"output_locator,omitempty"`
	Context        []Attachment `json:"context,omitempty"`
}

// Attachment 是依赖任务的产物内容
type Attachment struct {
	Task    string `json:"task"`
	Locator string `json:"locator"`
	Content string `json:"content,omitempty"`
	Missing bool   `json:"missing,omitempty"` // 尽力而为的依赖失败时为 true
}

// DelegationRecord 记录一次委派请求及其处理结果
type DelegationRecord struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Task     string `json:"task"`
	Depth    int    `json:"depth"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Output 是工作者的最终答复
type Output struct {
	Agent           string             `json:"agent"`
	Task            string             `json:"task"`
	Content         string             `json:"content"`
	ToolResults     []tools.Result     `json:"tool_results,omitempty"`
	Delegations     []DelegationRecord `json:"delegations,omitempty"`
	Iterations      int                `json:"iterations"`
	BackendAttempts int                `json:"backend_attempts"`
	Usage           Usage              `json:"usage"`
	Duration        time.Duration      `json:"duration"`
}

// ToolObserver is notified once per tool call after retries settle.
type ToolObserver func(agent, tool string, ok bool, attempts int, d time.Duration)

// Option configures a Worker.
type Option func(*Worker)

// WithSleeper replaces the retry wait, mainly for tests.
func WithSleeper(s retry.Sleeper) Option {
	return func(w *Worker) { w.sleeper = s }
}

// WithRetryObserver reports every backend and tool retry outcome.
func WithRetryObserver(o retry.Observer) Option {
	return func(w *Worker) { w.retryObserver = o }
}

// WithToolObserver reports every tool call.
func WithToolObserver(o ToolObserver) Option {
	return func(w *Worker) { w.toolObserver = o }
}

// Worker 是由能力集合参数化的单一执行单元，进程模式与委派都不需要子类
type Worker struct {
	cfg       Config
	backend   Backend
	tools     []tools.Tool
	toolIndex map[string]tools.Tool
	coworkers map[string]*Worker
	coNames   []string

	logger        *zap.Logger
	sleeper       retry.Sleeper
	retryObserver retry.Observer
	toolObserver  ToolObserver
}

// NewWorker 创建工作者，capabilities 为已解析的工具集合
func NewWorker(cfg Config, backend Backend, capabilities []tools.Tool, logger *zap.Logger, opts ...Option) (*Worker, error) {
	if cfg.Name == "" {
		return nil, types.NewConfiguration("agent name is empty")
	}
	if backend == nil {
		return nil, types.NewConfiguration("agent %s has no backend", cfg.Name)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.RetryBudget < 0 {
		return nil, types.NewConfiguration("agent %s retry budget must not be negative", cfg.Name)
	}
	if cfg.MaxDelegationDepth <= 0 {
		cfg.MaxDelegationDepth = defaultMaxDelegationDepth
	}
	if cfg.MaxDelegations <= 0 {
		cfg.MaxDelegations = defaultMaxDelegations
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Worker{
		cfg:       cfg,
		backend:   backend,
		toolIndex: make(map[string]tools.Tool, len(capabilities)),
		coworkers: make(map[string]*Worker),
		logger:    logger.With(zap.String("component", "worker"), zap.String("agent", cfg.Name)),
	}
	for _, t := range capabilities {
		name := t.Schema().Name
		if name == DelegateToolName {
			return nil, types.NewConfiguration("agent %s: tool name %s is reserved", cfg.Name, name)
		}
		if _, dup := w.toolIndex[name]; dup {
			return nil, types.NewConfiguration("agent %s: duplicate tool %s", cfg.Name, name)
		}
		w.toolIndex[name] = t
		w.tools = append(w.tools, t)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// NewDefaultConfig returns a config with the package defaults filled in.
func NewDefaultConfig(name, role, goal string) Config {
	return Config{
		Name:               name,
		Role:               role,
		Goal:               goal,
		MaxIterations:      defaultMaxIterations,
		RetryBudget:        defaultRetryBudget,
		RetryDelay:         time.Second,
		MaxDelegationDepth: defaultMaxDelegationDepth,
		MaxDelegations:     defaultMaxDelegations,
	}
}

// Name returns the worker name.
func (w *Worker) Name() string { return w.cfg.Name }

// Config returns a copy of the worker configuration.
func (w *Worker) Config() Config { return w.cfg }

// Capabilities returns the names of the tools this worker may call.
func (w *Worker) Capabilities() []string { return tools.Names(w.tools) }

// SetCoworkers 设置可被委派的同组工作者，自身会被忽略
func (w *Worker) SetCoworkers(ws ...*Worker) {
	w.coworkers = make(map[string]*Worker, len(ws))
	w.coNames = w.coNames[:0]
	for _, c := range ws {
		if c == nil || c.Name() == w.Name() {
			continue
		}
		if _, dup := w.coworkers[c.Name()]; dup {
			continue
		}
		w.coworkers[c.Name()] = c
		w.coNames = append(w.coNames, c.Name())
	}
}

// Execute 运行推理循环直到后端给出最终答复
func (w *Worker) Execute(ctx context.Context, task Task, inputs map[string]string) (*Output, error) {
	start := time.Now()
	ds := delegationFrom(ctx)
	if ds == nil {
		ds = newDelegationState(w.Name(), w.cfg.MaxDelegationDepth, w.cfg.MaxDelegations)
		ctx = withDelegation(ctx, ds)
	}

	logger := w.logger.With(zap.String("task", task.ID), zap.Int("delegation_depth", ds.depth()))
	logger.Debug("worker started")

	out := &Output{Agent: w.Name(), Task: task.ID}
	req := &Request{
		Agent:    w.Name(),
		Messages: []types.Message{types.NewSystemMessage(systemPrompt(w.cfg)), types.NewUserMessage(taskPrompt(task, inputs))},
		Tools:    w.schemas(),
	}
	if w.cfg.AllowDelegation {
		req.Coworkers = append([]string(nil), w.coNames...)
	}

	for out.Iterations < w.cfg.MaxIterations {
		out.Iterations++

		resp, attempts, err := w.generate(ctx, req)
		out.BackendAttempts += attempts
		if err != nil {
			logger.Warn("backend call failed", zap.Int("iteration", out.Iterations), zap.Error(err))
			return nil, fmt.Errorf("agent %s: backend %s: %w", w.Name(), w.backend.Name(), err)
		}
		out.Usage.PromptTokens += resp.Usage.PromptTokens
		out.Usage.CompletionTokens += resp.Usage.CompletionTokens
		out.Usage.TotalTokens += resp.Usage.TotalTokens

		switch {
		case resp.Delegation != nil:
			call := delegationCall(out.Iterations, resp.Delegation)
			req.Messages = append(req.Messages, types.NewAssistantMessage(resp.Content).WithToolCalls([]types.ToolCall{call}))

			rec, observation, err := w.delegate(ctx, ds, task.ID, resp.Delegation)
			if err != nil {
				return nil, err
			}
			out.Delegations = append(out.Delegations, rec)
			req.Messages = append(req.Messages, types.NewToolMessage(call.ID, DelegateToolName, observation))

		case len(resp.ToolCalls) > 0:
			req.Messages = append(req.Messages, types.NewAssistantMessage(resp.Content).WithToolCalls(resp.ToolCalls))
			for _, call := range resp.ToolCalls {
				res, err := w.callTool(ctx, call)
				out.ToolResults = append(out.ToolResults, res)
				if err != nil {
					logger.Warn("tool call failed", zap.String("tool", call.Name), zap.Error(err))
					return nil, fmt.Errorf("agent %s: tool %s: %w", w.Name(), call.Name, err)
				}
				req.Messages = append(req.Messages, types.NewToolMessage(call.ID, call.Name, observationOf(res)))
			}

		default:
			out.Content = resp.Content
			out.Duration = time.Since(start)
			logger.Debug("worker finished",
				zap.Int("iterations", out.Iterations),
				zap.Int("tool_calls", len(out.ToolResults)),
				zap.Duration("duration", out.Duration))
			return out, nil
		}
	}

	return nil, types.NewTransient(nil, "agent %s gave no final answer within %d iterations", w.Name(), w.cfg.MaxIterations)
}

func (w *Worker) schemas() []tools.Schema {
	out := make([]tools.Schema, 0, len(w.tools))
	for _, t := range w.tools {
		out = append(out, t.Schema())
	}
	return out
}

func (w *Worker) retryer(scope string) retry.Retryer {
	return retry.NewRetryer(retry.Attempts(w.cfg.RetryBudget+1, w.cfg.RetryDelay), w.logger,
		retry.WithScope(scope),
		retry.WithSleeper(w.sleeper),
		retry.WithObserver(w.retryObserver),
	)
}

// generate 调用后端；不可重试的错误立即结束，返回时不带 Permanent 标记，
// 是否吸收由外层策略决定
func (w *Worker) generate(ctx context.Context, req *Request) (*Response, int, error) {
	resp, outcome, err := retry.DoWithResultTyped(w.retryer("backend:"+w.Name()), ctx, func() (*Response, error) {
		resp, err := w.backend.Generate(ctx, req)
		if err != nil {
			return nil, classify(err)
		}
		if resp == nil {
			return nil, types.NewTransient(nil, "backend returned no response")
		}
		return resp, nil
	})
	return resp, outcome.Attempts, retry.StripPermanent(err)
}

// callTool 执行一次工具调用。未知工具与不可重试的错误作为观察结果返回给后端，
// 重试耗尽或取消则作为任务失败返回
func (w *Worker) callTool(ctx context.Context, call types.ToolCall) (tools.Result, error) {
	res := tools.Result{CallID: call.ID, Name: call.Name}
	start := time.Now()

	t, ok := w.toolIndex[call.Name]
	if !ok {
		res.Error = types.NewError(types.ErrToolNotPermitted,
			fmt.Sprintf("tool %q is not available to %s; available tools: %v", call.Name, w.Name(), w.Capabilities())).Error()
		res.Duration = time.Since(start)
		w.notifyTool(call.Name, false, 0, res.Duration)
		return res, nil
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	result, outcome, err := retry.DoWithResultTyped(w.retryer("tool:"+call.Name), ctx, func() (json.RawMessage, error) {
		r, err := t.Call(ctx, args)
		if err != nil {
			return nil, classify(err)
		}
		return r, nil
	})
	res.Attempts = outcome.Attempts
	res.Duration = time.Since(start)
	w.notifyTool(call.Name, err == nil, res.Attempts, res.Duration)

	if err != nil {
		if retry.IsPermanent(err) && ctx.Err() == nil {
			res.Error = err.Error()
			return res, nil
		}
		res.Error = err.Error()
		return res, retry.StripPermanent(err)
	}
	res.Result = result
	return res, nil
}

func (w *Worker) notifyTool(name string, ok bool, attempts int, d time.Duration) {
	if w.toolObserver != nil {
		w.toolObserver(w.Name(), name, ok, attempts, d)
	}
}

// classify 标记不应重试的错误；无类型错误按瞬时错误处理
func classify(err error) error {
	if types.IsFatal(err) {
		return err
	}
	if types.GetErrorCode(err) != "" && !types.IsRetryable(err) {
		return retry.Permanent(err)
	}
	return err
}

func observationOf(r tools.Result) string {
	if r.Error != "" {
		return "error: " + r.Error
	}
	return string(r.Result)
}

func delegationCall(iteration int, d *Delegation) types.ToolCall {
	args, _ := json.Marshal(d)
	return types.ToolCall{
		ID:        fmt.Sprintf("delegation-%d", iteration),
		Name:      DelegateToolName,
		Arguments: args,
	}
}
