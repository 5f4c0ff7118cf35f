package crews

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/finflow/agent"
)

// ProcessType 定义任务处理方式
type ProcessType string

const (
	ProcessSequential   ProcessType = "sequential"
	ProcessHierarchical ProcessType = "hierarchical"
)

// RunView 是进程策略可见的运行状态
type RunView struct {
	Crew      string
	Inputs    map[string]string
	Completed []string // 已完成任务，按完成顺序
}

// Process 从当前就绪任务中选出下一个执行的任务。ready 按声明顺序排列且非空
type Process interface {
	Type() ProcessType
	Next(ctx context.Context, ready []*TaskSpec, view RunView) *TaskSpec
}

type sequentialProcess struct{}

// Sequential 返回顺序策略：总是执行声明顺序最靠前的就绪任务，
// 因而执行顺序等于依赖图的拓扑序（声明顺序仅用于打破平局）
func Sequential() Process { return sequentialProcess{} }

func (sequentialProcess) Type() ProcessType { return ProcessSequential }

func (sequentialProcess) Next(_ context.Context, ready []*TaskSpec, _ RunView) *TaskSpec {
	return ready[0]
}

// Coordinator 在运行时决定层级模式下的下一个任务
type Coordinator interface {
	Choose(ctx context.Context, ready []*TaskSpec, view RunView) (string, error)
}

// CoordinatorFunc adapts a function into a Coordinator.
type CoordinatorFunc func(ctx context.Context, ready []*TaskSpec, view RunView) (string, error)

func (f CoordinatorFunc) Choose(ctx context.Context, ready []*TaskSpec, view RunView) (string, error) {
	return f(ctx, ready, view)
}

type hierarchicalProcess struct {
	coordinator Coordinator
	logger      *zap.Logger
}

// Hierarchical 返回层级策略。协调者的无效选择或错误回退到第一个就绪任务
func Hierarchical(c Coordinator, logger *zap.Logger) Process {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &hierarchicalProcess{coordinator: c, logger: logger.With(zap.String("component", "crew_manager"))}
}

func (p *hierarchicalProcess) Type() ProcessType { return ProcessHierarchical }

func (p *hierarchicalProcess) Next(ctx context.Context, ready []*TaskSpec, view RunView) *TaskSpec {
	if len(ready) == 1 || p.coordinator == nil {
		return ready[0]
	}
	choice, err := p.coordinator.Choose(ctx, ready, view)
	if err != nil {
		p.logger.Warn("coordinator failed, falling back to first ready task",
			zap.String("crew", view.Crew), zap.String("fallback", ready[0].ID), zap.Error(err))
		return ready[0]
	}
	for _, t := range ready {
		if t.ID == choice {
			return t
		}
	}
	p.logger.Warn("coordinator picked a task that is not ready, falling back",
		zap.String("crew", view.Crew), zap.String("choice", choice), zap.String("fallback", ready[0].ID))
	return ready[0]
}

// ManagerCoordinator 让管理者工作者挑选下一个任务
type ManagerCoordinator struct {
	manager *agent.Worker
}

// NewManagerCoordinator creates a coordinator backed by the manager worker.
func NewManagerCoordinator(manager *agent.Worker) *ManagerCoordinator {
	return &ManagerCoordinator{manager: manager}
}

// Choose implements Coordinator.
func (m *ManagerCoordinator) Choose(ctx context.Context, ready []*TaskSpec, view RunView) (string, error) {
	var sb strings.Builder
	sb.WriteString("You manage a crew. Choose which task runs next.\n\nReady tasks:\n")
	for _, t := range ready {
		fmt.Fprintf(&sb, "- %s (agent %s): %s\n", t.ID, t.Agent, firstLine(Interpolate(t.Description, view.Inputs)))
	}
	if len(view.Completed) > 0 {
		fmt.Fprintf(&sb, "\nAlready completed: %s\n", strings.Join(view.Completed, ", "))
	}

	out, err := m.manager.Execute(ctx, agent.Task{
		ID:             view.Crew + "/manager",
		Description:    sb.String(),
		ExpectedOutput: "Only the id of the chosen task.",
	}, view.Inputs)
	if err != nil {
		return "", err
	}
	return matchTask(out.Content, ready), nil
}

// matchTask 从管理者答复中识别任务 ID：先精确匹配，再按包含关系匹配最长 ID
func matchTask(answer string, ready []*TaskSpec) string {
	a := strings.Trim(strings.TrimSpace(answer), "`\"'. ")
	for _, t := range ready {
		if t.ID == a {
			return t.ID
		}
	}
	best := ""
	for _, t := range ready {
		if strings.Contains(answer, t.ID) && len(t.ID) > len(best) {
			best = t.ID
		}
	}
	if best == "" {
		return a
	}
	return best
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
