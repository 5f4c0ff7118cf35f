package crews

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/finflow/agent"
	"github.com/BaSui01/finflow/agent/artifacts"
	"github.com/BaSui01/finflow/config"
	"github.com/BaSui01/finflow/tools"
	"github.com/BaSui01/finflow/types"
)

// Spec 描述从目录构建的团队
type Spec struct {
	Name    string      `yaml:"name" json:"name"`
	Process ProcessType `yaml:"process" json:"process"`
	Tasks   []string    `yaml:"tasks" json:"tasks"`               // 目录中的任务名，声明顺序
	Manager string      `yaml:"manager" json:"manager,omitempty"` // 层级模式的管理者，为空时使用首个任务的 agent
}

// Deps 是构建团队时注入的依赖。工具按每次运行构造，不使用包级单例
type Deps struct {
	Backend       agent.Backend
	Tools         *tools.Registry
	Store         artifacts.Store
	Logger        *zap.Logger
	RetryBudget   int // 目录未设置 max_retry_limit 时使用
	RetryDelay    time.Duration
	WorkerOptions []agent.Option
}

// Build 从目录解析 agent 与任务并创建团队。
// 缺失的键返回 Configuration 错误；重复定位符、未知依赖与环返回 GraphInvalid 错误。
func Build(spec Spec, catalog *config.Catalog, deps Deps, opts ...Option) (*Crew, error) {
	if catalog == nil {
		return nil, types.NewConfiguration("crew %s: catalog is nil", spec.Name)
	}
	if deps.Backend == nil {
		return nil, types.NewConfiguration("crew %s: backend is nil", spec.Name)
	}
	if deps.Tools == nil {
		deps.Tools = tools.NewRegistry(deps.Logger)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		taskSpecs []TaskSpec
		workers   []*agent.Worker
		byName    = make(map[string]*agent.Worker)
	)

	newWorker := func(name string) (*agent.Worker, error) {
		if w, ok := byName[name]; ok {
			return w, nil
		}
		def, err := catalog.Agent(name)
		if err != nil {
			return nil, fmt.Errorf("crew %s: %w", spec.Name, err)
		}
		capabilities, err := deps.Tools.Resolve(def.Tools...)
		if err != nil {
			return nil, fmt.Errorf("crew %s: agent %s: %w", spec.Name, name, err)
		}
		cfg := agent.NewDefaultConfig(name, def.Role, def.Goal)
		cfg.Backstory = def.Backstory
		cfg.AllowDelegation = def.AllowDelegation
		if def.MaxIter > 0 {
			cfg.MaxIterations = def.MaxIter
		}
		cfg.RetryBudget = deps.RetryBudget
		if def.MaxRetryLimit != nil {
			cfg.RetryBudget = *def.MaxRetryLimit
		}
		if deps.RetryDelay > 0 {
			cfg.RetryDelay = deps.RetryDelay
		}
		w, err := agent.NewWorker(cfg, deps.Backend, capabilities, logger, deps.WorkerOptions...)
		if err != nil {
			return nil, fmt.Errorf("crew %s: %w", spec.Name, err)
		}
		byName[name] = w
		workers = append(workers, w)
		return w, nil
	}

	if len(spec.Tasks) == 0 {
		return nil, types.NewGraphInvalid("crew %s has no tasks", spec.Name)
	}
	for _, name := range spec.Tasks {
		def, err := catalog.Task(name)
		if err != nil {
			return nil, fmt.Errorf("crew %s: %w", spec.Name, err)
		}
		if _, err := newWorker(def.Agent); err != nil {
			return nil, err
		}
		taskSpecs = append(taskSpecs, TaskSpec{
			ID:             name,
			Description:    def.Description,
			ExpectedOutput: def.ExpectedOutput,
			Agent:          def.Agent,
			Output:         def.OutputFile,
			Kind:           artifacts.KindForLocator(def.OutputFile),
			DependsOn:      def.DependsOn,
			BestEffort:     def.BestEffort,
		})
	}

	// 同组工作者互为可委派对象
	for _, w := range workers {
		if w.Config().AllowDelegation {
			w.SetCoworkers(workers...)
		}
	}

	process := Sequential()
	switch spec.Process {
	case "", ProcessSequential:
	case ProcessHierarchical:
		managerName := spec.Manager
		if managerName == "" {
			managerName = taskSpecs[0].Agent
		}
		manager, err := newWorker(managerName)
		if err != nil {
			return nil, err
		}
		process = Hierarchical(NewManagerCoordinator(manager), logger)
	default:
		return nil, types.NewConfiguration("crew %s: unknown process %q", spec.Name, spec.Process)
	}

	all := append([]Option{WithProcess(process), WithLogger(logger)}, opts...)
	return New(spec.Name, taskSpecs, workers, deps.Store, all...)
}
