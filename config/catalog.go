package config

import (
	"fmt"
	"io/fs"
	"os"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/finflow/types"
)

// AgentDefinition 是 agents.yaml 中的一个工作者定义
type AgentDefinition struct {
	Role            string   `yaml:"role" json:"role"`
	Goal            string   `yaml:"goal" json:"goal"`
	Backstory       string   `yaml:"backstory" json:"backstory,omitempty"`
	Tools           []string `yaml:"tools" json:"tools,omitempty"`
	AllowDelegation bool     `yaml:"allow_delegation" json:"allow_delegation"`
	MaxIter         int      `yaml:"max_iter" json:"max_iter,omitempty"`
	MaxRetryLimit   *int     `yaml:"max_retry_limit" json:"max_retry_limit,omitempty"` // 为空时使用 retry.agent_retry_budget
	Verbose         bool     `yaml:"verbose" json:"verbose,omitempty"`
}

// TaskDefinition 是 tasks.yaml 中的一个任务定义
type TaskDefinition struct {
	Description    string   `yaml:"description" json:"description"`
	ExpectedOutput string   `yaml:"expected_output" json:"expected_output"`
	Agent          string   `yaml:"agent" json:"agent"`
	OutputFile     string   `yaml:"output_file" json:"output_file"`
	DependsOn      []string `yaml:"depends_on" json:"depends_on,omitempty"`
	BestEffort     bool     `yaml:"best_effort" json:"best_effort,omitempty"`
}

// Catalog 按名称保存工作者与任务定义，并保留声明顺序
type Catalog struct {
	agents     map[string]AgentDefinition
	tasks      map[string]TaskDefinition
	agentOrder []string
	taskOrder  []string
}

// NewCatalog 创建空目录
func NewCatalog() *Catalog {
	return &Catalog{
		agents: make(map[string]AgentDefinition),
		tasks:  make(map[string]TaskDefinition),
	}
}

// ParseCatalog 解析 agents.yaml 与 tasks.yaml 的内容
func ParseCatalog(agentsYAML, tasksYAML []byte) (*Catalog, error) {
	c := NewCatalog()
	if err := decodeOrdered(agentsYAML, "agents", func(name string, node *yaml.Node) error {
		var def AgentDefinition
		if err := node.Decode(&def); err != nil {
			return err
		}
		return c.AddAgent(name, def)
	}); err != nil {
		return nil, err
	}
	if err := decodeOrdered(tasksYAML, "tasks", func(name string, node *yaml.Node) error {
		var def TaskDefinition
		if err := node.Decode(&def); err != nil {
			return err
		}
		return c.AddTask(name, def)
	}); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCatalogFS 从 fsys 的 dir 目录读取 agents.yaml 与 tasks.yaml
func LoadCatalogFS(fsys fs.FS, dir string) (*Catalog, error) {
	agents, err := fs.ReadFile(fsys, path.Join(dir, "agents.yaml"))
	if err != nil {
		return nil, types.NewConfiguration("read agents catalog in %s", dir).WithCause(err)
	}
	tasks, err := fs.ReadFile(fsys, path.Join(dir, "tasks.yaml"))
	if err != nil {
		return nil, types.NewConfiguration("read tasks catalog in %s", dir).WithCause(err)
	}
	return ParseCatalog(agents, tasks)
}

// LoadCatalogDir 从本地目录读取目录文件
func LoadCatalogDir(dir string) (*Catalog, error) {
	return LoadCatalogFS(os.DirFS(dir), ".")
}

// decodeOrdered 按文档顺序遍历顶层映射
func decodeOrdered(data []byte, what string, fn func(name string, node *yaml.Node) error) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return types.NewConfiguration("parse %s catalog", what).WithCause(err)
	}
	if len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return types.NewConfiguration("%s catalog must be a mapping of name to definition", what)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		if err := fn(name, root.Content[i+1]); err != nil {
			if types.GetErrorCode(err) != "" {
				return err
			}
			return types.NewConfiguration("%s catalog entry %s (line %d)", what, name, root.Content[i].Line).WithCause(err)
		}
	}
	return nil
}

// AddAgent 添加工作者定义
func (c *Catalog) AddAgent(name string, def AgentDefinition) error {
	if name == "" {
		return types.NewConfiguration("agent name is empty")
	}
	if _, dup := c.agents[name]; dup {
		return types.NewConfiguration("agent %s defined twice", name)
	}
	if def.Role == "" || def.Goal == "" {
		return types.NewConfiguration("agent %s needs role and goal", name)
	}
	c.agents[name] = def
	c.agentOrder = append(c.agentOrder, name)
	return nil
}

// AddTask 添加任务定义
func (c *Catalog) AddTask(name string, def TaskDefinition) error {
	if name == "" {
		return types.NewConfiguration("task name is empty")
	}
	if _, dup := c.tasks[name]; dup {
		return types.NewConfiguration("task %s defined twice", name)
	}
	if def.Description == "" || def.Agent == "" {
		return types.NewConfiguration("task %s needs description and agent", name)
	}
	if def.OutputFile == "" {
		return types.NewConfiguration("task %s needs output_file", name)
	}
	c.tasks[name] = def
	c.taskOrder = append(c.taskOrder, name)
	return nil
}

// Agent 按名称查找工作者定义，缺失即配置错误
func (c *Catalog) Agent(name string) (AgentDefinition, error) {
	def, ok := c.agents[name]
	if !ok {
		return AgentDefinition{}, types.NewConfiguration("agent %q not found in catalog", name)
	}
	return def, nil
}

// Task 按名称查找任务定义，缺失即配置错误
func (c *Catalog) Task(name string) (TaskDefinition, error) {
	def, ok := c.tasks[name]
	if !ok {
		return TaskDefinition{}, types.NewConfiguration("task %q not found in catalog", name)
	}
	return def, nil
}

// AgentNames 按声明顺序返回工作者名称
func (c *Catalog) AgentNames() []string { return append([]string(nil), c.agentOrder...) }

// TaskNames 按声明顺序返回任务名称
func (c *Catalog) TaskNames() []string { return append([]string(nil), c.taskOrder...) }

func (c *Catalog) String() string {
	return fmt.Sprintf("Catalog(%d agents, %d tasks)", len(c.agents), len(c.tasks))
}
