package crews

import (
	"regexp"
	"strings"
	"time"

	"github.com/BaSui01/finflow/agent/artifacts"
)

// TaskSpec 是团队中的一个任务单元
type TaskSpec struct {
	ID             string                `json:"id"`
	Description    string                `json:"description"`
	ExpectedOutput string                `json:"expected_output"`
	Agent          string                `json:"agent"`
	Output         string                `json:"output"` // 任务独占的产物定位符
	Kind           artifacts.ContentKind `json:"kind"`
	DependsOn      []string              `json:"depends_on,omitempty"`
	BestEffort     bool                  `json:"best_effort,omitempty"` // 失败不终止团队，依赖方带着缺失标记继续

	index int
}

// Index returns the declaration index of the task within its crew.
func (t *TaskSpec) Index() int { return t.index }

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// IsTerminal reports whether the task will not change state again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// TaskResult 记录一个任务的执行结果
type TaskResult struct {
	TaskID        string         `json:"task_id"`
	Agent         string         `json:"agent"`
	Status        TaskStatus     `json:"status"`
	Output        string         `json:"output,omitempty"`
	Artifact      *artifacts.Ref `json:"artifact,omitempty"`
	Error         string         `json:"error,omitempty"`
	BestEffort    bool           `json:"best_effort,omitempty"`
	MissingInputs []string       `json:"missing_inputs,omitempty"`
	Iterations    int            `json:"iterations,omitempty"`
	ToolCalls     int            `json:"tool_calls,omitempty"`
	Sequence      int            `json:"sequence"` // 执行顺序，从 1 开始；未执行为 0
	Duration      time.Duration  `json:"duration"`
}

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Interpolate 将 {name} 占位符替换为 inputs 中的值，未知占位符保持原样
func Interpolate(text string, inputs map[string]string) string {
	if len(inputs) == 0 || !strings.Contains(text, "{") {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		if v, ok := inputs[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// cleanOutput 去掉结构化产物外层的 markdown 代码块
func cleanOutput(kind artifacts.ContentKind, content string) string {
	s := strings.TrimSpace(content)
	if kind != artifacts.KindStructured || !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
