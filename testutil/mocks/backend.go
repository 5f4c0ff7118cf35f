// MockBackend 的推理后端测试模拟实现。
//
// 支持脚本化响应、按调用次数注入错误与调用记录。
package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/BaSui01/finflow/agent"
	"github.com/BaSui01/finflow/types"
)

// --- MockBackend 结构 ---

// Step 是脚本中的一步：响应或错误二选一
type Step struct {
	Response *agent.Response
	Err      error
}

// MockBackend 是 agent.Backend 的模拟实现
type MockBackend struct {
	mu sync.Mutex

	name     string
	script   []Step
	fallback *agent.Response
	generate func(ctx context.Context, req *agent.Request) (*agent.Response, error)

	calls []*agent.Request
}

// NewMockBackend 创建新的 MockBackend，默认返回固定的最终答复
func NewMockBackend() *MockBackend {
	return &MockBackend{
		name:     "mock",
		fallback: &agent.Response{Content: "Mock response", Usage: agent.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}},
	}
}

// --- Builder 方法 ---

// WithName 设置后端名称
func (m *MockBackend) WithName(name string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse 设置脚本耗尽后的固定最终答复
func (m *MockBackend) WithResponse(content string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &agent.Response{Content: content}
	return m
}

// ThenAnswer 追加一个最终答复
func (m *MockBackend) ThenAnswer(content string) *MockBackend {
	return m.then(Step{Response: &agent.Response{Content: content}})
}

// ThenToolCall 追加一次工具调用，args 会被编码为 JSON
func (m *MockBackend) ThenToolCall(name string, args any) *MockBackend {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	id := fmt.Sprintf("call-%d", len(m.script)+1)
	m.mu.Unlock()
	return m.then(Step{Response: &agent.Response{
		ToolCalls: []types.ToolCall{{ID: id, Name: name, Arguments: raw}},
	}})
}

// ThenToolCalls 追加一次包含多个工具调用的响应
func (m *MockBackend) ThenToolCalls(calls ...types.ToolCall) *MockBackend {
	return m.then(Step{Response: &agent.Response{ToolCalls: calls}})
}

// ThenDelegate 追加一次委派请求
func (m *MockBackend) ThenDelegate(to, task string) *MockBackend {
	return m.then(Step{Response: &agent.Response{Delegation: &agent.Delegation{To: to, Task: task}}})
}

// ThenError 追加一次错误
func (m *MockBackend) ThenError(err error) *MockBackend {
	return m.then(Step{Err: err})
}

// WithGenerateFunc 设置自定义生成函数，优先于脚本
func (m *MockBackend) WithGenerateFunc(fn func(ctx context.Context, req *agent.Request) (*agent.Response, error)) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generate = fn
	return m
}

func (m *MockBackend) then(s Step) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, s)
	return m
}

// --- Backend 接口实现 ---

// Name 返回后端名称
func (m *MockBackend) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Generate 按脚本顺序返回响应
func (m *MockBackend) Generate(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	m.mu.Lock()
	snapshot := *req
	snapshot.Messages = append([]types.Message(nil), req.Messages...)
	m.calls = append(m.calls, &snapshot)
	fn := m.generate

	var step *Step
	if fn == nil && len(m.script) > 0 {
		s := m.script[0]
		m.script = m.script[1:]
		step = &s
	}
	fallback := m.fallback
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if step == nil {
		r := *fallback
		return &r, nil
	}
	if step.Err != nil {
		return nil, step.Err
	}
	r := *step.Response
	return &r, nil
}

// --- 调用记录 ---

// Calls 返回所有请求的快照
func (m *MockBackend) Calls() []*agent.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*agent.Request(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastRequest 返回最后一次请求
func (m *MockBackend) LastRequest() *agent.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// Remaining 返回尚未消费的脚本步数
func (m *MockBackend) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}
