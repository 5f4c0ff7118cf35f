// MockTool 的工具测试模拟实现。
//
// 支持固定结果、按次数失败与调用记录。
package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/BaSui01/finflow/tools"
)

// --- MockTool 结构 ---

// MockTool 是 tools.Tool 的模拟实现
type MockTool struct {
	mu sync.Mutex

	schema   tools.Schema
	result   json.RawMessage
	errs     []error // 依次返回的错误，耗尽后返回 result
	callFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

	calls []json.RawMessage
}

// NewMockTool 创建新的 MockTool
func NewMockTool(name string) *MockTool {
	return &MockTool{
		schema: tools.Schema{
			Name:        name,
			Description: "Mock tool: " + name,
			Parameters:  json.RawMessage(`{"type":"object"}`),
		},
		result: json.RawMessage(`{"ok":true}`),
	}
}

// WithResult 设置固定返回结果
func (m *MockTool) WithResult(v any) *MockTool {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = raw
	return m
}

// FailWith 让接下来的调用依次返回 errs
func (m *MockTool) FailWith(errs ...error) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
	return m
}

// WithCallFunc 设置自定义执行函数
func (m *MockTool) WithCallFunc(fn func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callFunc = fn
	return m
}

// --- Tool 接口实现 ---

// Schema 返回工具描述
func (m *MockTool) Schema() tools.Schema { return m.schema }

// Call 执行工具
func (m *MockTool) Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append(json.RawMessage(nil), args...))
	fn := m.callFunc
	var err error
	if len(m.errs) > 0 {
		err, m.errs = m.errs[0], m.errs[1:]
	}
	result := m.result
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, args)
	}
	return result, nil
}

// --- 调用记录 ---

// Calls 返回所有调用参数
func (m *MockTool) Calls() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]json.RawMessage(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
