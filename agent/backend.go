package agent

import (
	"context"

	"github.com/BaSui01/finflow/tools"
	"github.com/BaSui01/finflow/types"
)

// Request is one reasoning step sent to a Backend.
type Request struct {
	Agent     string          `json:"agent"`
	Messages  []types.Message `json:"messages"`
	Tools     []tools.Schema  `json:"tools,omitempty"`
	Coworkers []string        `json:"coworkers,omitempty"` // delegation targets, empty when delegation is off
}

// Delegation asks another worker of the crew to handle a sub-task.
type Delegation struct {
	To      string `json:"to"`
	Task    string `json:"task"`
	Context string `json:"context,omitempty"`
}

// Usage is the token accounting a backend may report.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the backend's answer to a reasoning step. Exactly one of the
// following applies, checked in this order: a delegation request, tool calls,
// or a final answer in Content.
type Response struct {
	Content    string           `json:"content,omitempty"`
	ToolCalls  []types.ToolCall `json:"tool_calls,omitempty"`
	Delegation *Delegation      `json:"delegation,omitempty"`
	Model      string           `json:"model,omitempty"`
	Usage      Usage            `json:"usage"`
}

// Backend is the reasoning engine behind a worker, usually an LLM.
// Errors carrying types.Error{Retryable: true} are retried by the worker.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// BackendFunc adapts a function into a Backend.
type BackendFunc func(ctx context.Context, req *Request) (*Response, error)

func (f BackendFunc) Name() string { return "func" }

func (f BackendFunc) Generate(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
