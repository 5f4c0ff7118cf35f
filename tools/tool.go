package tools

import (
	"context"
	"encoding/json"
	"time"
)

// Schema describes a tool to the model backend.
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Tool is a capability a worker may invoke. Errors marked retryable through
// types.Error are retried by the worker's policy; others end the call.
type Tool interface {
	Schema() Schema
	Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

type funcTool struct {
	schema Schema
	fn     ToolFunc
}

// NewFunc adapts a function into a Tool.
func NewFunc(schema Schema, fn ToolFunc) Tool {
	return &funcTool{schema: schema, fn: fn}
}

func (t *funcTool) Schema() Schema { return t.schema }

func (t *funcTool) Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return t.fn(ctx, args)
}

// Result represents one tool execution as fed back to the backend.
type Result struct {
	CallID   string          `json:"call_id,omitempty"`
	Name     string          `json:"name"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Attempts int             `json:"attempts,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// Names returns the names of the given tools in order.
func Names(ts []Tool) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Schema().Name)
	}
	return out
}
