package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/finflow/agent/artifacts"
	"github.com/BaSui01/finflow/types"
)

type fileWriterArgs struct {
	Filename string          `json:"filename,omitempty"`
	Content  json.RawMessage `json:"content"`
}

// NewFileWriterTool returns a writer that stores content in the calling
// task's output slot. A filename other than the task's own locator is
// rejected, so each locator keeps exactly one producer.
func NewFileWriterTool(name string) Tool {
	schema := Schema{
		Name:        name,
		Description: "Write the task result to the task's output file. Content may be text or JSON.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"filename": {"type": "string", "description": "Optional; must equal the task's output file"},
				"content": {"description": "The content to write"}
			},
			"required": ["content"]
		}`),
	}

	return NewFunc(schema, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params fileWriterArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid %s arguments", name)).WithCause(err)
		}
		b, ok := BindingFrom(ctx)
		if !ok || b.Output == nil {
			return nil, types.NewError(types.ErrToolNotPermitted, fmt.Sprintf("%s called outside a task with an output file", name))
		}
		if params.Filename != "" {
			loc, err := artifacts.NormalizeLocator(params.Filename)
			if err != nil || loc != b.Output.Locator {
				return nil, types.NewError(types.ErrToolNotPermitted,
					fmt.Sprintf("task %s may only write %s, not %s", b.Task, b.Output.Locator, params.Filename))
			}
		}

		data, err := decodeContent(params.Content, b.Output.Kind)
		if err != nil {
			return nil, err
		}
		b.Output.Put(data)
		return json.Marshal(map[string]any{"written": b.Output.Locator, "bytes": len(data)})
	})
}

// decodeContent accepts a JSON string or any JSON value. Text slots get the
// unquoted string; structured slots must hold valid JSON.
func decodeContent(raw json.RawMessage, kind artifacts.ContentKind) ([]byte, error) {
	if len(raw) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "content is required")
	}
	var s string
	isString := json.Unmarshal(raw, &s) == nil

	if kind == artifacts.KindStructured {
		if isString {
			if !json.Valid([]byte(s)) {
				return nil, types.NewError(types.ErrInvalidRequest, "content for a .json file must be valid JSON")
			}
			return []byte(s), nil
		}
		return raw, nil
	}
	if isString {
		return []byte(s), nil
	}
	return raw, nil
}

type fileReaderArgs struct {
	Filename string `json:"filename"`
}

// NewFileReaderTool returns a reader limited to artifacts of the calling
// task's completed dependencies.
func NewFileReaderTool() Tool {
	schema := Schema{
		Name:        "file_reader",
		Description: "Read the output file of a task this task depends on.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"filename": {"type": "string"}},
			"required": ["filename"]
		}`),
	}

	return NewFunc(schema, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params fileReaderArgs
		if err := json.Unmarshal(args, &params); err != nil || params.Filename == "" {
			return nil, types.NewError(types.ErrInvalidRequest, "file_reader requires filename")
		}
		b, ok := BindingFrom(ctx)
		if !ok || b.Store == nil {
			return nil, types.NewError(types.ErrToolNotPermitted, "file_reader called outside a task")
		}
		if !b.CanRead(params.Filename) {
			return nil, types.NewError(types.ErrToolNotPermitted,
				fmt.Sprintf("%s is not the output of a completed dependency of %s", params.Filename, b.Task))
		}
		data, _, err := b.Store.Read(ctx, params.Filename)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"filename": params.Filename, "content": string(data)})
	})
}
