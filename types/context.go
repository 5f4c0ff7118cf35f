package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRunID  contextKey = "run_id"
	keyStepID contextKey = "step_id"
	keyCrew   contextKey = "crew"
	keyTaskID contextKey = "task_id"
)

// WithRunID adds run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithStepID adds the current flow step to context.
func WithStepID(ctx context.Context, stepID string) context.Context {
	return context.WithValue(ctx, keyStepID, stepID)
}

// StepID extracts the current flow step from context.
func StepID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyStepID).(string)
	return v, ok && v != ""
}

// WithCrew adds the running crew name to context.
func WithCrew(ctx context.Context, crew string) context.Context {
	return context.WithValue(ctx, keyCrew, crew)
}

// Crew extracts the running crew name from context.
func Crew(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyCrew).(string)
	return v, ok && v != ""
}

// WithTaskID adds the running task id to context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, keyTaskID, taskID)
}

// TaskID extracts the running task id from context.
func TaskID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTaskID).(string)
	return v, ok && v != ""
}
