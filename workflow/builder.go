package workflow

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/finflow/retry"
	"github.com/BaSui01/finflow/types"
)

// FlowBuilder provides a fluent API for constructing flows
type FlowBuilder struct {
	name   string
	fields []FieldSpec
	steps  []*StepNode
	logger *zap.Logger
}

// NewFlowBuilder creates a new flow builder with the given name
func NewFlowBuilder(name string) *FlowBuilder {
	return &FlowBuilder{
		name:   name,
		logger: zap.NewNop(),
	}
}

// WithLogger sets a custom logger
func (b *FlowBuilder) WithLogger(logger *zap.Logger) *FlowBuilder {
	if logger != nil {
		b.logger = logger.With(zap.String("component", "flow_builder"))
	}
	return b
}

// WithState declares the state fields of the flow
func (b *FlowBuilder) WithState(fields ...FieldSpec) *FlowBuilder {
	b.fields = append(b.fields, fields...)
	return b
}

// Start adds a start step
func (b *FlowBuilder) Start(id string, handler StepHandler) *StepBuilder {
	return b.add(&StepNode{ID: id, Kind: KindStart, Handler: handler})
}

// Listen adds a listen step joined over preds with the given combinator
func (b *FlowBuilder) Listen(id string, comb Combinator, handler StepHandler, preds ...string) *StepBuilder {
	return b.add(&StepNode{
		ID:           id,
		Kind:         KindListen,
		Combinator:   comb,
		Handler:      handler,
		Predecessors: append([]string(nil), preds...),
	})
}

// ListenAll adds an AND-joined listen step
func (b *FlowBuilder) ListenAll(id string, handler StepHandler, preds ...string) *StepBuilder {
	return b.Listen(id, JoinAll, handler, preds...)
}

// ListenAny adds an OR-joined listen step
func (b *FlowBuilder) ListenAny(id string, handler StepHandler, preds ...string) *StepBuilder {
	return b.Listen(id, JoinAny, handler, preds...)
}

func (b *FlowBuilder) add(n *StepNode) *StepBuilder {
	n.index = len(b.steps)
	b.steps = append(b.steps, n)
	return &StepBuilder{node: n, parent: b}
}

// Build validates the graph and creates an immutable Flow
func (b *FlowBuilder) Build() (*Flow, error) {
	schema, err := NewStateSchema(b.fields...)
	if err != nil {
		return nil, fmt.Errorf("flow %q: %w", b.name, err)
	}
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("flow validation failed: %w", err)
	}

	f := &Flow{
		name:       b.name,
		schema:     schema,
		steps:      b.steps,
		byID:       make(map[string]*StepNode, len(b.steps)),
		dependents: make(map[string][]string),
	}
	for _, n := range b.steps {
		f.byID[n.ID] = n
	}
	for _, n := range b.steps {
		for _, p := range n.Predecessors {
			f.dependents[p] = append(f.dependents[p], n.ID)
		}
	}

	b.logger.Info("flow built",
		zap.String("flow", b.name),
		zap.Int("steps", len(b.steps)),
		zap.Strings("start", f.StartSteps()),
	)
	return f, nil
}

// validate checks identities, step kinds, predecessor references and cycles
func (b *FlowBuilder) validate() error {
	if b.name == "" {
		return types.NewGraphInvalid("flow name is empty")
	}
	if len(b.steps) == 0 {
		return types.NewGraphInvalid("flow %q has no steps", b.name)
	}

	ids := make(map[string]*StepNode, len(b.steps))
	for _, n := range b.steps {
		if n.ID == "" {
			return types.NewGraphInvalid("step at position %d has empty id", n.index)
		}
		if _, dup := ids[n.ID]; dup {
			return types.NewGraphInvalid("duplicate step id %q", n.ID)
		}
		ids[n.ID] = n
	}

	starts := 0
	for _, n := range b.steps {
		if n.Handler == nil {
			return types.NewGraphInvalid("step %q has no handler", n.ID)
		}
		switch n.Kind {
		case KindStart:
			starts++
			if len(n.Predecessors) > 0 {
				return types.NewGraphInvalid("start step %q must not have predecessors", n.ID)
			}
		case KindListen:
			if len(n.Predecessors) == 0 {
				return types.NewGraphInvalid("listen step %q has no predecessors", n.ID)
			}
			if n.Combinator != JoinAll && n.Combinator != JoinAny {
				return types.NewGraphInvalid("listen step %q has unknown combinator %q", n.ID, n.Combinator)
			}
		default:
			return types.NewGraphInvalid("step %q has unknown kind %q", n.ID, n.Kind)
		}

		seen := make(map[string]bool, len(n.Predecessors))
		for _, p := range n.Predecessors {
			if _, ok := ids[p]; !ok {
				return types.NewGraphInvalid("step %q listens on unknown step %q", n.ID, p)
			}
			if seen[p] {
				return types.NewGraphInvalid("step %q lists predecessor %q twice", n.ID, p)
			}
			seen[p] = true
		}

		if n.Retry != nil {
			if err := n.Retry.Validate(); err != nil {
				return fmt.Errorf("step %q: %w", n.ID, err)
			}
		}
	}
	if starts == 0 {
		return types.NewGraphInvalid("flow %q has no start step", b.name)
	}

	if cycle := b.findCycle(ids); cycle != "" {
		return types.NewGraphInvalid("cycle detected involving step %q", cycle)
	}
	return nil
}

// findCycle walks predecessor edges depth first and returns a step on a cycle
func (b *FlowBuilder) findCycle(ids map[string]*StepNode) string {
	visited := make(map[string]bool, len(ids))
	recStack := make(map[string]bool, len(ids))

	var visit func(id string) string
	visit = func(id string) string {
		visited[id] = true
		recStack[id] = true
		for _, p := range ids[id].Predecessors {
			if !visited[p] {
				if c := visit(p); c != "" {
					return c
				}
			} else if recStack[p] {
				return p
			}
		}
		recStack[id] = false
		return ""
	}

	for _, n := range b.steps {
		if !visited[n.ID] {
			if c := visit(n.ID); c != "" {
				return c
			}
		}
	}
	return ""
}

// StepBuilder configures a single step
type StepBuilder struct {
	node   *StepNode
	parent *FlowBuilder
}

// WithRetry attaches a retry policy to the step
func (sb *StepBuilder) WithRetry(p *retry.RetryPolicy) *StepBuilder {
	sb.node.Retry = p
	return sb
}

// WithDescription sets the step description
func (sb *StepBuilder) WithDescription(desc string) *StepBuilder {
	sb.node.Description = desc
	return sb
}

// Done returns to the parent builder
func (sb *StepBuilder) Done() *FlowBuilder {
	return sb.parent
}
