package workflow

import (
	"container/heap"
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/finflow/retry"
)

// StepKind distinguishes entry steps from steps that wait on predecessors.
type StepKind string

const (
	KindStart  StepKind = "start"
	KindListen StepKind = "listen"
)

// Combinator decides how a listen step joins its predecessors.
type Combinator string

const (
	// JoinAll fires once every predecessor has finished without a required failure.
	JoinAll Combinator = "AND"
	// JoinAny fires on the first predecessor that succeeds.
	JoinAny Combinator = "OR"
)

// StepHandler executes one step. The returned value is recorded as the
// step's output and exposed to dependents through StepContext.Inputs.
type StepHandler func(ctx context.Context, sc *StepContext) (any, error)

// StepContext is what a handler sees while running.
type StepContext struct {
	RunID   string
	Step    string
	Attempt int
	State   *State
	Inputs  map[string]StepOutcome
	Logger  *zap.Logger
}

// Input returns the recorded outcome of a predecessor.
func (sc *StepContext) Input(pred string) (StepOutcome, bool) {
	o, ok := sc.Inputs[pred]
	return o, ok
}

// StepNode is one vertex of a flow graph.
type StepNode struct {
	ID           string
	Kind         StepKind
	Predecessors []string
	Combinator   Combinator
	Handler      StepHandler
	Retry        *retry.RetryPolicy
	Description  string

	index int
}

// Index is the declaration position of the step inside its flow.
func (n *StepNode) Index() int { return n.index }

// Flow is a validated, immutable step graph plus its state schema.
type Flow struct {
	name       string
	schema     *StateSchema
	steps      []*StepNode
	byID       map[string]*StepNode
	dependents map[string][]string
}

// Name returns the flow name.
func (f *Flow) Name() string { return f.name }

// Schema returns the declared state schema.
func (f *Flow) Schema() *StateSchema { return f.schema }

// Steps returns the steps in declaration order.
func (f *Flow) Steps() []*StepNode {
	out := make([]*StepNode, len(f.steps))
	copy(out, f.steps)
	return out
}

// Step looks up a step by id.
func (f *Flow) Step(id string) (*StepNode, bool) {
	n, ok := f.byID[id]
	return n, ok
}

// Dependents returns the steps listening on id, in declaration order.
func (f *Flow) Dependents(id string) []string {
	return append([]string(nil), f.dependents[id]...)
}

// StartSteps returns the ids of all start steps in declaration order.
func (f *Flow) StartSteps() []string {
	var ids []string
	for _, n := range f.steps {
		if n.Kind == KindStart {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Plan returns the static execution order: a topological order of the
// predecessor relation where declaration order breaks ties.
func (f *Flow) Plan() []string {
	indeg := make(map[string]int, len(f.steps))
	for _, n := range f.steps {
		indeg[n.ID] = len(n.Predecessors)
	}

	ready := &indexHeap{}
	for _, n := range f.steps {
		if indeg[n.ID] == 0 {
			heap.Push(ready, n.index)
		}
	}

	order := make([]string, 0, len(f.steps))
	for ready.Len() > 0 {
		n := f.steps[heap.Pop(ready).(int)]
		order = append(order, n.ID)
		for _, dep := range f.dependents[n.ID] {
			indeg[dep]--
			if indeg[dep] == 0 {
				heap.Push(ready, f.byID[dep].index)
			}
		}
	}
	return order
}

// indexHeap is a min-heap of declaration indexes.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
