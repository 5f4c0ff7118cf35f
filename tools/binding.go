package tools

import (
	"context"
	"sync"

	"github.com/BaSui01/finflow/agent/artifacts"
)

// OutputSlot collects what a task's file writer produced. The crew commits
// the slot to the artifact store after the worker returns; tools never write
// the store themselves.
type OutputSlot struct {
	Locator string
	Kind    artifacts.ContentKind

	mu      sync.Mutex
	content []byte
	writes  int
}

// NewOutputSlot creates a slot bound to one locator.
func NewOutputSlot(locator string, kind artifacts.ContentKind) *OutputSlot {
	return &OutputSlot{Locator: locator, Kind: kind}
}

// Put replaces the slot content.
func (s *OutputSlot) Put(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = append([]byte(nil), data...)
	s.writes++
}

// Content returns the last written content and whether anything was written.
func (s *OutputSlot) Content() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.content...), s.writes > 0
}

// Binding is the per-task view tools get of the artifact layer.
type Binding struct {
	Task     string
	Output   *OutputSlot
	Store    artifacts.Store
	Readable map[string]bool // normalized locators of completed dependencies
}

// CanRead reports whether locator belongs to a completed dependency.
func (b *Binding) CanRead(locator string) bool {
	if b == nil {
		return false
	}
	loc, err := artifacts.NormalizeLocator(locator)
	if err != nil {
		return false
	}
	return b.Readable[loc]
}

type bindingKey struct{}

// WithBinding attaches the task binding to ctx.
func WithBinding(ctx context.Context, b *Binding) context.Context {
	return context.WithValue(ctx, bindingKey{}, b)
}

// BindingFrom extracts the task binding from ctx.
func BindingFrom(ctx context.Context) (*Binding, bool) {
	b, ok := ctx.Value(bindingKey{}).(*Binding)
	return b, ok && b != nil
}
