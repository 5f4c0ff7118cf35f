package workflow

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/BaSui01/finflow/types"
)

// Reducer defines how a field merges an update into its current value.
type Reducer[T any] func(current T, update T) T

// LastValueReducer returns the most recent value (default).
func LastValueReducer[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// AppendReducer appends slices together.
func AppendReducer[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		result = append(result, update...)
		return result
	}
}

// MergeMapReducer merges maps, with update values taking precedence.
func MergeMapReducer[K comparable, V any]() Reducer[map[K]V] {
	return func(current, update map[K]V) map[K]V {
		result := make(map[K]V, len(current)+len(update))
		for k, v := range current {
			result[k] = v
		}
		for k, v := range update {
			result[k] = v
		}
		return result
	}
}

// FieldSpec declares one named field of the flow state.
type FieldSpec struct {
	Name    string
	Default any
	Type    reflect.Type
	reduce  func(current, update any) any
}

// Field declares a typed state field with a default and optional reducer.
func Field[T any](name string, def T, reducer ...Reducer[T]) FieldSpec {
	r := LastValueReducer[T]()
	if len(reducer) > 0 && reducer[0] != nil {
		r = reducer[0]
	}
	return FieldSpec{
		Name:    name,
		Default: def,
		Type:    reflect.TypeOf((*T)(nil)).Elem(),
		reduce: func(current, update any) any {
			c, _ := current.(T)
			u, _ := update.(T)
			return r(c, u)
		},
	}
}

// StringField is shorthand for the common string field.
func StringField(name, def string) FieldSpec {
	return Field(name, def)
}

func (f FieldSpec) accepts(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).AssignableTo(f.Type)
}

// StateSchema is the ordered set of fields a flow declares.
type StateSchema struct {
	fields []FieldSpec
	index  map[string]int
}

// NewStateSchema builds a schema, rejecting duplicate or empty field names.
func NewStateSchema(fields ...FieldSpec) (*StateSchema, error) {
	s := &StateSchema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if f.Name == "" {
			return nil, types.NewConfiguration("state field name is empty")
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, types.NewConfiguration("duplicate state field %q", f.Name)
		}
		if f.reduce == nil {
			return nil, types.NewConfiguration("state field %q must be declared with Field", f.Name)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// Fields returns the declared fields in declaration order.
func (s *StateSchema) Fields() []FieldSpec {
	if s == nil {
		return nil
	}
	out := make([]FieldSpec, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *StateSchema) lookup(name string) (FieldSpec, bool) {
	if s == nil {
		return FieldSpec{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[i], true
}

// State is the shared mutable context of one flow run. All writes are
// serialized; a field's reducer runs under the write lock.
type State struct {
	schema   *StateSchema
	mu       sync.RWMutex
	values   map[string]any
	versions map[string]uint64
}

// NewState creates a state holding the schema defaults overlaid with initial.
func NewState(schema *StateSchema, initial map[string]any) (*State, error) {
	if schema == nil {
		schema, _ = NewStateSchema()
	}
	st := &State{
		schema:   schema,
		values:   make(map[string]any, len(schema.fields)),
		versions: make(map[string]uint64, len(schema.fields)),
	}
	for _, f := range schema.fields {
		st.values[f.Name] = f.Default
	}
	keys := make([]string, 0, len(initial))
	for k := range initial {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f, ok := schema.lookup(k)
		if !ok {
			return nil, types.NewConfiguration("initial state sets undeclared field %q", k)
		}
		if !f.accepts(initial[k]) {
			return nil, types.NewConfiguration("initial state field %q expects %s, got %T", k, f.Type, initial[k])
		}
		st.values[k] = initial[k]
	}
	return st, nil
}

// Get returns the current value of a field.
func (s *State) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// GetString returns a string field or "" when absent or of another type.
func (s *State) GetString(name string) string {
	v, _ := s.Get(name)
	str, _ := v.(string)
	return str
}

// Set applies a single update through the field's reducer.
func (s *State) Set(name string, value any) error {
	return s.Update(map[string]any{name: value})
}

// Update applies several updates atomically: either all fields change or none.
func (s *State) Update(updates map[string]any) error {
	for name, v := range updates {
		f, ok := s.schema.lookup(name)
		if !ok {
			return fmt.Errorf("state update: %w", types.NewConfiguration("undeclared field %q", name))
		}
		if !f.accepts(v) {
			return fmt.Errorf("state update: %w",
				types.NewConfiguration("field %q expects %s, got %T", name, f.Type, v))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, v := range updates {
		f, _ := s.schema.lookup(name)
		s.values[name] = f.reduce(s.values[name], v)
		s.versions[name]++
	}
	return nil
}

// Version returns how many times a field has been written.
func (s *State) Version(name string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[name]
}

// Snapshot copies the current field values.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Value reads a typed field.
func Value[T any](s *State, name string) (T, error) {
	var zero T
	v, ok := s.Get(name)
	if !ok {
		return zero, types.NewConfiguration("undeclared field %q", name)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("field %q holds %T", name, v)
	}
	return t, nil
}
