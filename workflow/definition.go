package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/finflow/retry"
	"github.com/BaSui01/finflow/types"
)

// FlowDefinition is the serializable shape of a flow graph. Handlers are
// referenced by step id and resolved through a HandlerRegistry on load.
type FlowDefinition struct {
	Name  string            `json:"name" yaml:"name"`
	State []FieldDefinition `json:"state,omitempty" yaml:"state,omitempty"`
	Steps []StepDefinition  `json:"steps" yaml:"steps"`
}

// FieldDefinition describes one state field.
type FieldDefinition struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Default any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// StepDefinition describes one step.
type StepDefinition struct {
	ID           string            `json:"id" yaml:"id"`
	Kind         StepKind          `json:"kind" yaml:"kind"`
	Combinator   Combinator        `json:"combinator,omitempty" yaml:"combinator,omitempty"`
	Predecessors []string          `json:"predecessors,omitempty" yaml:"predecessors,omitempty"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	Retry        *RetryDefinition  `json:"retry,omitempty" yaml:"retry,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// RetryDefinition is the serializable form of a retry policy.
type RetryDefinition struct {
	MaxAttempts int              `json:"max_attempts" yaml:"max_attempts"`
	Delay       string           `json:"delay,omitempty" yaml:"delay,omitempty"`
	Exhaustion  retry.Exhaustion `json:"exhaustion,omitempty" yaml:"exhaustion,omitempty"`
}

// Definition exports the flow graph.
func (f *Flow) Definition() *FlowDefinition {
	def := &FlowDefinition{Name: f.name}
	for _, fld := range f.schema.Fields() {
		def.State = append(def.State, FieldDefinition{
			Name:    fld.Name,
			Type:    fld.Type.String(),
			Default: fld.Default,
		})
	}
	for _, n := range f.steps {
		sd := StepDefinition{
			ID:           n.ID,
			Kind:         n.Kind,
			Combinator:   n.Combinator,
			Predecessors: append([]string(nil), n.Predecessors...),
			Description:  n.Description,
		}
		if n.Retry != nil {
			sd.Retry = &RetryDefinition{
				MaxAttempts: n.Retry.MaxAttempts,
				Delay:       n.Retry.Delay.String(),
				Exhaustion:  n.Retry.Exhaustion,
			}
		}
		def.Steps = append(def.Steps, sd)
	}
	return def
}

// ToJSON converts a FlowDefinition to JSON string
func (d *FlowDefinition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a FlowDefinition to YAML string
func (d *FlowDefinition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// ParseFlowDefinition decodes a definition, choosing the codec from format
// ("json" or "yaml").
func ParseFlowDefinition(data []byte, format string) (*FlowDefinition, error) {
	var def FlowDefinition
	var err error
	switch format {
	case "json":
		err = json.Unmarshal(data, &def)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &def)
	default:
		return nil, fmt.Errorf("unsupported definition format: %s", format)
	}
	if err != nil {
		return nil, types.NewGraphInvalid("malformed flow definition").WithCause(err)
	}
	return &def, nil
}

// LoadFlowDefinition reads a definition file; the extension selects the codec.
func LoadFlowDefinition(path string) (*FlowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow definition: %w", err)
	}
	ext := filepath.Ext(path)
	if ext != "" {
		ext = ext[1:]
	}
	return ParseFlowDefinition(data, ext)
}

// Save writes the definition to path; the extension selects the codec.
func (d *FlowDefinition) Save(path string) error {
	var (
		out string
		err error
	)
	switch filepath.Ext(path) {
	case ".json":
		out, err = d.ToJSON()
	default:
		out, err = d.ToYAML()
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(out), 0o644)
}

// HandlerRegistry maps step ids to handlers for rebuilding flows from
// definitions.
type HandlerRegistry map[string]StepHandler

// Build turns the definition into a validated Flow. State fields declared in
// the definition are registered as untyped fields with their defaults.
func (d *FlowDefinition) Build(handlers HandlerRegistry, fields ...FieldSpec) (*Flow, error) {
	b := NewFlowBuilder(d.Name)
	if len(fields) > 0 {
		b.WithState(fields...)
	} else {
		for _, fd := range d.State {
			b.WithState(Field[any](fd.Name, fd.Default))
		}
	}

	for _, sd := range d.Steps {
		h, ok := handlers[sd.ID]
		if !ok {
			return nil, types.NewConfiguration("no handler registered for step %q", sd.ID)
		}
		var sb *StepBuilder
		switch sd.Kind {
		case KindStart:
			sb = b.Start(sd.ID, h)
		case KindListen:
			sb = b.Listen(sd.ID, sd.Combinator, h, sd.Predecessors...)
		default:
			return nil, types.NewGraphInvalid("step %q has unknown kind %q", sd.ID, sd.Kind)
		}
		sb.WithDescription(sd.Description)
		if sd.Retry != nil {
			p, err := sd.Retry.policy()
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", sd.ID, err)
			}
			sb.WithRetry(p)
		}
	}
	return b.Build()
}

func (rd *RetryDefinition) policy() (*retry.RetryPolicy, error) {
	p := &retry.RetryPolicy{MaxAttempts: rd.MaxAttempts, Exhaustion: rd.Exhaustion}
	if rd.Delay != "" {
		d, err := time.ParseDuration(rd.Delay)
		if err != nil {
			return nil, types.NewConfiguration("invalid retry delay %q", rd.Delay).WithCause(err)
		}
		p.Delay = d
	}
	if p.Exhaustion == "" {
		p.Exhaustion = retry.ExhaustPropagate
	}
	return p, p.Validate()
}
