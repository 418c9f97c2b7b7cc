// Package registry is the tool catalogue: names, input schemas, whether a
// tool ends the agent step, and the handler that executes it.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"agentruntime/agent"

	"github.com/google/jsonschema-go/jsonschema"
)

var (
	// ErrToolUnregistered is returned when a call names an unknown tool.
	ErrToolUnregistered = errors.New("tool is not registered")
	// ErrToolNameEmpty marks a descriptor or call with no name.
	ErrToolNameEmpty = errors.New("tool name is empty")
	// ErrSchemaInvalid marks a tool input that fails schema validation.
	ErrSchemaInvalid = errors.New("tool input failed schema validation")
)

// HandlerKind distinguishes how a tool descriptor's effect is carried out.
type HandlerKind string

const (
	// HandlerKindNative runs entirely in-process: a pure function of input.
	HandlerKindNative HandlerKind = "native"
	// HandlerKindClientDelegated forwards the call to the host application
	// via ports.ToolClientPort and awaits its ToolOutput.
	HandlerKindClientDelegated HandlerKind = "client_delegated"
	// HandlerKindSpawning instantiates one or more child agents; its result
	// is the structured output(s) of those children.
	HandlerKindSpawning HandlerKind = "spawning"
)

// NativeHandler is a pure function of a validated tool call.
type NativeHandler func(ctx context.Context, call agent.ToolCall, runCtx agent.RunContext) (agent.ToolOutput, error)

// Descriptor is one catalogued tool.
type Descriptor struct {
	Name          string
	Description   string
	InputSchema   map[string]any
	EndsAgentStep bool
	Kind          HandlerKind
	Native        NativeHandler // populated iff Kind == HandlerKindNative

	compiledSchema *jsonschema.Resolved
}

// ToDefinition projects a Descriptor to the wire-facing ToolDefinition sent
// to the model.
func (d Descriptor) ToDefinition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:          d.Name,
		Description:   d.Description,
		InputSchema:   d.InputSchema,
		EndsAgentStep: d.EndsAgentStep,
	}
}

// Registry stores tool descriptors by name and validates/executes calls
// against them. A Registry is immutable after construction from the
// perspective of a single run; Register is used only during setup.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{descriptors: make(map[string]*Descriptor)}
}

// Register compiles the descriptor's input schema (if any) and adds it to
// the registry. It returns an error if the name is empty or the schema does
// not compile.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return ErrToolNameEmpty
	}
	if d.InputSchema != nil {
		compiled, err := compileSchema(d.InputSchema)
		if err != nil {
			return fmt.Errorf("%w: tool=%q: %v", ErrSchemaInvalid, d.Name, err)
		}
		d.compiledSchema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored := d
	r.descriptors[d.Name] = &stored
	return nil
}

// Lookup returns the descriptor for name, if registered.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}

// Definitions returns the wire ToolDefinition for every registered tool,
// restricted to names if non-empty (a template's toolNames allowlist).
func (r *Registry) Definitions(names []string) []agent.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		out := make([]agent.ToolDefinition, 0, len(r.descriptors))
		for _, d := range r.descriptors {
			out = append(out, d.ToDefinition())
		}
		return out
	}

	out := make([]agent.ToolDefinition, 0, len(names))
	for _, name := range names {
		if d, ok := r.descriptors[name]; ok {
			out = append(out, d.ToDefinition())
		}
	}
	return out
}

// ValidateInput validates call.Input against the descriptor's compiled input
// schema, if one was registered. A descriptor with no schema accepts any input.
func (r *Registry) ValidateInput(name string, input map[string]any) error {
	r.mu.RLock()
	d, ok := r.descriptors[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrToolUnregistered, name)
	}
	if d.compiledSchema == nil {
		return nil
	}
	if err := d.compiledSchema.Validate(input); err != nil {
		return fmt.Errorf("%w: tool=%q: %v", ErrSchemaInvalid, name, err)
	}
	return nil
}

func compileSchema(raw map[string]any) (*jsonschema.Resolved, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	schema := new(jsonschema.Schema)
	if err := json.Unmarshal(encoded, schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema.Resolve(nil)
}
