package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"devassist/internal/apperr"
)

// ToolSpec documents a tool's contract (name + parameter schema).
type ToolSpec struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"input_schema,omitempty"`
}

// Tool is a minimal in-process MCP-style tool.
type Tool interface {
	Spec() ToolSpec
	Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

type registered struct {
	tool     Tool
	spec     ToolSpec
	resolved *jsonschema.Resolved
}

// Registry holds tool registrations and dispatches calls.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

// NewRegistry creates an empty registry and registers any provided tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: map[string]registered{}}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a tool by name. The input schema is resolved
// once here and reused for every call.
func (r *Registry) Register(t Tool) error {
	if r == nil || t == nil {
		return fmt.Errorf("mcp: nil registry or tool")
	}
	spec := t.Spec()
	if spec.Name == "" {
		return fmt.Errorf("mcp: tool has no name")
	}
	reg := registered{tool: t, spec: spec}
	if spec.InputSchema != nil {
		res, err := spec.InputSchema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("mcp: schema for %q: %w", spec.Name, err)
		}
		reg.resolved = res
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = map[string]registered{}
	}
	r.tools[spec.Name] = reg
	return nil
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg.tool, ok
}

// Call validates input against the tool's schema and invokes it.
// Errors carry apperr codes: TOOL_NOT_FOUND, MALFORMED_ARGUMENTS, or the
// tool's own code (TOOL_INVOCATION_ERROR when it has none).
func (r *Registry) Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	if r == nil {
		return nil, fmt.Errorf("mcp: registry is nil")
	}
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.ToolNotFound, "unknown tool %q", name)
	}
	if len(input) == 0 || string(input) == "null" {
		input = json.RawMessage("{}")
	}
	if err := validate(reg.resolved, input); err != nil {
		return nil, err
	}
	out, err := invokeTool(ctx, reg.tool, input)
	if err != nil {
		if apperr.CodeOf(err) == "" {
			return nil, apperr.Wrap(apperr.ToolInvocation, err, "%s failed", name)
		}
		return nil, err
	}
	return out, nil
}

// invokeTool turns a panicking tool into a TOOL_INVOCATION_ERROR.
func invokeTool(ctx context.Context, t Tool, input json.RawMessage) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, apperr.New(apperr.ToolInvocation, "%s panicked: %v", t.Spec().Name, r)
		}
	}()
	return t.Call(ctx, input)
}

func validate(res *jsonschema.Resolved, input json.RawMessage) error {
	var instance any
	if err := json.Unmarshal(input, &instance); err != nil {
		return apperr.Wrap(apperr.MalformedArguments, err, "arguments are not valid JSON")
	}
	if _, ok := instance.(map[string]any); !ok {
		return apperr.New(apperr.MalformedArguments, "arguments must be a JSON object")
	}
	if res == nil {
		return nil
	}
	if err := res.Validate(instance); err != nil {
		return apperr.Wrap(apperr.MalformedArguments, err, "invalid arguments")
	}
	return nil
}

// Specs returns the current tool specs sorted by name.
func (r *Registry) Specs() []ToolSpec {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]ToolSpec, 0, len(r.tools))
	for _, reg := range r.tools {
		out = append(out, reg.spec)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// decode unmarshals tool input, mapping failures to MALFORMED_ARGUMENTS.
func decode(input json.RawMessage, v any) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return apperr.Wrap(apperr.MalformedArguments, err, "cannot decode arguments")
	}
	return nil
}
