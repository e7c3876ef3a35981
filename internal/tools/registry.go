// Package tools provides the tool interface, a thread-safe registry, and
// the built-in tools exposed to the execution engine.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is a capability the engine can invoke during a run.
type Tool interface {
	// Name returns the unique tool identifier.
	Name() string

	// Description explains the tool to the model.
	Description() string

	// Schema returns the JSON schema for the tool's input parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given JSON parameters.
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is the outcome of a tool execution. Content is the raw value
// handed back to the model and the streaming layer; it may be JSON or
// plain text.
type Result struct {
	Content string
	IsError bool
}

// Tool parameter limits to prevent resource exhaustion
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

// Registry manages available tools with thread-safe registration and lookup.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry by its name, compiling its input
// schema for validation. If a tool with the same name already exists, it
// is replaced.
func (r *Registry) Register(tool Tool) error {
	compiled, err := compileSchema(tool.Name(), tool.Schema())
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", tool.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.schemas[tool.Name()] = compiled
	return nil
}

// Get returns a tool by name and a boolean indicating if it was found.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Execute runs a tool by name with the given JSON parameters, validating
// them against the tool's schema first. Lookup and validation failures
// come back as error results rather than Go errors so the engine can feed
// them to the model.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*Result, error) {
	if len(name) > MaxToolNameLength {
		return &Result{
			Content: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength),
			IsError: true,
		}, nil
	}
	if len(params) > MaxToolParamsSize {
		return &Result{
			Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize),
			IsError: true,
		}, nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return &Result{
			Content: "tool not found: " + name,
			IsError: true,
		}, nil
	}

	if schema != nil {
		if len(params) == 0 {
			params = json.RawMessage("{}")
		}
		var doc any
		if err := json.Unmarshal(params, &doc); err != nil {
			return &Result{
				Content: fmt.Sprintf("invalid tool parameters: %v", err),
				IsError: true,
			}, nil
		}
		if err := schema.Validate(doc); err != nil {
			return &Result{
				Content: fmt.Sprintf("tool parameters failed validation: %v", err),
				IsError: true,
			}, nil
		}
	}

	return tool.Execute(ctx, params)
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	url := "tool://" + name + "/schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
