// Package tools implements the assistant's callable tools and the dispatch
// layer that routes model-requested tool calls to them.
//
// Each tool declares a name, a one-line description, and a JSON Schema for
// its parameters; the schema set is offered to the model on every completion.
// Registration is explicit so the registry stays debuggable and predictable.
package tools

import (
	"context"

	"github.com/echohall/voicegate/pkg/provider/llm"
)

// Tool is one callable capability. Execute returns the tool-role message
// content; errors are turned into error strings by the dispatcher, never
// surfaced to the caller.
type Tool interface {
	// Name is the identifier used in function calls, e.g. "web_search".
	Name() string

	// Description is the one-line summary shown to the model.
	Description() string

	// Schema is the JSON Schema for the tool's parameters.
	Schema() map[string]any

	// Execute runs the tool with already-decoded arguments.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the registered tools in registration order.
type Registry struct {
	tools  []Tool
	byName map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name replaces the earlier
// entry in the lookup but keeps registration order for Definitions.
func (r *Registry) Register(t Tool) {
	if _, exists := r.byName[t.Name()]; !exists {
		r.tools = append(r.tools, t)
	}
	r.byName[t.Name()] = t
}

// Get looks up a tool by name. Returns nil when not found.
func (r *Registry) Get(name string) Tool {
	return r.byName[name]
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Name())
	}
	return out
}

// Definitions returns the tool definitions offered to the model.
func (r *Registry) Definitions() []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return out
}

// DefaultRegistry builds the standard tool set: web search plus the stub
// calendar and notes tools.
func DefaultRegistry(search *WebSearch) *Registry {
	r := NewRegistry()
	r.Register(search)
	r.Register(&Calendar{})
	r.Register(&Notes{})
	return r
}
