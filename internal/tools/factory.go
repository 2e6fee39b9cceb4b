package tools

import (
	"context"

	"agentctl/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handler executes a locally-defined tool.
type Handler func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)

// LocalTool pairs a tool definition with its handler. The ID field is the
// qualified identifier the tool is registered under.
type LocalTool struct {
	ID      string
	Tool    mcp.Tool
	Handler Handler
}

// Factory produces locally-defined tools. Implementations return fully
// described mcp.Tool values; the registry qualifies and deduplicates them.
type Factory interface {
	// Name identifies the factory in logs and warnings.
	Name() string
	// Tools returns the tools this factory provides.
	Tools() []LocalTool
}

// Registry collects local tools from factories under stable qualified IDs.
// When two factories mint the same qualified ID the duplicate is dropped
// with a warning rather than rekeyed: identifiers must stay stable for
// approval and audit correlation, so there is no aliasing escape hatch here.
type Registry struct {
	byID  map[string]LocalTool
	order []string
}

// NewRegistry creates an empty local tool registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]LocalTool)}
}

// AddFactory registers every tool a factory provides. Returns the number of
// tools actually added.
func (r *Registry) AddFactory(factory Factory) int {
	added := 0
	for _, lt := range factory.Tools() {
		id := lt.ID
		if id == "" {
			id = QualifyID(MarkerLocal, lt.Tool.Name)
		} else {
			id = QualifyID(MarkerLocal, id)
		}

		if _, exists := r.byID[id]; exists {
			logging.Warn("Tools", "Dropping duplicate tool %s from factory %s", id, factory.Name())
			continue
		}

		lt.ID = id
		lt.Tool.Name = id
		r.byID[id] = lt
		r.order = append(r.order, id)
		added++
	}
	return added
}

// Get returns the tool registered under the qualified ID.
func (r *Registry) Get(id string) (LocalTool, bool) {
	lt, ok := r.byID[id]
	return lt, ok
}

// All returns the registered tools in registration order.
func (r *Registry) All() []LocalTool {
	result := make([]LocalTool, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.byID[id])
	}
	return result
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.byID)
}
