package gateway

import (
	"context"
	"fmt"
	"strings"

	"agentctl/internal/registry"
	"agentctl/internal/tools"

	"github.com/mark3labs/mcp-go/mcp"
)

// IntrospectionFactory provides local tools for inspecting the gateway's own
// merged view, so agent runtimes can discover backend state without a
// side channel.
type IntrospectionFactory struct {
	registry *registry.Registry
}

// NewIntrospectionFactory creates the factory over the given registry.
func NewIntrospectionFactory(reg *registry.Registry) *IntrospectionFactory {
	return &IntrospectionFactory{registry: reg}
}

// Name implements tools.Factory.
func (f *IntrospectionFactory) Name() string { return "introspection" }

// Tools implements tools.Factory.
func (f *IntrospectionFactory) Tools() []tools.LocalTool {
	return []tools.LocalTool{
		{
			Tool: mcp.NewTool("registry_servers",
				mcp.WithDescription("List the registered capability servers and their connection state"),
			),
			Handler: f.handleServers,
		},
		{
			Tool: mcp.NewTool("registry_tools",
				mcp.WithDescription("List the merged tool names with their owning server"),
			),
			Handler: f.handleTools,
		},
	}
}

func (f *IntrospectionFactory) handleServers(ctx context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
	names := f.registry.ServerNames()
	if len(names) == 0 {
		return mcp.NewToolResultText("No servers registered"), nil
	}

	var sb strings.Builder
	for _, name := range names {
		state := "disconnected"
		if connection, ok := f.registry.GetConnection(name); ok && connection.IsConnected() {
			state = "connected"
		}
		fmt.Fprintf(&sb, "%s: %s\n", name, state)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (f *IntrospectionFactory) handleTools(ctx context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
	infos, err := f.registry.GetAllTools(ctx)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return mcp.NewToolResultText("No tools available"), nil
	}

	var sb strings.Builder
	for _, info := range infos {
		fmt.Fprintf(&sb, "%s (%s) from %s\n", info.Name, info.QualifiedID, info.ServerName)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
