// Package conn owns one connection to one external capability server over
// one transport: a spawned subprocess speaking the protocol on its standard
// streams, or a streamable HTTP / SSE endpoint.
package conn

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// MCPClient defines the protocol operations a connection needs from its
// transport client. The production implementation wraps the mcp-go client;
// tests substitute fakes.
type MCPClient interface {
	// Initialize establishes the connection and performs the protocol
	// handshake.
	Initialize(ctx context.Context) error

	// Close cleanly shuts down the client connection.
	Close() error

	// ListTools returns all available tools from the server.
	ListTools(ctx context.Context) ([]mcp.Tool, error)

	// CallTool executes a specific tool and returns the result.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)

	// ListResources returns all available resources from the server.
	ListResources(ctx context.Context) ([]mcp.Resource, error)

	// ReadResource retrieves a specific resource.
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)

	// ListPrompts returns all available prompts from the server.
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)

	// GetPrompt renders a specific prompt.
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)

	// Ping checks if the server is responsive.
	Ping(ctx context.Context) error

	// OnNotification registers a handler for server-initiated notifications.
	OnNotification(handler func(notification mcp.JSONRPCNotification))
}

// State describes the lifecycle of a connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

// String makes State satisfy the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
