package conn

import (
	"context"
	"fmt"

	"agentctl/internal/config"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ClientFactory builds a protocol client for a server definition. Swappable
// in tests.
type ClientFactory func(def config.ServerDefinition) (MCPClient, error)

// NewProtocolClient is the production ClientFactory: it constructs a client
// for the definition's transport. The transport is started here; the
// protocol handshake happens in Initialize.
func NewProtocolClient(def config.ServerDefinition) (MCPClient, error) {
	switch def.Transport {
	case config.TransportStdio:
		env := make([]string, 0, len(def.Env))
		for k, v := range def.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		stdioClient, err := client.NewStdioMCPClient(def.Command, env, def.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to spawn stdio client for %s: %w", def.Name, err)
		}
		return &protocolClient{name: def.Name, client: stdioClient, started: true}, nil

	case config.TransportHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(def.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(def.Headers))
		}
		httpClient, err := client.NewStreamableHttpClient(def.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create streamable-http client for %s: %w", def.Name, err)
		}
		return &protocolClient{name: def.Name, client: httpClient}, nil

	case config.TransportSSE:
		var opts []transport.ClientOption
		if len(def.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(def.Headers))
		}
		sseClient, err := client.NewSSEMCPClient(def.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSE client for %s: %w", def.Name, err)
		}
		return &protocolClient{name: def.Name, client: sseClient}, nil

	default:
		return nil, fmt.Errorf("unknown transport %q for server %s", def.Transport, def.Name)
	}
}

// protocolClient adapts the mcp-go client to the MCPClient interface.
type protocolClient struct {
	name    string
	client  *client.Client
	started bool
}

func (p *protocolClient) Initialize(ctx context.Context) error {
	if !p.started {
		if err := p.client.Start(ctx); err != nil {
			return fmt.Errorf("failed to start transport: %w", err)
		}
		p.started = true
	}

	req := mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "agentctl",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}

	if _, err := p.client.Initialize(ctx, req); err != nil {
		return fmt.Errorf("handshake with %s failed: %w", p.name, err)
	}
	return nil
}

func (p *protocolClient) Close() error {
	return p.client.Close()
}

func (p *protocolClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	result, err := p.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return result.Tools, nil
}

func (p *protocolClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      name,
			Arguments: args,
		},
	}
	return p.client.CallTool(ctx, req)
}

func (p *protocolClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	result, err := p.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, err
	}
	return result.Resources, nil
}

func (p *protocolClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	req := mcp.ReadResourceRequest{
		Params: struct {
			URI       string         `json:"uri"`
			Arguments map[string]any `json:"arguments,omitempty"`
		}{
			URI: uri,
		},
	}
	return p.client.ReadResource(ctx, req)
}

func (p *protocolClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	result, err := p.client.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, err
	}
	return result.Prompts, nil
}

func (p *protocolClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	req := mcp.GetPromptRequest{
		Params: struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments,omitempty"`
		}{
			Name:      name,
			Arguments: args,
		},
	}
	return p.client.GetPrompt(ctx, req)
}

func (p *protocolClient) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *protocolClient) OnNotification(handler func(notification mcp.JSONRPCNotification)) {
	p.client.OnNotification(handler)
}
