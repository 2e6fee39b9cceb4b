package prompts

import (
	"context"
	"time"

	"agentctl/internal/capability"
	"agentctl/internal/config"
	"agentctl/internal/registry"

	"github.com/mark3labs/mcp-go/mcp"
)

// ServerProvider adapts the connection registry's cached prompt metadata to
// the Provider interface, so external server prompts merge alongside local
// ones. The descriptors it lists keep their originating server name, which
// becomes the collision identity in the merged namespace.
type ServerProvider struct {
	registry *registry.Registry
	timeout  time.Duration
}

// NewServerProvider wraps the connection registry. timeout bounds each
// render call; zero means the default.
func NewServerProvider(reg *registry.Registry, timeout time.Duration) *ServerProvider {
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	return &ServerProvider{registry: reg, timeout: timeout}
}

// Name implements Provider.
func (p *ServerProvider) Name() string { return "servers" }

// ListPrompts implements Provider.
func (p *ServerProvider) ListPrompts(ctx context.Context) ([]capability.PromptInfo, error) {
	return p.registry.GetAllPromptMetadata(ctx)
}

// GetPrompt implements Provider. name may be bare or the qualified
// "server:name" spelling; the registry routes either to the owning server.
func (p *ServerProvider) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	return p.registry.GetPrompt(ctx, name, args, p.timeout)
}
