package prompts

import (
	"context"
	"fmt"

	"agentctl/internal/capability"
	"agentctl/internal/config"

	"github.com/mark3labs/mcp-go/mcp"
)

// ConfigProvider serves prompts defined directly in the configuration file.
type ConfigProvider struct {
	definitions map[string]config.PromptDefinition
	order       []string
}

// NewConfigProvider creates a provider over the given definitions. The
// definitions were validated at load time, so names are unique here.
func NewConfigProvider(definitions []config.PromptDefinition) *ConfigProvider {
	p := &ConfigProvider{definitions: make(map[string]config.PromptDefinition, len(definitions))}
	for _, def := range definitions {
		p.definitions[def.Name] = def
		p.order = append(p.order, def.Name)
	}
	return p
}

// Name implements Provider.
func (p *ConfigProvider) Name() string { return "config" }

// ListPrompts implements Provider.
func (p *ConfigProvider) ListPrompts(_ context.Context) ([]capability.PromptInfo, error) {
	result := make([]capability.PromptInfo, 0, len(p.order))
	for _, name := range p.order {
		def := p.definitions[name]
		result = append(result, capability.PromptInfo{
			Name:        def.Name,
			Title:       def.Title,
			Description: def.Description,
			Arguments:   def.Arguments,
			ServerName:  p.Name(),
		})
	}
	return result, nil
}

// GetPrompt implements Provider.
func (p *ConfigProvider) GetPrompt(_ context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	def, exists := p.definitions[name]
	if !exists {
		return nil, fmt.Errorf("%w: prompt %s", capability.ErrCapabilityNotFound, name)
	}

	rendered, err := renderTemplate(def.Template, def.Arguments, args)
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", name, err)
	}
	return textPromptResult(def.Description, rendered), nil
}
