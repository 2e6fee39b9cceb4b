// Package prompts merges prompt templates from external protocol servers and
// local providers (file-based, configuration-defined, user-created) into one
// collision-free namespace with alias lookup.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"agentctl/internal/capability"

	"github.com/mark3labs/mcp-go/mcp"
)

// Provider is a source of prompt templates. Implementations are external
// protocol servers (through the connection registry), files on disk,
// configuration entries, and user-created templates.
type Provider interface {
	// Name identifies the provider; used as the collision source for
	// prompts that do not carry their own server name.
	Name() string

	// ListPrompts enumerates the provider's prompt descriptors.
	ListPrompts(ctx context.Context) ([]capability.PromptInfo, error)

	// GetPrompt renders the named prompt with the given arguments.
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
}

// renderTemplate substitutes {{arg}} placeholders and enforces required
// arguments.
func renderTemplate(template string, arguments []capability.PromptArgument, args map[string]string) (string, error) {
	for _, arg := range arguments {
		if _, provided := args[arg.Name]; arg.Required && !provided {
			return "", fmt.Errorf("missing required argument %q", arg.Name)
		}
	}

	rendered := template
	for name, value := range args {
		rendered = strings.ReplaceAll(rendered, "{{"+name+"}}", value)
	}
	return rendered, nil
}

// textPromptResult builds a single user-message prompt result from rendered
// text.
func textPromptResult(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(text),
			},
		},
	}
}
