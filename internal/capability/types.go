// Package capability defines the descriptor types and error taxonomy shared
// by the connection registry, the prompt registry, and their consumers. Each
// descriptor carries the owning server's name so entries can be located and
// purged precisely when a single server changes or disappears.
package capability

// Kind identifies one of the three capability kinds a server can advertise.
type Kind string

const (
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
	KindPrompt   Kind = "prompt"
)

// ToolInfo describes a callable tool in the merged view.
type ToolInfo struct {
	// Name is the name as advertised by the originating server.
	Name string
	// QualifiedID is the permanently prefixed identifier used for approval
	// and audit correlation. Stable across a session.
	QualifiedID string
	Description string
	// Parameters is the tool's input schema as a JSON-schema object,
	// normalized from the source's native schema form.
	Parameters map[string]interface{}
	// ServerName is the owning source; empty for locally-defined tools.
	ServerName string
}

// ResourceInfo describes a readable resource in the merged view.
type ResourceInfo struct {
	URI        string
	Summary    string
	ServerName string
}

// PromptArgument describes one argument a prompt template accepts.
type PromptArgument struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// PromptInfo describes a prompt template in the merged view.
type PromptInfo struct {
	Name        string
	Title       string
	Description string
	Arguments   []PromptArgument
	// ServerName is the originating source: an external server name, or a
	// local provider name such as "files", "config", or "user".
	ServerName string
}
