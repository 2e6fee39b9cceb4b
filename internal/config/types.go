// Package config defines agentctl's configuration model and layered loader.
// Configuration is consumed by the connection registry and prompt registry
// but owned here, including validation.
package config

import (
	"time"

	"agentctl/internal/capability"
)

// Transport selects how a server connection is established.
const (
	// TransportStdio spawns the server as a subprocess speaking the protocol
	// over its standard streams.
	TransportStdio = "stdio"
	// TransportHTTP connects to a streamable HTTP endpoint.
	TransportHTTP = "http"
	// TransportSSE connects to a Server-Sent Events endpoint.
	TransportSSE = "sse"
)

// Connection modes control how a failed handshake is treated.
const (
	// ConnectionModeStrict surfaces handshake failures to the caller.
	ConnectionModeStrict = "strict"
	// ConnectionModeLenient records the failure and continues without the
	// server.
	ConnectionModeLenient = "lenient"
)

// ServerDefinition describes one external capability server.
type ServerDefinition struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"`

	// Fields for Transport = "stdio".
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// Fields for Transport = "http" / "sse".
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`

	// Timeout is the default deadline for capability operations against
	// this server. Zero means DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// ConnectionMode is "strict" or "lenient". Empty means lenient.
	ConnectionMode string `yaml:"connectionMode,omitempty"`
}

// EffectiveTimeout returns the per-server timeout, falling back to the
// package default.
func (s ServerDefinition) EffectiveTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

// Strict reports whether handshake failures are fatal for this server.
func (s ServerDefinition) Strict() bool {
	return s.ConnectionMode == ConnectionModeStrict
}

// PromptDefinition describes a prompt template defined directly in
// configuration.
type PromptDefinition struct {
	Name        string                      `yaml:"name"`
	Title       string                      `yaml:"title,omitempty"`
	Description string                      `yaml:"description,omitempty"`
	Arguments   []capability.PromptArgument `yaml:"arguments,omitempty"`
	Template    string                      `yaml:"template"`
}

// GatewayConfig configures the endpoint re-exporting the merged view.
type GatewayConfig struct {
	Host string `yaml:"host,omitempty"` // default: localhost
	Port int    `yaml:"port,omitempty"` // default: 8090
}

// Config is the top-level configuration structure for agentctl.
type Config struct {
	Servers []ServerDefinition `yaml:"servers,omitempty"`
	Prompts []PromptDefinition `yaml:"prompts,omitempty"`
	// PromptsDir is scanned by the file prompt provider. Empty disables it.
	PromptsDir string `yaml:"promptsDir,omitempty"`
	// UserPromptsDir holds user-created prompts. Empty means the default
	// location under the user config directory.
	UserPromptsDir string        `yaml:"userPromptsDir,omitempty"`
	Gateway        GatewayConfig `yaml:"gateway,omitempty"`
}
