package config

import (
	"fmt"

	"agentctl/internal/capability"
)

// Validate checks the configuration for structural problems: missing
// required fields, unknown transports or modes, and duplicate identifiers.
// Conflicts are surfaced as explicit errors, never silently resolved.
func (c Config) Validate() error {
	seenServers := make(map[string]bool, len(c.Servers))
	for _, srv := range c.Servers {
		if err := srv.Validate(); err != nil {
			return err
		}
		if seenServers[srv.Name] {
			return fmt.Errorf("%w: server %q defined twice", capability.ErrDuplicateIdentifier, srv.Name)
		}
		seenServers[srv.Name] = true
	}

	seenPrompts := make(map[string]bool, len(c.Prompts))
	for _, p := range c.Prompts {
		if p.Name == "" {
			return fmt.Errorf("%w: prompt with empty name", capability.ErrInvalidConfiguration)
		}
		if p.Template == "" {
			return fmt.Errorf("%w: prompt %q has no template", capability.ErrInvalidConfiguration, p.Name)
		}
		if seenPrompts[p.Name] {
			return fmt.Errorf("%w: prompt %q defined twice", capability.ErrDuplicateIdentifier, p.Name)
		}
		seenPrompts[p.Name] = true
	}

	return nil
}

// Validate checks a single server definition.
func (s ServerDefinition) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: server with empty name", capability.ErrInvalidConfiguration)
	}

	switch s.Transport {
	case TransportStdio:
		if s.Command == "" {
			return fmt.Errorf("%w: server %q uses stdio transport but has no command", capability.ErrInvalidConfiguration, s.Name)
		}
	case TransportHTTP, TransportSSE:
		if s.URL == "" {
			return fmt.Errorf("%w: server %q uses %s transport but has no url", capability.ErrInvalidConfiguration, s.Name, s.Transport)
		}
	default:
		return fmt.Errorf("%w: server %q has unknown transport %q", capability.ErrInvalidConfiguration, s.Name, s.Transport)
	}

	switch s.ConnectionMode {
	case "", ConnectionModeStrict, ConnectionModeLenient:
	default:
		return fmt.Errorf("%w: server %q has unknown connectionMode %q", capability.ErrInvalidConfiguration, s.Name, s.ConnectionMode)
	}

	if s.Timeout < 0 {
		return fmt.Errorf("%w: server %q has negative timeout", capability.ErrInvalidConfiguration, s.Name)
	}

	return nil
}
