// Package events provides the typed notification channel connecting server
// connections, the connection registry, and the prompt registry. Producers
// publish events; consumers hold cancellable subscriptions so teardown does
// not leak handlers.
package events

import (
	"time"

	"agentctl/internal/capability"
)

// EventType identifies the kind of a registry event.
type EventType string

const (
	// TypeServerConnected is emitted after a connection attempt completes,
	// successfully or not.
	TypeServerConnected EventType = "server.connected"
	// TypeServerRemoved is emitted after a server is removed from the
	// registry and its cache entries purged.
	TypeServerRemoved EventType = "server.removed"
	// TypeServerUpdated is emitted after a server's cached capabilities
	// changed, whether through a full refresh or a surgical update.
	TypeServerUpdated EventType = "server.updated"
	// TypeCapabilityListChanged is emitted when a server notifies that one
	// of its capability lists changed. It drives the surgical update path.
	TypeCapabilityListChanged EventType = "capability.list_changed"
)

// Event is the interface satisfied by all registry events.
type Event interface {
	Type() EventType
	Server() string
	Timestamp() time.Time
}

type baseEvent struct {
	eventType EventType
	server    string
	timestamp time.Time
}

func (e baseEvent) Type() EventType      { return e.eventType }
func (e baseEvent) Server() string       { return e.server }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBase(t EventType, server string) baseEvent {
	return baseEvent{eventType: t, server: server, timestamp: time.Now()}
}

// ServerConnected reports the outcome of a connection attempt.
type ServerConnected struct {
	baseEvent
	Success bool
}

// NewServerConnected creates a ServerConnected event.
func NewServerConnected(server string, success bool) ServerConnected {
	return ServerConnected{baseEvent: newBase(TypeServerConnected, server), Success: success}
}

// ServerRemoved reports that a server was removed from the registry.
type ServerRemoved struct {
	baseEvent
}

// NewServerRemoved creates a ServerRemoved event.
func NewServerRemoved(server string) ServerRemoved {
	return ServerRemoved{baseEvent: newBase(TypeServerRemoved, server)}
}

// ServerUpdated reports that a server's cached capabilities changed.
type ServerUpdated struct {
	baseEvent
}

// NewServerUpdated creates a ServerUpdated event.
func NewServerUpdated(server string) ServerUpdated {
	return ServerUpdated{baseEvent: newBase(TypeServerUpdated, server)}
}

// CapabilityListChanged reports that a single server's list of one
// capability kind changed. Names carries the changed names when the server
// includes them in the notification; it may be empty.
type CapabilityListChanged struct {
	baseEvent
	Kind  capability.Kind
	Names []string
}

// NewCapabilityListChanged creates a CapabilityListChanged event.
func NewCapabilityListChanged(server string, kind capability.Kind, names []string) CapabilityListChanged {
	return CapabilityListChanged{
		baseEvent: newBase(TypeCapabilityListChanged, server),
		Kind:      kind,
		Names:     names,
	}
}

// FilterByType creates a filter that matches events of specific types.
func FilterByType(eventTypes ...EventType) Filter {
	typeMap := make(map[EventType]bool)
	for _, t := range eventTypes {
		typeMap[t] = true
	}

	return func(event Event) bool {
		return typeMap[event.Type()]
	}
}

// FilterByServer creates a filter that matches events from specific servers.
func FilterByServer(servers ...string) Filter {
	serverMap := make(map[string]bool)
	for _, s := range servers {
		serverMap[s] = true
	}

	return func(event Event) bool {
		return serverMap[event.Server()]
	}
}
