package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agentctl/internal/capability"
	"agentctl/internal/config"
	"agentctl/internal/events"
	"agentctl/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// Connection represents one connection to one external capability server.
// It owns the connection state machine and translates server-initiated
// list-changed notifications into registry events.
type Connection struct {
	def     config.ServerDefinition
	bus     *events.Bus
	factory ClientFactory

	mu     sync.RWMutex
	state  State
	client MCPClient
}

// Option customizes a Connection.
type Option func(*Connection)

// WithClientFactory overrides how the protocol client is built. Used by
// tests to substitute fakes.
func WithClientFactory(factory ClientFactory) Option {
	return func(c *Connection) {
		c.factory = factory
	}
}

// New creates a connection for the given server definition. The connection
// starts disconnected; call Connect to establish it.
func New(def config.ServerDefinition, bus *events.Bus, opts ...Option) *Connection {
	c := &Connection{
		def:     def,
		bus:     bus,
		factory: NewProtocolClient,
		state:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the server name this connection is registered under.
func (c *Connection) Name() string {
	return c.def.Name
}

// State returns the current connection state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the connection is established.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect establishes the transport and performs the protocol handshake.
// In strict mode a failure is returned to the caller; in lenient mode it is
// recorded as a failed connection, logged, and nil is returned so the caller
// continues without this server. Either way a ServerConnected event is
// published with the outcome.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	err := c.establish(ctx)
	if err == nil {
		c.publish(events.NewServerConnected(c.def.Name, true))
		logging.Info("Connection", "Connected to server %s (%s)", c.def.Name, c.def.Transport)
		return nil
	}

	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
	c.publish(events.NewServerConnected(c.def.Name, false))

	wrapped := fmt.Errorf("%w: server %s: %v", capability.ErrConnectionFailed, c.def.Name, err)
	if c.def.Strict() {
		return wrapped
	}

	logging.Warn("Connection", "Server %s unavailable, continuing without it: %v", c.def.Name, err)
	return nil
}

func (c *Connection) establish(ctx context.Context) error {
	client, err := c.factory(c.def)
	if err != nil {
		return err
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, c.def.EffectiveTimeout())
	defer cancel()

	if err := client.Initialize(handshakeCtx); err != nil {
		// The transport may hold resources (a spawned process) even though
		// the handshake failed.
		if closeErr := client.Close(); closeErr != nil {
			logging.Debug("Connection", "Error closing failed client for %s: %v", c.def.Name, closeErr)
		}
		return err
	}

	client.OnNotification(c.handleNotification)

	c.mu.Lock()
	c.client = client
	c.state = StateConnected
	c.mu.Unlock()
	return nil
}

// handleNotification translates protocol list-changed notifications into
// capability-changed events scoped to this server.
func (c *Connection) handleNotification(notification mcp.JSONRPCNotification) {
	var kind capability.Kind
	switch notification.Method {
	case "notifications/tools/list_changed":
		kind = capability.KindTool
	case "notifications/resources/list_changed":
		kind = capability.KindResource
	case "notifications/prompts/list_changed":
		kind = capability.KindPrompt
	default:
		return
	}
	c.publish(events.NewCapabilityListChanged(c.def.Name, kind, nil))
}

func (c *Connection) publish(event events.Event) {
	if c.bus != nil {
		c.bus.Publish(event)
	}
}

// currentClient returns the live client or a not-found error shaped exactly
// like an unknown-capability error, so callers need not know why a
// capability is absent.
func (c *Connection) currentClient() (MCPClient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateConnected || c.client == nil {
		return nil, fmt.Errorf("%w: server %s is not connected", capability.ErrCapabilityNotFound, c.def.Name)
	}
	return c.client, nil
}

// ListTools enumerates the server's tools.
func (c *Connection) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	client, err := c.currentClient()
	if err != nil {
		return nil, err
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		return nil, c.mapErr(err)
	}
	return tools, nil
}

// ListResources enumerates the server's resources.
func (c *Connection) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	client, err := c.currentClient()
	if err != nil {
		return nil, err
	}
	resources, err := client.ListResources(ctx)
	if err != nil {
		return nil, c.mapErr(err)
	}
	return resources, nil
}

// ListPrompts enumerates the server's prompts.
func (c *Connection) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	client, err := c.currentClient()
	if err != nil {
		return nil, err
	}
	prompts, err := client.ListPrompts(ctx)
	if err != nil {
		return nil, c.mapErr(err)
	}
	return prompts, nil
}

// CallTool forwards a tool invocation with a per-call timeout. Exceeding the
// timeout fails this call with ErrTimeout; the connection stays up.
func (c *Connection) CallTool(ctx context.Context, name string, args map[string]interface{}, timeout time.Duration) (*mcp.CallToolResult, error) {
	client, err := c.currentClient()
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.withTimeout(ctx, timeout)
	defer cancel()

	result, err := client.CallTool(callCtx, name, args)
	if err != nil {
		return nil, c.mapErr(err)
	}
	return result, nil
}

// ReadResource reads a resource with a per-call timeout.
func (c *Connection) ReadResource(ctx context.Context, uri string, timeout time.Duration) (*mcp.ReadResourceResult, error) {
	client, err := c.currentClient()
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.withTimeout(ctx, timeout)
	defer cancel()

	result, err := client.ReadResource(callCtx, uri)
	if err != nil {
		return nil, c.mapErr(err)
	}
	return result, nil
}

// GetPrompt renders a prompt with a per-call timeout.
func (c *Connection) GetPrompt(ctx context.Context, name string, args map[string]string, timeout time.Duration) (*mcp.GetPromptResult, error) {
	client, err := c.currentClient()
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.withTimeout(ctx, timeout)
	defer cancel()

	result, err := client.GetPrompt(callCtx, name, args)
	if err != nil {
		return nil, c.mapErr(err)
	}
	return result, nil
}

// Disconnect releases the transport. It is idempotent and never returns an
// error for a connection that never fully connected.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("error disconnecting from %s: %w", c.def.Name, err)
	}
	return nil
}

func (c *Connection) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = c.def.EffectiveTimeout()
	}
	return context.WithTimeout(ctx, timeout)
}

// mapErr distinguishes per-call deadline errors from other failures so
// callers can rely on the Timeout error kind.
func (c *Connection) mapErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: server %s: %v", capability.ErrTimeout, c.def.Name, err)
	}
	return err
}
