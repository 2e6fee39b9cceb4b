package conn

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentctl/internal/capability"
	"agentctl/internal/config"
	"agentctl/internal/events"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient implements MCPClient in memory.
type fakeClient struct {
	initializeErr error
	callToolDelay time.Duration
	tools         []mcp.Tool
	closed        bool
	notify        func(mcp.JSONRPCNotification)
}

func (f *fakeClient) Initialize(_ context.Context) error { return f.initializeErr }

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func (f *fakeClient) ListTools(_ context.Context) ([]mcp.Tool, error) { return f.tools, nil }

func (f *fakeClient) CallTool(ctx context.Context, name string, _ map[string]interface{}) (*mcp.CallToolResult, error) {
	if f.callToolDelay > 0 {
		select {
		case <-time.After(f.callToolDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return mcp.NewToolResultText("called " + name), nil
}

func (f *fakeClient) ListResources(_ context.Context) ([]mcp.Resource, error) { return nil, nil }

func (f *fakeClient) ReadResource(_ context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}

func (f *fakeClient) ListPrompts(_ context.Context) ([]mcp.Prompt, error) { return nil, nil }

func (f *fakeClient) GetPrompt(_ context.Context, name string, _ map[string]string) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{Description: name}, nil
}

func (f *fakeClient) Ping(_ context.Context) error { return nil }

func (f *fakeClient) OnNotification(handler func(mcp.JSONRPCNotification)) {
	f.notify = handler
}

func fakeFactory(client *fakeClient, err error) ClientFactory {
	return func(_ config.ServerDefinition) (MCPClient, error) {
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func strictDef(name string) config.ServerDefinition {
	return config.ServerDefinition{
		Name:           name,
		Transport:      config.TransportStdio,
		Command:        "fake",
		ConnectionMode: config.ConnectionModeStrict,
	}
}

func lenientDef(name string) config.ServerDefinition {
	def := strictDef(name)
	def.ConnectionMode = config.ConnectionModeLenient
	return def
}

func TestConnect_Success(t *testing.T) {
	client := &fakeClient{}
	c := New(strictDef("serverA"), events.NewBus(), WithClientFactory(fakeFactory(client, nil)))

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())
	assert.True(t, c.IsConnected())
	assert.NotNil(t, client.notify, "notification handler registered on connect")
}

func TestConnect_StrictFailureReturnsError(t *testing.T) {
	c := New(strictDef("serverA"), events.NewBus(),
		WithClientFactory(fakeFactory(nil, errors.New("spawn failed"))))

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, capability.ErrConnectionFailed)
	assert.Equal(t, StateFailed, c.State())
}

func TestConnect_LenientFailureReturnsNil(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.FilterByType(events.TypeServerConnected), 4)
	defer bus.Unsubscribe(sub)

	c := New(lenientDef("serverA"), bus,
		WithClientFactory(fakeFactory(nil, errors.New("spawn failed"))))

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateFailed, c.State())
	assert.False(t, c.IsConnected())

	// The failed attempt is still reported on the bus.
	select {
	case event := <-sub.Events():
		connected, ok := event.(events.ServerConnected)
		require.True(t, ok)
		assert.False(t, connected.Success)
	case <-time.After(time.Second):
		t.Fatal("expected a ServerConnected event")
	}
}

func TestConnect_HandshakeFailureClosesClient(t *testing.T) {
	client := &fakeClient{initializeErr: errors.New("handshake rejected")}
	c := New(lenientDef("serverA"), events.NewBus(), WithClientFactory(fakeFactory(client, nil)))

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, client.closed, "transport resources released on failed handshake")
}

func TestCallTool_TimeoutMapsToErrTimeout(t *testing.T) {
	client := &fakeClient{callToolDelay: 200 * time.Millisecond}
	c := New(strictDef("serverA"), events.NewBus(), WithClientFactory(fakeFactory(client, nil)))
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.CallTool(context.Background(), "slow", nil, 10*time.Millisecond)
	assert.ErrorIs(t, err, capability.ErrTimeout)
	assert.True(t, capability.IsTimeout(err))

	// The timeout fails the call, not the connection.
	assert.True(t, c.IsConnected())
	result, err := c.CallTool(context.Background(), "fast", nil, time.Second)
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestOperations_NotConnectedReturnNotFound(t *testing.T) {
	c := New(strictDef("serverA"), events.NewBus())

	_, err := c.ListTools(context.Background())
	assert.ErrorIs(t, err, capability.ErrCapabilityNotFound)
	_, err = c.CallTool(context.Background(), "x", nil, 0)
	assert.ErrorIs(t, err, capability.ErrCapabilityNotFound)
}

func TestDisconnect_IdempotentAndNeverConnected(t *testing.T) {
	c := New(strictDef("serverA"), events.NewBus())
	assert.NoError(t, c.Disconnect())
	assert.NoError(t, c.Disconnect())

	client := &fakeClient{}
	c = New(strictDef("serverA"), events.NewBus(), WithClientFactory(fakeFactory(client, nil)))
	require.NoError(t, c.Connect(context.Background()))
	assert.NoError(t, c.Disconnect())
	assert.True(t, client.closed)
	assert.NoError(t, c.Disconnect(), "second disconnect is a no-op")
	assert.Equal(t, StateDisconnected, c.State())
}

func TestNotifications_TranslateToCapabilityChangeEvents(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.FilterByType(events.TypeCapabilityListChanged), 8)
	defer bus.Unsubscribe(sub)

	client := &fakeClient{}
	c := New(strictDef("serverA"), bus, WithClientFactory(fakeFactory(client, nil)))
	require.NoError(t, c.Connect(context.Background()))
	require.NotNil(t, client.notify)

	tests := []struct {
		method string
		kind   capability.Kind
	}{
		{"notifications/tools/list_changed", capability.KindTool},
		{"notifications/resources/list_changed", capability.KindResource},
		{"notifications/prompts/list_changed", capability.KindPrompt},
	}
	for _, tc := range tests {
		notification := mcp.JSONRPCNotification{}
		notification.Method = tc.method
		client.notify(notification)

		select {
		case event := <-sub.Events():
			changed, ok := event.(events.CapabilityListChanged)
			require.True(t, ok)
			assert.Equal(t, "serverA", changed.Server())
			assert.Equal(t, tc.kind, changed.Kind)
		case <-time.After(time.Second):
			t.Fatalf("expected event for %s", tc.method)
		}
	}

	// Unrelated notifications are ignored.
	other := mcp.JSONRPCNotification{}
	other.Method = "notifications/progress"
	client.notify(other)
	select {
	case event := <-sub.Events():
		t.Fatalf("unexpected event: %v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}
