package registry

import (
	"context"
	"testing"
	"time"

	"agentctl/internal/capability"
	"agentctl/internal/events"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_AppliesCapabilityChanges(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	reg := New(bus)
	conn := newFakeConn("serverA", tool("search"))
	reg.RegisterClient("serverA", conn)

	ctx := context.Background()
	toolList, err := reg.GetAllTools(ctx)
	require.NoError(t, err)
	require.Len(t, toolList, 1)

	w := NewWatcher(reg, bus)
	w.Start(ctx)
	defer w.Stop()
	require.True(t, w.IsRunning())

	// The server grows a tool and notifies; the watcher should re-query
	// that server and fold the new tool in.
	conn.mu.Lock()
	conn.tools = append(conn.tools, tool("fetch"))
	conn.mu.Unlock()

	bus.Publish(events.NewCapabilityListChanged("serverA", capability.KindTool, nil))

	require.Eventually(t, func() bool {
		toolList, err := reg.GetAllTools(ctx)
		return err == nil && len(toolList) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestWatcher_IgnoresUnknownServers(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	reg := New(bus)
	conn := newFakeConn("serverA", tool("search"))
	reg.RegisterClient("serverA", conn)

	ctx := context.Background()
	_, err := reg.GetAllTools(ctx)
	require.NoError(t, err)
	before := conn.toolQueries()

	w := NewWatcher(reg, bus)
	w.Start(ctx)
	defer w.Stop()

	bus.Publish(events.NewCapabilityListChanged("ghost", capability.KindTool, nil))

	// Give the watcher a moment to consume the event; nothing registered
	// should be touched.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, conn.toolQueries())

	toolList, err := reg.GetAllTools(ctx)
	require.NoError(t, err)
	assert.Len(t, toolList, 1)
}

func TestWatcher_StartIsIdempotentAndStopWaits(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	reg := New(bus)
	w := NewWatcher(reg, bus)

	ctx := context.Background()
	w.Start(ctx)
	w.Start(ctx)
	require.True(t, w.IsRunning())

	w.Stop()
	assert.False(t, w.IsRunning())

	// Stopping again is a no-op.
	w.Stop()

	// Restart after stop works.
	w.Start(ctx)
	assert.True(t, w.IsRunning())
	w.Stop()
}

func TestWatcher_OnlyNamedKindRefetched(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	reg := New(bus)
	conn := newFakeConn("serverA", tool("search"))
	conn.resources = []mcp.Resource{{URI: "file:///a.txt"}}
	reg.RegisterClient("serverA", conn)

	ctx := context.Background()
	_, err := reg.GetAllTools(ctx)
	require.NoError(t, err)

	toolsBefore := conn.toolQueries()
	conn.mu.Lock()
	resourcesBefore := conn.listResourcesCalls
	conn.mu.Unlock()

	w := NewWatcher(reg, bus)
	w.Start(ctx)
	defer w.Stop()

	conn.mu.Lock()
	conn.resources = append(conn.resources, mcp.Resource{URI: "file:///b.txt"})
	conn.mu.Unlock()

	bus.Publish(events.NewCapabilityListChanged("serverA", capability.KindResource, nil))

	require.Eventually(t, func() bool {
		resources, err := reg.ListAllResources(ctx)
		return err == nil && len(resources) == 2
	}, time.Second, 5*time.Millisecond)

	conn.mu.Lock()
	resourcesAfter := conn.listResourcesCalls
	conn.mu.Unlock()
	assert.Greater(t, resourcesAfter, resourcesBefore)
	assert.Equal(t, toolsBefore, conn.toolQueries(), "a resource change must not re-list tools")
}
