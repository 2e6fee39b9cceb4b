package tools

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFactory struct {
	name  string
	tools []LocalTool
}

func (f *stubFactory) Name() string       { return f.name }
func (f *stubFactory) Tools() []LocalTool { return f.tools }

func noopHandler(_ context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText("ok"), nil
}

func TestAddFactory_QualifiesToolIDs(t *testing.T) {
	reg := NewRegistry()
	added := reg.AddFactory(&stubFactory{
		name: "builtin",
		tools: []LocalTool{
			{Tool: mcp.Tool{Name: "scratchpad"}, Handler: noopHandler},
			{ID: "notes", Tool: mcp.Tool{Name: "notes"}, Handler: noopHandler},
		},
	})
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, reg.Len())

	lt, ok := reg.Get("local__scratchpad")
	require.True(t, ok)
	assert.Equal(t, "local__scratchpad", lt.Tool.Name, "exposed tool name carries the qualified ID")

	_, ok = reg.Get("local__notes")
	assert.True(t, ok)
	_, ok = reg.Get("scratchpad")
	assert.False(t, ok, "bare names are not registered")
}

func TestAddFactory_DuplicateIDsDroppedNotRekeyed(t *testing.T) {
	reg := NewRegistry()
	reg.AddFactory(&stubFactory{
		name:  "first",
		tools: []LocalTool{{Tool: mcp.Tool{Name: "scratchpad", Description: "kept"}, Handler: noopHandler}},
	})
	added := reg.AddFactory(&stubFactory{
		name:  "second",
		tools: []LocalTool{{Tool: mcp.Tool{Name: "scratchpad", Description: "dropped"}, Handler: noopHandler}},
	})

	assert.Equal(t, 0, added)
	assert.Equal(t, 1, reg.Len())

	lt, ok := reg.Get("local__scratchpad")
	require.True(t, ok)
	assert.Equal(t, "kept", lt.Tool.Description, "first registration wins, no rekeying")
}

func TestAll_PreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.AddFactory(&stubFactory{
		name: "builtin",
		tools: []LocalTool{
			{Tool: mcp.Tool{Name: "zeta"}, Handler: noopHandler},
			{Tool: mcp.Tool{Name: "alpha"}, Handler: noopHandler},
		},
	})

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "local__zeta", all[0].ID)
	assert.Equal(t, "local__alpha", all[1].ID)
}
