// Package gateway re-exports the merged capability view as an MCP server
// over streamable HTTP. Tools, resources, and prompts are added and removed
// dynamically as backend servers churn, driven by the event bus.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"agentctl/internal/config"
	"agentctl/internal/events"
	"agentctl/internal/prompts"
	"agentctl/internal/registry"
	"agentctl/internal/tools"
	"agentctl/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Gateway serves the merged view of every registered backend plus local
// tools and prompt providers on one MCP endpoint.
type Gateway struct {
	cfg            config.GatewayConfig
	registry       *registry.Registry
	promptRegistry *prompts.Registry
	localTools     *tools.Registry
	bus            *events.Bus

	mu         sync.Mutex
	server     *server.MCPServer
	httpServer *server.StreamableHTTPServer

	// Currently advertised item names, diffed against the merged view on
	// every sync so obsolete handlers are deleted before new ones are added.
	activeTools     map[string]struct{}
	activePrompts   map[string]struct{}
	activeResources map[string]struct{}

	cancelFunc context.CancelFunc
	sub        *events.Subscription
	wg         sync.WaitGroup
}

// New creates a gateway. promptRegistry and localTools may be nil.
func New(cfg config.GatewayConfig, reg *registry.Registry, promptRegistry *prompts.Registry, localTools *tools.Registry, bus *events.Bus) *Gateway {
	if cfg.Host == "" {
		cfg.Host = config.DefaultGatewayHost
	}
	if cfg.Port == 0 {
		cfg.Port = config.DefaultGatewayPort
	}
	return &Gateway{
		cfg:             cfg,
		registry:        reg,
		promptRegistry:  promptRegistry,
		localTools:      localTools,
		bus:             bus,
		activeTools:     make(map[string]struct{}),
		activePrompts:   make(map[string]struct{}),
		activeResources: make(map[string]struct{}),
	}
}

// Endpoint returns the gateway's MCP endpoint URL.
func (g *Gateway) Endpoint() string {
	return fmt.Sprintf("http://%s:%d/mcp", g.cfg.Host, g.cfg.Port)
}

// Start brings up the MCP server, advertises the current merged view, and
// begins following bus events for dynamic updates.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.server != nil {
		g.mu.Unlock()
		return fmt.Errorf("gateway already started")
	}

	var runCtx context.Context
	runCtx, g.cancelFunc = context.WithCancel(ctx)

	g.server = server.NewMCPServer(
		"agentctl-gateway",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
	)
	g.httpServer = server.NewStreamableHTTPServer(g.server)

	if g.bus != nil {
		g.sub = g.bus.Subscribe(func(event events.Event) bool {
			switch event.Type() {
			case events.TypeServerConnected, events.TypeServerRemoved, events.TypeServerUpdated:
				return true
			}
			return false
		}, 64)
		g.wg.Add(1)
		go g.followUpdates(runCtx, g.sub)
	}
	g.mu.Unlock()

	g.syncCapabilities(runCtx)

	addr := fmt.Sprintf("%s:%d", g.cfg.Host, g.cfg.Port)
	logging.Info("Gateway", "Starting gateway on %s", addr)

	g.mu.Lock()
	httpServer := g.httpServer
	g.mu.Unlock()
	go func() {
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			logging.Error("Gateway", err, "Gateway server error")
		}
	}()
	return nil
}

// Stop shuts the gateway down and waits for background work to finish.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	if g.server == nil {
		g.mu.Unlock()
		return fmt.Errorf("gateway not started")
	}
	cancelFunc := g.cancelFunc
	sub := g.sub
	httpServer := g.httpServer
	g.server = nil
	g.httpServer = nil
	g.sub = nil
	g.cancelFunc = nil
	g.mu.Unlock()

	logging.Info("Gateway", "Stopping gateway")
	if cancelFunc != nil {
		cancelFunc()
	}
	if sub != nil {
		g.bus.Unsubscribe(sub)
	}
	g.wg.Wait()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("Gateway", err, "Error shutting down gateway server")
		}
	}
	return nil
}

func (g *Gateway) followUpdates(ctx context.Context, sub *events.Subscription) {
	defer g.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			logging.Debug("Gateway", "Re-syncing after %s from %s", event.Type(), event.Server())
			g.syncCapabilities(ctx)
		}
	}
}

// syncCapabilities diffs the merged view against what the gateway currently
// advertises: obsolete items are deleted first, then new ones added in
// batches so clients see at most one list_changed per kind.
func (g *Gateway) syncCapabilities(ctx context.Context) {
	g.mu.Lock()
	mcpServer := g.server
	g.mu.Unlock()
	if mcpServer == nil {
		return
	}

	desiredTools := g.collectTools(ctx)
	desiredPrompts := g.collectPrompts(ctx)
	desiredResources := g.collectResources(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server == nil {
		return
	}

	if removed := obsolete(g.activeTools, keysOfTools(desiredTools)); len(removed) > 0 {
		g.server.DeleteTools(removed...)
	}
	if removed := obsolete(g.activePrompts, keysOfPrompts(desiredPrompts)); len(removed) > 0 {
		g.server.DeletePrompts(removed...)
	}
	for _, uri := range obsolete(g.activeResources, keysOfResources(desiredResources)) {
		// No batch removal for resources in the server API; one notification
		// per removed resource.
		g.server.RemoveResource(uri)
	}

	var toolsToAdd []server.ServerTool
	for _, st := range desiredTools {
		if _, active := g.activeTools[st.Tool.Name]; !active {
			toolsToAdd = append(toolsToAdd, st)
		}
	}
	var promptsToAdd []server.ServerPrompt
	for _, sp := range desiredPrompts {
		if _, active := g.activePrompts[sp.Prompt.Name]; !active {
			promptsToAdd = append(promptsToAdd, sp)
		}
	}
	var resourcesToAdd []server.ServerResource
	for _, sr := range desiredResources {
		if _, active := g.activeResources[sr.Resource.URI]; !active {
			resourcesToAdd = append(resourcesToAdd, sr)
		}
	}

	if len(toolsToAdd) > 0 {
		g.server.AddTools(toolsToAdd...)
	}
	if len(promptsToAdd) > 0 {
		g.server.AddPrompts(promptsToAdd...)
	}
	if len(resourcesToAdd) > 0 {
		g.server.AddResources(resourcesToAdd...)
	}

	g.activeTools = keysOfTools(desiredTools)
	g.activePrompts = keysOfPrompts(desiredPrompts)
	g.activeResources = keysOfResources(desiredResources)

	logging.Debug("Gateway", "Advertising %d tools, %d resources, %d prompts",
		len(g.activeTools), len(g.activeResources), len(g.activePrompts))
}

func (g *Gateway) collectTools(ctx context.Context) []server.ServerTool {
	var result []server.ServerTool

	merged, err := g.registry.GetAllTools(ctx)
	if err != nil {
		logging.Warn("Gateway", "Failed to collect merged tools: %v", err)
	}
	for _, info := range merged {
		tool := mcp.Tool{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: schemaFromParameters(info.Parameters),
		}
		result = append(result, server.ServerTool{
			Tool:    tool,
			Handler: g.makeToolHandler(info.Name),
		})
	}

	if g.localTools != nil {
		for _, lt := range g.localTools.All() {
			handler := lt.Handler
			result = append(result, server.ServerTool{
				Tool: lt.Tool,
				Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
					res, err := handler(ctx, requestArguments(req))
					if err != nil {
						return mcp.NewToolResultError(err.Error()), nil
					}
					return res, nil
				},
			})
		}
	}
	return result
}

func (g *Gateway) makeToolHandler(name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := g.registry.CallTool(ctx, name, requestArguments(req), 0)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Tool call failed: %v", err)), nil
		}
		return result, nil
	}
}

func requestArguments(req mcp.CallToolRequest) map[string]interface{} {
	if req.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	if argsMap, ok := req.Params.Arguments.(map[string]interface{}); ok {
		return argsMap
	}
	return map[string]interface{}{}
}

func (g *Gateway) collectPrompts(ctx context.Context) []server.ServerPrompt {
	if g.promptRegistry == nil {
		return nil
	}

	infos, err := g.promptRegistry.GetAllPromptMetadata(ctx)
	if err != nil {
		logging.Warn("Gateway", "Failed to collect merged prompts: %v", err)
		return nil
	}

	result := make([]server.ServerPrompt, 0, len(infos))
	for _, info := range infos {
		prompt := mcp.Prompt{
			Name:        info.Name,
			Description: info.Description,
		}
		for _, arg := range info.Arguments {
			prompt.Arguments = append(prompt.Arguments, mcp.PromptArgument{
				Name:        arg.Name,
				Description: arg.Description,
				Required:    arg.Required,
			})
		}
		name := info.Name
		result = append(result, server.ServerPrompt{
			Prompt: prompt,
			Handler: func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
				return g.promptRegistry.GetPrompt(ctx, name, req.Params.Arguments)
			},
		})
	}
	return result
}

func (g *Gateway) collectResources(ctx context.Context) []server.ServerResource {
	infos, err := g.registry.ListAllResources(ctx)
	if err != nil {
		logging.Warn("Gateway", "Failed to collect merged resources: %v", err)
		return nil
	}

	result := make([]server.ServerResource, 0, len(infos))
	for _, info := range infos {
		uri := info.URI
		result = append(result, server.ServerResource{
			Resource: mcp.Resource{
				URI:         info.URI,
				Name:        info.URI,
				Description: info.Summary,
			},
			Handler: func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
				res, err := g.registry.ReadResource(ctx, uri, 0)
				if err != nil {
					return nil, err
				}
				return res.Contents, nil
			},
		})
	}
	return result
}

func schemaFromParameters(parameters map[string]interface{}) mcp.ToolInputSchema {
	schema := mcp.ToolInputSchema{Type: "object"}
	if parameters == nil {
		return schema
	}
	if t, ok := parameters["type"].(string); ok && t != "" {
		schema.Type = t
	}
	if props, ok := parameters["properties"].(map[string]interface{}); ok {
		schema.Properties = props
	}
	switch required := parameters["required"].(type) {
	case []string:
		schema.Required = required
	case []interface{}:
		for _, item := range required {
			if s, ok := item.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func obsolete(active map[string]struct{}, desired map[string]struct{}) []string {
	var removed []string
	for name := range active {
		if _, keep := desired[name]; !keep {
			removed = append(removed, name)
		}
	}
	return removed
}

func keysOfTools(items []server.ServerTool) map[string]struct{} {
	keys := make(map[string]struct{}, len(items))
	for _, item := range items {
		keys[item.Tool.Name] = struct{}{}
	}
	return keys
}

func keysOfPrompts(items []server.ServerPrompt) map[string]struct{} {
	keys := make(map[string]struct{}, len(items))
	for _, item := range items {
		keys[item.Prompt.Name] = struct{}{}
	}
	return keys
}

func keysOfResources(items []server.ServerResource) map[string]struct{} {
	keys := make(map[string]struct{}, len(items))
	for _, item := range items {
		keys[item.Resource.URI] = struct{}{}
	}
	return keys
}
