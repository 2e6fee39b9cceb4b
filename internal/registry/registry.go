// Package registry owns the set of named server connections, their
// connection state, and the per-server capability caches. It merges tools
// into a collision-free namespace with qualified identifiers, keeps the
// caches consistent under concurrent reads and asynchronous change
// notifications, and bounds the cost of one server's churn to that server's
// own capability count.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agentctl/internal/aggregate"
	"agentctl/internal/capability"
	"agentctl/internal/events"
	"agentctl/internal/tools"
	"agentctl/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// Conn is the connection surface the registry needs. *conn.Connection
// satisfies it; tests use fakes with query-count probes.
type Conn interface {
	Name() string
	IsConnected() bool
	Connect(ctx context.Context) error
	Disconnect() error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}, timeout time.Duration) (*mcp.CallToolResult, error)
	ReadResource(ctx context.Context, uri string, timeout time.Duration) (*mcp.ReadResourceResult, error)
	GetPrompt(ctx context.Context, name string, args map[string]string, timeout time.Duration) (*mcp.GetPromptResult, error)
}

// serverEntry tracks one registered connection together with the context
// used to cancel its in-flight operations when it is removed.
type serverEntry struct {
	conn   Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// serverSnapshot is one server's cached capabilities. Every entry is tagged
// with the owning server's name through the snapshot it lives in, so a
// single server can be purged without touching its neighbors.
type serverSnapshot struct {
	tools     []mcp.Tool
	resources []mcp.Resource
	prompts   []mcp.Prompt
}

// buildState is the single in-flight cache build shared by concurrent
// callers: the first reader performs the fetch sequence, late readers wait
// on done.
type buildState struct {
	done chan struct{}
	err  error
}

// Registry is the connection registry.
type Registry struct {
	bus *events.Bus

	mu         sync.RWMutex
	clients    map[string]*serverEntry
	caches     map[string]*serverSnapshot
	toolIndex  *aggregate.Aggregator[capability.ToolInfo]
	cacheValid bool

	// buildMu guards the pending-build slot, never held across I/O.
	buildMu  sync.Mutex
	building *buildState
}

// New creates an empty registry publishing events on bus.
func New(bus *events.Bus) *Registry {
	return &Registry{
		bus:       bus,
		clients:   make(map[string]*serverEntry),
		caches:    make(map[string]*serverSnapshot),
		toolIndex: aggregate.New[capability.ToolInfo](),
	}
}

// RegisterClient adds a connection under a unique name. Registering a second
// connection under an already-used name replaces the prior entry: the old
// connection is disconnected and its cache entries purged.
func (r *Registry) RegisterClient(name string, connection Conn) {
	r.mu.Lock()
	prior, replaced := r.clients[name]
	if replaced {
		prior.cancel()
		delete(r.caches, name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.clients[name] = &serverEntry{conn: connection, ctx: ctx, cancel: cancel}
	r.cacheValid = false
	r.mu.Unlock()

	if replaced {
		if err := prior.conn.Disconnect(); err != nil {
			logging.Warn("Registry", "Error disconnecting replaced server %s: %v", name, err)
		}
		logging.Info("Registry", "Replaced server registration: %s", name)
	} else {
		logging.Info("Registry", "Registered server: %s", name)
	}
}

// RemoveClient disconnects the named connection and purges only the cache
// entries tagged with that server name. In-flight operations for the server
// are cancelled so they fail fast instead of hanging. Entries belonging to
// other servers are untouched.
func (r *Registry) RemoveClient(name string) error {
	r.mu.Lock()
	entry, exists := r.clients[name]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: server %s", capability.ErrCapabilityNotFound, name)
	}
	entry.cancel()
	delete(r.clients, name)
	delete(r.caches, name)
	r.toolIndex.RemoveSource(name)
	r.mu.Unlock()

	if err := entry.conn.Disconnect(); err != nil {
		logging.Warn("Registry", "Error disconnecting server %s: %v", name, err)
	}

	r.publish(events.NewServerRemoved(name))
	logging.Info("Registry", "Removed server: %s", name)
	return nil
}

// ServerNames returns the registered server names, sorted.
func (r *Registry) ServerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetConnection returns the connection registered under name.
func (r *Registry) GetConnection(name string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.clients[name]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

// Refresh pulls a fresh capability snapshot from every registered
// connection. A single server's enumeration failure drops that server's
// prior cache (stale data is worse than absent data), is logged, and does
// not fail the refresh of the remaining servers. Cancellation of the call
// context is not a server failure: the refresh aborts with ctx.Err(),
// leaving prior caches and the cache-valid flag untouched.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.RLock()
	entries := make(map[string]*serverEntry, len(r.clients))
	for name, entry := range r.clients {
		entries[name] = entry
	}
	r.mu.RUnlock()

	for name, entry := range entries {
		snapshot, err := r.fetchSnapshot(ctx, name, entry)
		if err != nil && ctx.Err() != nil {
			// The caller's context ended, not the server. Abort so a
			// short-deadline reader cannot empty the merged view for
			// everyone else.
			return ctx.Err()
		}

		r.mu.Lock()
		// Remove wins: discard a snapshot for a server removed (or replaced)
		// while the fetch was in flight.
		if current, still := r.clients[name]; !still || current != entry {
			r.mu.Unlock()
			continue
		}
		if err != nil {
			delete(r.caches, name)
			r.toolIndex.RemoveSource(name)
			r.mu.Unlock()
			logging.Error("Registry", err, "Failed to refresh capabilities for %s, dropping its cache", name)
			continue
		}
		r.caches[name] = snapshot
		r.rebuildToolIndexLocked()
		r.mu.Unlock()

		r.publish(events.NewServerUpdated(name))
	}

	r.mu.Lock()
	r.cacheValid = true
	r.mu.Unlock()
	return nil
}

// fetchSnapshot enumerates one server. Tools are required; resource and
// prompt enumeration failures are tolerated because servers may not support
// those capabilities.
func (r *Registry) fetchSnapshot(ctx context.Context, name string, entry *serverEntry) (*serverSnapshot, error) {
	// Derive from the entry's context so RemoveClient cancels the fetch.
	fetchCtx, cancel := mergeContexts(ctx, entry.ctx)
	defer cancel()

	toolList, err := entry.conn.ListTools(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	snapshot := &serverSnapshot{tools: toolList}

	resources, err := entry.conn.ListResources(fetchCtx)
	if err != nil {
		logging.Debug("Registry", "Failed to list resources for %s: %v", name, err)
	} else {
		snapshot.resources = resources
	}

	prompts, err := entry.conn.ListPrompts(fetchCtx)
	if err != nil {
		logging.Debug("Registry", "Failed to list prompts for %s: %v", name, err)
	} else {
		snapshot.prompts = prompts
	}

	return snapshot, nil
}

// ensureCache lazily builds the caches on first read. If multiple callers
// arrive while no valid cache exists, exactly one underlying fetch sequence
// runs and all concurrent callers await that same in-flight build.
func (r *Registry) ensureCache(ctx context.Context) error {
	r.mu.RLock()
	valid := r.cacheValid
	r.mu.RUnlock()
	if valid {
		return nil
	}

	r.buildMu.Lock()
	r.mu.RLock()
	valid = r.cacheValid
	r.mu.RUnlock()
	if valid {
		r.buildMu.Unlock()
		return nil
	}
	if r.building != nil {
		build := r.building
		r.buildMu.Unlock()
		select {
		case <-build.done:
			return build.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	build := &buildState{done: make(chan struct{})}
	r.building = build
	r.buildMu.Unlock()

	build.err = r.Refresh(ctx)

	r.buildMu.Lock()
	r.building = nil
	r.buildMu.Unlock()
	close(build.done)
	return build.err
}

// rebuildToolIndexLocked rebuilds the merged tool namespace from the current
// caches. Callers hold r.mu.
func (r *Registry) rebuildToolIndexLocked() {
	r.toolIndex.Clear()

	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	// Deterministic insertion order so collision tie-breaks are stable
	// across rebuilds.
	sort.Strings(names)

	for _, serverName := range names {
		snapshot := r.caches[serverName]
		for _, tool := range snapshot.tools {
			info := capability.ToolInfo{
				Name:        tool.Name,
				QualifiedID: tools.QualifyServerTool(serverName, tool.Name),
				Description: tool.Description,
				Parameters:  normalizeSchema(tool.InputSchema),
				ServerName:  serverName,
			}
			r.toolIndex.Insert(serverName, tool.Name, info)
		}
	}

	// Alias pass after all inserts, so the qualified identifiers attach to
	// the final canonical keys no matter how collisions shuffled them.
	for _, entry := range r.toolIndex.Entries() {
		r.toolIndex.AddAlias(entry.Info.QualifiedID, entry.Key)
	}
}

// normalizeSchema converts the protocol's native schema form into a plain
// JSON-schema object.
func normalizeSchema(schema mcp.ToolInputSchema) map[string]interface{} {
	normalized := map[string]interface{}{
		"type": schema.Type,
	}
	if normalized["type"] == "" {
		normalized["type"] = "object"
	}
	if len(schema.Properties) > 0 {
		normalized["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		normalized["required"] = schema.Required
	}
	return normalized
}

// GetAllTools returns the merged tool view from cache. Repeated calls
// without an intervening Refresh or change notification serve the same
// cached value without re-querying any server.
func (r *Registry) GetAllTools(ctx context.Context) ([]capability.ToolInfo, error) {
	if err := r.ensureCache(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.toolIndex.Entries()
	result := make([]capability.ToolInfo, 0, len(entries))
	for _, entry := range entries {
		info := entry.Info
		info.Name = entry.Key
		result = append(result, info)
	}
	return result, nil
}

// ListAllResources returns all cached resources, sorted by URI.
func (r *Registry) ListAllResources(ctx context.Context) ([]capability.ResourceInfo, error) {
	if err := r.ensureCache(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []capability.ResourceInfo
	for serverName, snapshot := range r.caches {
		for _, resource := range snapshot.resources {
			summary := resource.Description
			if summary == "" {
				summary = resource.Name
			}
			result = append(result, capability.ResourceInfo{
				URI:        resource.URI,
				Summary:    summary,
				ServerName: serverName,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].URI < result[j].URI })
	return result, nil
}

// GetAllPromptMetadata returns all cached prompt descriptors, sorted by
// server then name. The higher-level prompt registry merges these with
// local providers.
func (r *Registry) GetAllPromptMetadata(ctx context.Context) ([]capability.PromptInfo, error) {
	if err := r.ensureCache(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []capability.PromptInfo
	for serverName, snapshot := range r.caches {
		for _, prompt := range snapshot.prompts {
			result = append(result, capability.PromptInfo{
				Name:        prompt.Name,
				Description: prompt.Description,
				Arguments:   convertPromptArguments(prompt.Arguments),
				ServerName:  serverName,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ServerName != result[j].ServerName {
			return result[i].ServerName < result[j].ServerName
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func convertPromptArguments(args []mcp.PromptArgument) []capability.PromptArgument {
	if len(args) == 0 {
		return nil
	}
	result := make([]capability.PromptArgument, len(args))
	for i, arg := range args {
		result[i] = capability.PromptArgument{
			Name:        arg.Name,
			Description: arg.Description,
			Required:    arg.Required,
		}
	}
	return result
}

// CallTool resolves a tool by any of its names (merged name, bare original
// name, or qualified identifier) and forwards the invocation to the owning
// server with the given per-call timeout.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]interface{}, timeout time.Duration) (*mcp.CallToolResult, error) {
	if err := r.ensureCache(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	entry, err := r.toolIndex.Resolve(name)
	if err != nil {
		r.mu.RUnlock()
		return nil, err
	}
	serverName := entry.SourceName
	originalName := entry.OriginalName
	client, exists := r.clients[serverName]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", capability.ErrCapabilityNotFound, name)
	}
	return client.conn.CallTool(ctx, originalName, args, timeout)
}

// ReadResource locates the server owning uri and forwards the read.
func (r *Registry) ReadResource(ctx context.Context, uri string, timeout time.Duration) (*mcp.ReadResourceResult, error) {
	if err := r.ensureCache(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	var owner *serverEntry
	for serverName, snapshot := range r.caches {
		for _, resource := range snapshot.resources {
			if resource.URI == uri {
				owner = r.clients[serverName]
				break
			}
		}
		if owner != nil {
			break
		}
	}
	r.mu.RUnlock()

	if owner == nil {
		return nil, fmt.Errorf("%w: resource %s", capability.ErrCapabilityNotFound, uri)
	}
	return owner.conn.ReadResource(ctx, uri, timeout)
}

// GetPromptMetadata looks up one cached prompt descriptor by bare name or by
// the qualified "server:name" form. When servers collide on a bare name, the
// last writer in server sort order wins, matching the merged prompt
// namespace's tie-break.
func (r *Registry) GetPromptMetadata(ctx context.Context, name string) (capability.PromptInfo, error) {
	prompts, err := r.GetAllPromptMetadata(ctx)
	if err != nil {
		return capability.PromptInfo{}, err
	}

	var (
		bare  capability.PromptInfo
		found bool
	)
	for _, info := range prompts {
		if aggregate.QualifiedKey(info.ServerName, info.Name) == name {
			return info, nil
		}
		if info.Name == name {
			bare = info
			found = true
		}
	}
	if found {
		return bare, nil
	}
	return capability.PromptInfo{}, fmt.Errorf("%w: prompt %s", capability.ErrCapabilityNotFound, name)
}

// GetPrompt renders a prompt on its owning server.
func (r *Registry) GetPrompt(ctx context.Context, name string, args map[string]string, timeout time.Duration) (*mcp.GetPromptResult, error) {
	info, err := r.GetPromptMetadata(ctx, name)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	entry, exists := r.clients[info.ServerName]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: prompt %s", capability.ErrCapabilityNotFound, name)
	}
	return entry.conn.GetPrompt(ctx, info.Name, args, timeout)
}

// ApplyCapabilityChange performs the surgical update for one server: only
// that server's previously-cached entries of the changed kind are dropped
// and re-queried; every other server's cache is untouched and not
// re-fetched. Cost is bounded by the changed server's capability count.
func (r *Registry) ApplyCapabilityChange(ctx context.Context, serverName string, kind capability.Kind) error {
	r.mu.RLock()
	entry, exists := r.clients[serverName]
	r.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: server %s", capability.ErrCapabilityNotFound, serverName)
	}

	fetchCtx, cancel := mergeContexts(ctx, entry.ctx)
	defer cancel()

	var (
		newTools     []mcp.Tool
		newResources []mcp.Resource
		newPrompts   []mcp.Prompt
		err          error
	)
	switch kind {
	case capability.KindTool:
		newTools, err = entry.conn.ListTools(fetchCtx)
	case capability.KindResource:
		newResources, err = entry.conn.ListResources(fetchCtx)
	case capability.KindPrompt:
		newPrompts, err = entry.conn.ListPrompts(fetchCtx)
	default:
		return fmt.Errorf("unknown capability kind: %s", kind)
	}
	if err != nil {
		return fmt.Errorf("failed to re-query %s of %s: %w", kind, serverName, err)
	}

	r.mu.Lock()
	if current, still := r.clients[serverName]; !still || current != entry {
		// Removed while the re-query was in flight; remove wins.
		r.mu.Unlock()
		return nil
	}
	snapshot, ok := r.caches[serverName]
	if !ok {
		snapshot = &serverSnapshot{}
		r.caches[serverName] = snapshot
	}
	switch kind {
	case capability.KindTool:
		snapshot.tools = newTools
		r.rebuildToolIndexLocked()
	case capability.KindResource:
		snapshot.resources = newResources
	case capability.KindPrompt:
		snapshot.prompts = newPrompts
	}
	r.mu.Unlock()

	r.publish(events.NewServerUpdated(serverName))
	logging.Debug("Registry", "Applied surgical %s update for %s", kind, serverName)
	return nil
}

// DisconnectAll attempts every registered connection's Disconnect even if
// earlier ones fail, and never itself returns an error.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	entries := make(map[string]*serverEntry, len(r.clients))
	for name, entry := range r.clients {
		entries[name] = entry
	}
	r.clients = make(map[string]*serverEntry)
	r.caches = make(map[string]*serverSnapshot)
	r.toolIndex.Clear()
	r.cacheValid = false
	r.mu.Unlock()

	for name, entry := range entries {
		entry.cancel()
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logging.Error("Registry", fmt.Errorf("%v", rec), "Panic disconnecting server %s", name)
				}
			}()
			if err := entry.conn.Disconnect(); err != nil {
				logging.Warn("Registry", "Error disconnecting server %s: %v", name, err)
			}
		}()
		r.publish(events.NewServerRemoved(name))
	}
	logging.Info("Registry", "Disconnected all servers")
}

func (r *Registry) publish(event events.Event) {
	if r.bus != nil {
		r.bus.Publish(event)
	}
}

// mergeContexts derives a context cancelled when either parent is done. The
// first carries the caller's deadline; the second is the server entry's
// lifetime.
func mergeContexts(call, lifetime context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(call)
	stop := context.AfterFunc(lifetime, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
