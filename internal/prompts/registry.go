package prompts

import (
	"context"
	"sync"

	"agentctl/internal/aggregate"
	"agentctl/internal/capability"
	"agentctl/internal/events"
	"agentctl/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// promptEntry ties a merged prompt descriptor to the provider that renders
// it.
type promptEntry struct {
	info     capability.PromptInfo
	provider Provider
}

// Registry merges prompts from the connection registry (external servers)
// and local providers into one collision-free namespace. External prompts
// keep their originating server as collision identity, so two servers
// advertising "review" surface as "serverA:review" and "serverB:review"
// exactly like colliding tools do.
type Registry struct {
	external  Provider
	providers []Provider
	bus       *events.Bus

	mu    sync.RWMutex
	index *aggregate.Aggregator[promptEntry]
	valid bool

	// buildMu guards the pending-rebuild slot, never held across provider
	// calls.
	buildMu  sync.Mutex
	building *rebuildState

	subMu sync.Mutex
	sub   *events.Subscription
	wg    sync.WaitGroup
	stop  context.CancelFunc
}

type rebuildState struct {
	done chan struct{}
	err  error
}

// NewRegistry creates a prompt registry. external is the provider backed by
// the connection registry (may be nil when no servers are configured);
// providers are local sources merged after it, in order.
func NewRegistry(external Provider, bus *events.Bus, providers ...Provider) *Registry {
	return &Registry{
		external:  external,
		providers: providers,
		bus:       bus,
		index:     aggregate.New[promptEntry](),
	}
}

// Start subscribes to server lifecycle events so external prompt churn
// invalidates the merged view. Safe to skip for registries with only local
// providers.
func (r *Registry) Start(ctx context.Context) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.bus == nil || r.sub != nil {
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	r.stop = cancel
	r.sub = r.bus.Subscribe(func(event events.Event) bool {
		switch event.Type() {
		case events.TypeServerConnected, events.TypeServerRemoved, events.TypeServerUpdated:
			return true
		}
		return false
	}, 64)

	r.wg.Add(1)
	go func(sub *events.Subscription) {
		defer r.wg.Done()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-sub.Events():
				if !ok {
					return
				}
				logging.Debug("Prompt-Registry", "Invalidating merged prompts after %s from %s", event.Type(), event.Server())
				r.Invalidate()
			}
		}
	}(r.sub)
}

// Stop cancels the event subscription and waits for the worker to finish.
func (r *Registry) Stop() {
	r.subMu.Lock()
	sub := r.sub
	stop := r.stop
	r.sub = nil
	r.stop = nil
	r.subMu.Unlock()

	if sub == nil {
		return
	}
	if stop != nil {
		stop()
	}
	r.bus.Unsubscribe(sub)
	r.wg.Wait()
}

// Invalidate marks the merged view stale; the next read rebuilds it.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.valid = false
	r.mu.Unlock()
}

// ensureIndex rebuilds the merged namespace when stale. Concurrent callers
// arriving during a rebuild all await the same in-flight rebuild instead of
// racing their own.
func (r *Registry) ensureIndex(ctx context.Context) error {
	r.mu.RLock()
	valid := r.valid
	r.mu.RUnlock()
	if valid {
		return nil
	}

	r.buildMu.Lock()
	r.mu.RLock()
	valid = r.valid
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
	build := &rebuildState{done: make(chan struct{})}
	r.building = build
	r.buildMu.Unlock()

	build.err = r.rebuild(ctx)

	r.buildMu.Lock()
	r.building = nil
	r.buildMu.Unlock()
	close(build.done)
	return build.err
}

// rebuild re-merges every source. External prompts are inserted first under
// their originating server name; local providers follow in registration
// order, so a local prompt colliding with an external one qualifies both.
func (r *Registry) rebuild(ctx context.Context) error {
	index := aggregate.New[promptEntry]()

	sources := make([]Provider, 0, len(r.providers)+1)
	if r.external != nil {
		sources = append(sources, r.external)
	}
	sources = append(sources, r.providers...)

	for _, provider := range sources {
		infos, err := provider.ListPrompts(ctx)
		if err != nil {
			logging.Warn("Prompt-Registry", "Skipping provider %s during rebuild: %v", provider.Name(), err)
			continue
		}
		for _, info := range infos {
			source := info.ServerName
			if source == "" {
				source = provider.Name()
				info.ServerName = source
			}
			index.Insert(source, info.Name, promptEntry{info: info, provider: provider})
		}
	}

	// Slash-command aliases attach after all inserts, so they target final
	// canonical keys. Colliding names get one slash alias, awarded to the
	// first entry in key order; it is never repointed to a later arrival.
	for _, entry := range index.Entries() {
		index.AddAlias("/"+entry.OriginalName, entry.Key)
	}

	r.mu.Lock()
	r.index = index
	r.valid = true
	r.mu.Unlock()
	return nil
}

// GetAllPromptMetadata returns the merged prompt descriptors, ordered by
// exposed name. The Name field carries the merged exposed name (qualified
// after a collision); ServerName identifies the contributing source.
func (r *Registry) GetAllPromptMetadata(ctx context.Context) ([]capability.PromptInfo, error) {
	if err := r.ensureIndex(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.index.Entries()
	result := make([]capability.PromptInfo, 0, len(entries))
	for _, entry := range entries {
		info := entry.Info.info
		info.Name = entry.Key
		result = append(result, info)
	}
	return result, nil
}

// GetPromptMetadata looks up one prompt by merged name, bare original name,
// qualified "source:name" form, or "/name" slash spelling.
func (r *Registry) GetPromptMetadata(ctx context.Context, name string) (capability.PromptInfo, error) {
	entry, err := r.resolve(ctx, name)
	if err != nil {
		return capability.PromptInfo{}, err
	}
	info := entry.Info.info
	info.Name = entry.Key
	return info, nil
}

// GetPrompt resolves a prompt by any of its names and renders it through the
// owning provider.
func (r *Registry) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	entry, err := r.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	// Local providers own their names directly. External prompts go through
	// the connection-backed provider with the qualified spelling so the right
	// server renders them even when several advertise the same name.
	forwardName := entry.OriginalName
	if entry.Info.info.ServerName != entry.Info.provider.Name() {
		forwardName = aggregate.QualifiedKey(entry.SourceName, entry.OriginalName)
	}
	return entry.Info.provider.GetPrompt(ctx, forwardName, args)
}

func (r *Registry) resolve(ctx context.Context, name string) (*aggregate.Entry[promptEntry], error) {
	if err := r.ensureIndex(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, err := r.index.Resolve(name)
	if err != nil {
		return nil, err
	}
	return entry, nil
}
