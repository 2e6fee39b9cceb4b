package registry

import (
	"context"
	"sync"
	"time"

	"agentctl/internal/events"
	"agentctl/pkg/logging"
)

// Watcher reacts to capability-changed notifications by applying surgical
// cache updates, so a single server's churn never triggers a full refresh.
type Watcher struct {
	registry *Registry
	bus      *events.Bus

	mu         sync.Mutex
	sub        *events.Subscription
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
}

// NewWatcher creates a watcher for the given registry and bus.
func NewWatcher(registry *Registry, bus *events.Bus) *Watcher {
	return &Watcher{registry: registry, bus: bus}
}

// Start begins consuming capability-changed events.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}

	var watchCtx context.Context
	watchCtx, w.cancelFunc = context.WithCancel(ctx)
	w.sub = w.bus.Subscribe(events.FilterByType(events.TypeCapabilityListChanged), 64)
	w.running = true

	w.wg.Add(1)
	go w.loop(watchCtx, w.sub)

	logging.Info("Registry-Watcher", "Started capability change watcher")
}

// Stop cancels the subscription and waits for the worker to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancelFunc := w.cancelFunc
	sub := w.sub
	w.mu.Unlock()

	if cancelFunc != nil {
		cancelFunc()
	}
	w.bus.Unsubscribe(sub)
	w.wg.Wait()

	logging.Info("Registry-Watcher", "Stopped capability change watcher")
}

// IsRunning reports whether the watcher is consuming events.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, sub *events.Subscription) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			changed, isChange := event.(events.CapabilityListChanged)
			if !isChange {
				continue
			}
			w.apply(ctx, changed)
		}
	}
}

func (w *Watcher) apply(ctx context.Context, event events.CapabilityListChanged) {
	updateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := w.registry.ApplyCapabilityChange(updateCtx, event.Server(), event.Kind); err != nil {
		logging.Error("Registry-Watcher", err, "Failed surgical %s update for %s", event.Kind, event.Server())
	}
}
