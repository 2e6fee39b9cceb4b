package cmd

import (
	"context"

	"agentctl/internal/config"
	"agentctl/internal/conn"
	"agentctl/internal/events"
	"agentctl/internal/prompts"
	"agentctl/internal/registry"
)

// runtime wires the pieces every command needs: the event bus, the
// connection registry with all configured servers connected, the change
// watcher, and the merged prompt registry.
type runtime struct {
	cfg      config.Config
	bus      *events.Bus
	registry *registry.Registry
	watcher  *registry.Watcher
	prompts  *prompts.Registry
}

func loadConfiguration() (config.Config, error) {
	if configFile != "" {
		return config.LoadConfigFromFile(configFile)
	}
	return config.LoadConfig()
}

// newRuntime connects every configured server and assembles the registries.
// A strict server's connection failure aborts startup; lenient failures are
// logged inside Connect and the server is simply absent from the merged view.
func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	bus := events.NewBus()
	reg := registry.New(bus)

	for _, def := range cfg.Servers {
		connection := conn.New(def, bus)
		reg.RegisterClient(def.Name, connection)
		if err := connection.Connect(ctx); err != nil {
			reg.DisconnectAll()
			bus.Close()
			return nil, err
		}
	}

	watcher := registry.NewWatcher(reg, bus)
	watcher.Start(ctx)

	var providers []prompts.Provider
	if len(cfg.Prompts) > 0 {
		providers = append(providers, prompts.NewConfigProvider(cfg.Prompts))
	}
	if cfg.PromptsDir != "" {
		providers = append(providers, prompts.NewFileProvider(cfg.PromptsDir))
	}
	var userProvider *prompts.UserProvider
	if cfg.UserPromptsDir != "" {
		userProvider = prompts.NewUserProvider(cfg.UserPromptsDir)
		providers = append(providers, userProvider)
	}

	promptRegistry := prompts.NewRegistry(prompts.NewServerProvider(reg, 0), bus, providers...)
	promptRegistry.Start(ctx)
	if userProvider != nil {
		userProvider.OnInvalidate(promptRegistry.Invalidate)
	}

	return &runtime{
		cfg:      cfg,
		bus:      bus,
		registry: reg,
		watcher:  watcher,
		prompts:  promptRegistry,
	}, nil
}

// Close tears the runtime down in reverse construction order.
func (rt *runtime) Close() {
	rt.prompts.Stop()
	rt.watcher.Stop()
	rt.registry.DisconnectAll()
	rt.bus.Close()
}
