package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"agentctl/internal/gateway"
	"agentctl/internal/tools"

	"github.com/spf13/cobra"
)

var (
	serveHost string
	servePort int
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect configured servers and serve the merged view",
		Long: `Connects to every configured capability server, merges their tools,
resources, and prompts into one namespace, and serves the merged view on a
single MCP endpoint until interrupted.

Strict servers abort startup when unreachable; lenient servers are logged
and skipped. Capability change notifications from backends are applied live,
so connected clients always see the current merged view.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveHost, "host", "", "host to bind the gateway to (overrides config)")
	cmd.Flags().IntVar(&servePort, "port", 0, "port to bind the gateway to (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	gwCfg := cfg.Gateway
	if serveHost != "" {
		gwCfg.Host = serveHost
	}
	if servePort != 0 {
		gwCfg.Port = servePort
	}

	localTools := tools.NewRegistry()
	localTools.AddFactory(gateway.NewIntrospectionFactory(rt.registry))

	gw := gateway.New(gwCfg, rt.registry, rt.prompts, localTools, rt.bus)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "agentctl gateway listening on %s\n", gw.Endpoint())

	<-ctx.Done()
	return gw.Stop(context.Background())
}
