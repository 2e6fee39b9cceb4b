package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
)

var (
	callArgs    []string
	callJSON    string
	callTimeout time.Duration
)

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke a tool by any of its names",
		Long: `Invokes a tool by merged name, bare original name, or qualified
identifier and prints the result. Arguments are passed either as repeated
--arg key=value flags (values are strings) or as one --json object.`,
		Args: cobra.ExactArgs(1),
		RunE: runCall,
	}

	cmd.Flags().StringArrayVar(&callArgs, "arg", nil, "tool argument as key=value (repeatable)")
	cmd.Flags().StringVar(&callJSON, "json", "", "tool arguments as a JSON object (overrides --arg)")
	cmd.Flags().DurationVar(&callTimeout, "timeout", 0, "per-call timeout (default: server timeout)")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	arguments, err := buildCallArguments()
	if err != nil {
		return err
	}

	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.registry.CallTool(ctx, args[0], arguments, callTimeout)
	if err != nil {
		return fmt.Errorf("tool call failed: %w", err)
	}

	for _, content := range result.Content {
		if text, ok := content.(mcp.TextContent); ok {
			fmt.Fprintln(cmd.OutOrStdout(), text.Text)
		}
	}
	if result.IsError {
		return fmt.Errorf("tool %s reported an error", args[0])
	}
	return nil
}

func buildCallArguments() (map[string]interface{}, error) {
	if callJSON != "" {
		var arguments map[string]interface{}
		if err := json.Unmarshal([]byte(callJSON), &arguments); err != nil {
			return nil, fmt.Errorf("invalid --json value: %w", err)
		}
		return arguments, nil
	}

	pairs, err := parseKeyValues(callArgs)
	if err != nil {
		return nil, err
	}
	arguments := make(map[string]interface{}, len(pairs))
	for key, value := range pairs {
		arguments[key] = value
	}
	return arguments, nil
}
