package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
)

var promptArgs []string

func newPromptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "List the merged prompts of all servers and local providers",
		Args:  cobra.NoArgs,
		RunE:  runPrompts,
	}

	getCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Render a prompt by name",
		Long: `Renders a prompt by its merged name, bare original name, qualified
"source:name" spelling, or "/name" slash form. Arguments are passed with
repeated --arg key=value flags.`,
		Args: cobra.ExactArgs(1),
		RunE: runPromptGet,
	}
	getCmd.Flags().StringArrayVar(&promptArgs, "arg", nil, "prompt argument as key=value (repeatable)")
	cmd.AddCommand(getCmd)
	return cmd
}

func runPrompts(cmd *cobra.Command, args []string) error {
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

	promptList, err := rt.prompts.GetAllPromptMetadata(ctx)
	if err != nil {
		return fmt.Errorf("failed to list prompts: %w", err)
	}

	if len(promptList) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No prompts available")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSOURCE\tARGS\tDESCRIPTION")
	for _, info := range promptList {
		argNames := make([]string, 0, len(info.Arguments))
		for _, arg := range info.Arguments {
			name := arg.Name
			if arg.Required {
				name += "*"
			}
			argNames = append(argNames, name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, info.ServerName, strings.Join(argNames, ","), firstLine(info.Description))
	}
	return w.Flush()
}

func runPromptGet(cmd *cobra.Command, args []string) error {
	arguments, err := parseKeyValues(promptArgs)
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

	result, err := rt.prompts.GetPrompt(ctx, args[0], arguments)
	if err != nil {
		return fmt.Errorf("failed to render prompt: %w", err)
	}

	for _, message := range result.Messages {
		if text, ok := message.Content.(mcp.TextContent); ok {
			fmt.Fprintln(cmd.OutOrStdout(), text.Text)
		}
	}
	return nil
}

func parseKeyValues(pairs []string) (map[string]string, error) {
	result := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid argument %q, expected key=value", pair)
		}
		result[key] = value
	}
	return result, nil
}
