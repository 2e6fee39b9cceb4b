package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the merged tools of all configured servers",
		Long: `Connects to every configured capability server and prints the merged
tool list. Colliding names appear in their qualified "server:name" form;
each row also shows the stable qualified identifier and the owning server.`,
		Args: cobra.NoArgs,
		RunE: runTools,
	}
}

func runTools(cmd *cobra.Command, args []string) error {
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

	toolList, err := rt.registry.GetAllTools(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}

	if len(toolList) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tools available")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSERVER\tID\tDESCRIPTION")
	for _, info := range toolList {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, info.ServerName, info.QualifiedID, firstLine(info.Description))
	}
	return w.Flush()
}

// firstLine truncates multi-line descriptions for tabular output.
func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
