package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"
)

func newResourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "List the merged resources of all configured servers",
		Args:  cobra.NoArgs,
		RunE:  runResources,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "read <uri>",
		Short: "Read a resource by URI",
		Args:  cobra.ExactArgs(1),
		RunE:  runResourceRead,
	})
	return cmd
}

func runResources(cmd *cobra.Command, args []string) error {
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

	resources, err := rt.registry.ListAllResources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list resources: %w", err)
	}

	if len(resources) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No resources available")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "URI\tSERVER\tSUMMARY")
	for _, info := range resources {
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.URI, info.ServerName, firstLine(info.Summary))
	}
	return w.Flush()
}

func runResourceRead(cmd *cobra.Command, args []string) error {
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

	result, err := rt.registry.ReadResource(ctx, args[0], 0)
	if err != nil {
		return fmt.Errorf("failed to read resource: %w", err)
	}

	for _, contents := range result.Contents {
		switch c := contents.(type) {
		case mcp.TextResourceContents:
			fmt.Fprintln(cmd.OutOrStdout(), c.Text)
		case mcp.BlobResourceContents:
			fmt.Fprintf(cmd.OutOrStdout(), "[binary resource %s, %d base64 bytes]\n", c.URI, len(c.Blob))
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "%v\n", contents)
		}
	}
	return nil
}
