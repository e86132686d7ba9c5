package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/plexsim/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve stored networks over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout that exposes the
network database of the output directory to an assistant.

Tools: network_runs, network_summary, list_species, list_reactions,
network_validate, network_graph. Tool calls are logged to
<output.dir>/audit.jsonl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := commandContext(cmd)
			server, err := mcp.NewServer(ctx, &mcp.Config{
				Name:     "plexsim",
				Version:  version,
				OutDir:   cfg.Output.Dir,
				Database: cfg.Output.Database,
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}
			return server.Run(ctx)
		},
	}
}
