package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/sqltree/pkg/mcp"
	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax/treesitter"
	"github.com/Sumatoshi-tech/sqltree/pkg/version"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes the SQL parser as tools that AI agents can discover
and invoke:
  - sql_parse_tree: syntax tree rows, summary and rendering of a query
  - sql_node_at: innermost syntax node at a line and column
  - sql_examples: bundled example queries`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, observability.ModeMCP)
			if err != nil {
				return err
			}
			defer e.close()

			srv := mcp.NewServer(mcp.ServerDeps{
				Logger:     e.providers.Logger,
				Metrics:    e.providers.Metrics,
				Tracer:     e.providers.Tracer,
				Engine:     treesitter.NewEngine(),
				Grammar:    e.cfg.Grammar,
				SnippetMax: e.cfg.SnippetMax,
				Cache:      e.projections(),
				Version:    version.Version,
			})

			return srv.Run(cmd.Context())
		},
	}

	return cmd
}
