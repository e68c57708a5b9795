package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/sqltree/pkg/lsp"
	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax/treesitter"
	"github.com/Sumatoshi-tech/sqltree/pkg/version"
)

// NewLSPCommand creates the language server command.
func NewLSPCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start the SQL syntax tree language server (stdio)",
		Long: `Start a language server (LSP) on stdio.

Open SQL documents are reparsed as they change. The server answers hover and
documentHighlight with the innermost syntax node, publishes diagnostics for
ERROR nodes and serves the sqltree/tree, sqltree/hoverNode and sqltree/leave
requests for tree panels.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, observability.ModeLSP)
			if err != nil {
				return err
			}
			defer e.close()

			sess := e.session(treesitter.NewEngine(), e.cfg.Grammar)
			defer sess.Close()

			srv := lsp.NewServer(sess,
				lsp.WithLogger(e.providers.Logger),
				lsp.WithInterval(e.cfg.Debounce),
				lsp.WithSnippetMax(e.cfg.SnippetMax),
				lsp.WithReparseMetrics(e.providers.Reparse),
				lsp.WithVersion(version.Version),
			)

			return srv.Run(debug)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable protocol debug logging to stderr")

	return cmd
}
