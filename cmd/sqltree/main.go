// Package main provides the entry point for the sqltree CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/sqltree/cmd/sqltree/commands"
	"github.com/Sumatoshi-tech/sqltree/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "sqltree",
		Short: "sqltree - live SQL syntax tree viewer",
		Long: `sqltree parses SQL with tree-sitter and shows its concrete syntax tree.

Commands:
  parse     Print the tree of a query, file or bundled example
  watch     Redraw the tree whenever a file changes
  serve     Live playground over HTTP and WebSocket
  lsp       Language server for editors
  mcp       Model Context Protocol server for agents`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(commands.FlagConfig, "", "config file (default is .sqltree.yaml in . or $HOME)")
	rootCmd.PersistentFlags().BoolP(commands.FlagVerbose, "v", false, "verbose output")

	rootCmd.AddCommand(commands.NewParseCommand())
	rootCmd.AddCommand(commands.NewWatchCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewLSPCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
