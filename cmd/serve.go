package cmd

import (
	"github.com/agentic-research/cspec/internal/ctxlog"
	"github.com/agentic-research/cspec/internal/toolserver"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve validate_spec and process_spec as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		ctxlog.FromContext(cmd.Context()).Info("Serving MCP tools on stdio.", "db", cfg.Database)
		return toolserver.Serve(toolserver.New(pipelineOptions(), s))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
