package cmd

import (
	"fmt"

	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/pipeline"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Parse and validate a content spec without writing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readSource(cmd, args[0])
		if err != nil {
			return err
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		res, err := pipeline.New(pipelineOptions(), s, nil).Validate(cmd.Context(), text)
		printLog(cmd.ErrOrStderr(), args[0], res.Log)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d topics, %d warnings)\n",
			args[0], len(res.Spec.Topics()), res.Log.Count(diag.SeverityWarning))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
