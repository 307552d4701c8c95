package cmd

import (
	"fmt"
	"io"

	"github.com/agentic-research/cspec/internal/pipeline"
	"github.com/agentic-research/cspec/internal/writeback"
	"github.com/spf13/cobra"
)

var pushOutput string

var pushCmd = &cobra.Command{
	Use:   "push [file]",
	Short: "Validate a content spec, persist its topics and write back the resolved text",
	Long: `Push runs the whole pipeline. New and cloned topics are created, changed
existing topics are updated, and the resolved text with a fresh CHECKSUM line
replaces the input file, or goes to --output. A failure at any point writes
nothing back; a failed commit is rolled back.`,
	Args: cobra.ExactArgs(1),
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

		res, err := pipeline.NewWithBackend(pipelineOptions(), s).Process(cmd.Context(), text)
		if res != nil {
			printLog(cmd.ErrOrStderr(), args[0], res.Log)
		}
		if err != nil {
			return err
		}

		out := pushOutput
		if out == "" {
			out = args[0]
		}
		if out == "-" {
			_, err := io.WriteString(cmd.OutOrStdout(), res.Text)
			return err
		}
		fs, name, err := hostFile(out)
		if err != nil {
			return err
		}
		if err := writeback.WriteFile(fs, name, []byte(res.Text)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: pushed, checksum %s\n", out, res.Checksum)
		return nil
	},
}

func init() {
	pushCmd.Flags().StringVarP(&pushOutput, "output", "o", "", "Write the resolved text here instead of over the input (- for stdout)")
	rootCmd.AddCommand(pushCmd)
}
