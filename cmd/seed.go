package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed [file.json]",
	Short: "Import tags and topics from a JSON seed document into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open seed: %w", err)
		}
		defer func() { _ = f.Close() }()

		s, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		stats, err := s.LoadSeed(cmd.Context(), f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d tags and %d topics into %s.\n", stats.Tags, stats.Topics, cfg.Database)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
