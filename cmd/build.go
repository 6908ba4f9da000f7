package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/filetree/api"
)

func newBuildCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the tree from the record store and publish it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, _, err := rebuild(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), res.Metadata)
			if opts.cfg.Output.Path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s in %v.\n", opts.cfg.Output.Path, res.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}
}

func printSummary(w io.Writer, m api.Metadata) {
	fmt.Fprintf(w, "nodes:       %d\n", m.TotalNodes)
	fmt.Fprintf(w, "files:       %d\n", m.TotalFiles)
	fmt.Fprintf(w, "directories: %d (%d synthetic)\n", m.TotalDirectories, m.SyntheticDirectories)
	if m.SkippedRecords > 0 {
		fmt.Fprintf(w, "skipped:     %d\n", m.SkippedRecords)
	}
	if m.UncertainNodes > 0 {
		fmt.Fprintf(w, "uncertain:   %d\n", m.UncertainNodes)
	}
}
