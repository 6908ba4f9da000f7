package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/filetree/api"
)

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report on the published tree file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.cfg.Output.Path
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "output:      %s\n", path)

			info, err := os.Stat(path)
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(w, "exists:      false")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "exists:      true")
			fmt.Fprintf(w, "modified:    %s\n", info.ModTime().UTC().Format(time.RFC3339))

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			var doc struct {
				Metadata api.Metadata `json:"metadata"`
			}
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			printSummary(w, doc.Metadata)
			return nil
		},
	}
}
