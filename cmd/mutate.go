package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/filetree/internal/ingest"
	"github.com/agentic-research/filetree/internal/logging"
)

// withMutator opens the store for writing, runs fn, and rebuilds and
// publishes once fn succeeds.
func withMutator(ctx context.Context, opts *options, fn func(m ingest.Mutator) error) error {
	store, err := openMutator(ctx, opts.cfg)
	if err != nil {
		return err
	}
	err = fn(store)
	_ = store.Close()
	if err != nil {
		return err
	}
	if _, _, err := rebuild(ctx, opts.cfg); err != nil {
		return fmt.Errorf("rebuild after change: %w", err)
	}
	return nil
}

func newMkdirCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <parent> <name>",
		Short: "Record a new folder under parent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMutator(cmd.Context(), opts, func(m ingest.Mutator) error {
				path, existed, err := m.CreateFolder(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if existed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
					return nil
				}
				logging.Info("folder created", logging.String("path", path))
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
				return nil
			})
		},
	}
}

func newMvCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <path> <new-name>",
		Short: "Rename a file or directory in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMutator(cmd.Context(), opts, func(m ingest.Mutator) error {
				path, err := m.Rename(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				logging.Info("renamed", logging.String("from", args[0]), logging.String("to", path))
				fmt.Fprintf(cmd.OutOrStdout(), "renamed to %s\n", path)
				return nil
			})
		},
	}
}

func newRmCmd(opts *options) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete the records at path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMutator(cmd.Context(), opts, func(m ingest.Mutator) error {
				n, err := m.Delete(cmd.Context(), args[0], recursive)
				if err != nil {
					return err
				}
				logging.Info("deleted", logging.String("path", args[0]), logging.Int("records", n))
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d record(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, "also remove everything below path")
	return cmd
}
