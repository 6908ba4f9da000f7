package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/filetree/internal/config"
	"github.com/agentic-research/filetree/internal/tree"
	"github.com/agentic-research/filetree/internal/watch"
)

var errNotFileBacked = errors.New("watching needs a file-backed record store (sqlite or json)")

// newStoreWatcher calls onBuild with every successful rebuild triggered by
// a change to the store file.
func newStoreWatcher(cfg *config.Config, onBuild func(*tree.Result, []byte)) (*watch.Watcher, error) {
	if cfg.Store.Driver == "postgres" {
		return nil, errNotFileBacked
	}
	return watch.New(cfg.Store.DSN, func(ctx context.Context) error {
		res, doc, err := rebuild(ctx, cfg)
		if res != nil && doc != nil && onBuild != nil {
			onBuild(res, doc)
		}
		return err
	}), nil
}

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Build and publish, then rebuild whenever the record store changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			report := func(res *tree.Result, _ []byte) {
				fmt.Fprintf(w, "built %d nodes (%s)\n", res.Metadata.TotalNodes, res.BuildID)
			}

			watcher, err := newStoreWatcher(opts.cfg, report)
			if err != nil {
				return err
			}
			res, doc, err := rebuild(ctx, opts.cfg)
			if err != nil {
				return err
			}
			report(res, doc)

			serveMetrics(ctx, opts.cfg.Metrics.Addr)
			return watcher.Run(ctx)
		},
	}
}
