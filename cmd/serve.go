package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/filetree/internal/logging"
	"github.com/agentic-research/filetree/internal/mcptools"
)

func newServeCmd(opts *options) *cobra.Command {
	var (
		httpAddr string
		noWatch  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tree to agents over MCP (stdio by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg

			res, doc, err := rebuild(ctx, cfg)
			if res == nil {
				return err
			}
			if err != nil {
				logging.Warn("publish failed, serving the fresh build anyway", logging.Err(err))
			}
			live := newLiveTree(res, doc)

			if !noWatch {
				if watcher, err := newStoreWatcher(cfg, live.update); err == nil {
					go func() {
						if err := watcher.Run(ctx); err != nil {
							logging.Error("watcher stopped", logging.Err(err))
						}
					}()
				}
			}
			serveMetrics(ctx, cfg.Metrics.Addr)

			srv := mcptools.NewServer(live.graph, live.document)
			if httpAddr != "" {
				return srv.RunHTTP(ctx, httpAddr)
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not rebuild when the record store changes")
	return cmd
}
