package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/filetree/internal/logging"
	"github.com/agentic-research/filetree/internal/nfsmount"
)

func newMountCmd(opts *options) *cobra.Command {
	var (
		writable bool
		noWatch  bool
	)
	cmd := &cobra.Command{
		Use:   "mount [mountpoint]",
		Short: "Serve the tree over NFS and mount it",
		Long: `Serve the built tree over NFS and mount it read-only. Directories appear
as directories and every file reads as the JSON of its node. /_tree.json
holds the whole tree. With --writable, mkdir, rename and rm change the
record store and trigger a rebuild.

Without a mount point one is created under the system temp directory and
listed by "filetree mounts".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg
			w := cmd.OutOrStdout()

			mountPoint := ""
			if len(args) == 1 {
				mountPoint = args[0]
			} else {
				dir, err := mountsDir()
				if err != nil {
					return err
				}
				mountPoint = filepath.Join(dir, generateMountName(cfg.Store.DSN))
			}
			mountPoint, err := filepath.Abs(mountPoint)
			if err != nil {
				return fmt.Errorf("resolve mount point: %w", err)
			}
			if err := os.MkdirAll(mountPoint, 0o755); err != nil {
				return fmt.Errorf("create mount point: %w", err)
			}

			res, doc, err := rebuild(ctx, cfg)
			if res == nil {
				return err
			}
			if err != nil {
				logging.Warn("publish failed, serving the fresh build anyway", logging.Err(err))
			}
			live := newLiveTree(res, doc)

			gfs := nfsmount.NewGraphFS(live.graph, live.document)
			if writable {
				store, err := openMutator(ctx, cfg)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				gfs.SetMutator(store, func(ctx context.Context) error {
					res, doc, err := rebuild(ctx, cfg)
					if res != nil && doc != nil {
						live.update(res, doc)
					}
					return err
				})
			}

			if !noWatch {
				watcher, err := newStoreWatcher(cfg, live.update)
				if err != nil {
					logging.Warn("not watching record store", logging.Err(err))
				} else {
					go func() {
						if err := watcher.Run(ctx); err != nil {
							logging.Error("watcher stopped", logging.Err(err))
						}
					}()
				}
			}
			serveMetrics(ctx, cfg.Metrics.Addr)

			srv, err := nfsmount.NewServer(gfs)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Close() }()

			if err := nfsmount.Mount(srv.Port(), mountPoint, writable); err != nil {
				return err
			}
			meta := &MountMetadata{
				PID:        os.Getpid(),
				Store:      cfg.Store.DSN,
				Table:      cfg.Store.Table,
				MountPoint: mountPoint,
				Port:       srv.Port(),
				Timestamp:  time.Now(),
				Writable:   writable,
			}
			if err := saveMountMetadata(meta); err != nil {
				logging.Warn("could not write mount sidecar", logging.Err(err))
			}
			defer func() { _ = os.Remove(sidecarPath(mountPoint)) }()

			fmt.Fprintf(w, "Mounted %d nodes at %s (nfs port %d). Press Ctrl+C to unmount.\n",
				res.Metadata.TotalNodes, mountPoint, srv.Port())
			<-ctx.Done()

			fmt.Fprintln(w, "Unmounting...")
			return nfsmount.Unmount(mountPoint)
		},
	}
	cmd.Flags().BoolVarP(&writable, "writable", "w", false, "allow mkdir, rename and rm through the mount")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not rebuild when the record store changes")
	return cmd
}
