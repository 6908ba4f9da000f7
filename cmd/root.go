// Package cmd implements the filetree command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentic-research/filetree/internal/config"
	"github.com/agentic-research/filetree/internal/logging"
)

// options holds the global flags. Flags that were set override the
// configuration file and environment.
type options struct {
	configPath string
	driver     string
	db         string
	table      string
	output     string
	heuristic  string
	logLevel   string
	workers    int

	cfg *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "filetree",
		Short:         "Rebuild a consistent file tree from a flat record table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", os.Getenv("FILETREE_CONFIG"), "HCL configuration file")
	f.StringVar(&opts.driver, "driver", "", "record store driver: sqlite, postgres or json")
	f.StringVarP(&opts.db, "db", "d", "", "record store path or connection string")
	f.StringVar(&opts.table, "table", "", "record table name")
	f.StringVarP(&opts.output, "output", "o", "", "serialized tree output path")
	f.StringVar(&opts.heuristic, "heuristic", "", "classification of extension-less names: extension or file")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	f.IntVar(&opts.workers, "workers", 0, "build parallelism (0 = GOMAXPROCS)")

	root.AddCommand(
		newBuildCmd(opts),
		newShowCmd(opts),
		newStatsCmd(opts),
		newMkdirCmd(opts),
		newMvCmd(opts),
		newRmCmd(opts),
		newWatchCmd(opts),
		newMountCmd(opts),
		newMountsCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// load resolves the configuration and starts logging.
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("driver", &cfg.Store.Driver, o.driver)
	override("db", &cfg.Store.DSN, o.db)
	override("table", &cfg.Store.Table, o.table)
	override("output", &cfg.Output.Path, o.output)
	override("heuristic", &cfg.Build.Heuristic, o.heuristic)
	override("log-level", &cfg.Log.Level, o.logLevel)
	if flags.Changed("workers") {
		cfg.Build.Workers = o.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	o.cfg = cfg
	logging.Debug("configuration loaded",
		logging.String("driver", cfg.Store.Driver),
		logging.String("dsn", cfg.Store.DSN),
		logging.String("output", cfg.Output.Path),
		logging.String("heuristic", cfg.Build.Heuristic),
		logging.Int("workers", cfg.Build.Workers))
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	_ = logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
