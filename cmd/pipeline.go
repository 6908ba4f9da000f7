package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/agentic-research/filetree/internal/config"
	"github.com/agentic-research/filetree/internal/ingest"
	"github.com/agentic-research/filetree/internal/logging"
	"github.com/agentic-research/filetree/internal/metrics"
	"github.com/agentic-research/filetree/internal/sink"
	"github.com/agentic-research/filetree/internal/tree"
)

var errReadOnlyStore = errors.New("json record stores are read-only")

// openSource opens the configured record store. The returned close
// function is never nil.
func openSource(ctx context.Context, cfg *config.Config) (ingest.Source, func(), error) {
	switch cfg.Store.Driver {
	case "json":
		return ingest.NewJSONSource(cfg.Store.DSN, cfg.Store.Selector), func() {}, nil
	default:
		s, err := openSQL(ctx, cfg)
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() { _ = s.Close() }, nil
	}
}

// openMutator opens the configured store for writing.
func openMutator(ctx context.Context, cfg *config.Config) (*ingest.SQLStore, error) {
	if cfg.Store.Driver == "json" {
		return nil, errReadOnlyStore
	}
	return openSQL(ctx, cfg)
}

func openSQL(ctx context.Context, cfg *config.Config) (*ingest.SQLStore, error) {
	if cfg.Store.Driver == "postgres" {
		return ingest.OpenPostgres(ctx, cfg.Store.DSN, cfg.Store.Table)
	}
	return ingest.OpenSQLite(ctx, cfg.Store.DSN, cfg.Store.Table)
}

func buildOptions(cfg *config.Config) (tree.Options, error) {
	h, err := tree.ParseHeuristic(cfg.Build.Heuristic)
	if err != nil {
		return tree.Options{}, err
	}
	return tree.Options{Heuristic: h, Workers: cfg.Build.Workers}, nil
}

// sinks returns every configured publish destination.
func sinks(ctx context.Context, cfg *config.Config) (sink.Multi, error) {
	var out sink.Multi
	if cfg.Output.Path != "" {
		f, err := sink.NewOSFile(cfg.Output.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if cfg.Output.S3 != nil {
		s, err := sink.NewS3(ctx, *cfg.Output.S3)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// buildTree loads the store and builds, without publishing.
func buildTree(ctx context.Context, cfg *config.Config) (*tree.Result, error) {
	opts, err := buildOptions(cfg)
	if err != nil {
		return nil, err
	}
	src, closeSrc, err := openSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeSrc()
	return tree.Build(ctx, src, opts)
}

// rebuild builds and publishes. The result is returned even when
// publishing fails, so long-running commands can still serve it.
func rebuild(ctx context.Context, cfg *config.Config) (*tree.Result, []byte, error) {
	res, err := buildTree(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	doc, err := res.JSON()
	if err != nil {
		return res, nil, fmt.Errorf("%w: %v", sink.ErrSerialization, err)
	}
	out, err := sinks(ctx, cfg)
	if err != nil {
		return res, doc, err
	}
	return res, doc, out.Publish(ctx, doc)
}

// serveMetrics exposes /metrics on addr until ctx is cancelled. An empty
// addr disables it.
func serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	go func() {
		logging.Info("metrics listening", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server failed", logging.Err(err))
		}
	}()
}
