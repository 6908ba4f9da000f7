// Package tree rebuilds a consistent file tree from a flat, untrusted record
// collection. Each build is a pipeline of pure phases:
//
//	prepare     normalize, drop malformed records, order deterministically
//	infer       compute every directory the records imply
//	synthesize  placeholder nodes for implied directories nobody recorded
//	materialize one node per record, upserted over the placeholders
//	assemble    ordered adjacency and roots
//
// The builder keeps no state between builds.
package tree

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-research/filetree/api"
	"github.com/agentic-research/filetree/internal/graph"
	"github.com/agentic-research/filetree/internal/ingest"
	"github.com/agentic-research/filetree/internal/logging"
	"github.com/agentic-research/filetree/internal/metrics"
)

// Options tunes a build.
type Options struct {
	Heuristic Heuristic
	Workers   int // parallelism of per-record phases; 0 means GOMAXPROCS
}

// Result is one finished build. It is not modified after Build returns.
type Result struct {
	BuildID   string
	Nodes     map[string]*graph.Node
	Adjacency map[string][]string
	Roots     []string
	Metadata  api.Metadata
	Skipped   []Skip
	Uncertain []string // ids classified by the extension heuristic alone
	Records   int
	Duration  time.Duration
}

// Build loads a snapshot from src and builds the tree. Only the load can
// fail; its error keeps the store's error kind.
func Build(ctx context.Context, src ingest.Source, opts Options) (*Result, error) {
	start := time.Now()
	buildID := uuid.NewString()
	logging.Debug("build started", logging.String("build_id", buildID))

	records, err := src.Load(ctx)
	if err != nil {
		metrics.RecordBuild(err, time.Since(start), 0, 0, metrics.TreeSize{})
		logging.Error("build failed", logging.String("build_id", buildID), logging.Err(err))
		return nil, fmt.Errorf("load records: %w", err)
	}

	res, err := FromRecords(ctx, records, opts)
	if err != nil {
		metrics.RecordBuild(err, time.Since(start), len(records), 0, metrics.TreeSize{})
		return nil, err
	}
	res.BuildID = buildID
	res.Duration = time.Since(start)

	m := res.Metadata
	metrics.RecordBuild(nil, res.Duration, res.Records, m.SkippedRecords, metrics.TreeSize{
		Files:       m.TotalFiles,
		Directories: m.TotalDirectories,
		Synthetic:   m.SyntheticDirectories,
		Uncertain:   m.UncertainNodes,
	})
	for _, s := range res.Skipped {
		logging.Warn("skipped record", logging.String("build_id", buildID),
			logging.String("path", s.Raw), logging.Err(s.Reason))
	}
	logging.Info("build finished",
		logging.String("build_id", buildID),
		logging.Int("records", res.Records),
		logging.Int("nodes", m.TotalNodes),
		logging.Int("synthetic", m.SyntheticDirectories),
		logging.Int("skipped", m.SkippedRecords),
		logging.Int("uncertain", m.UncertainNodes),
		logging.Duration("duration", res.Duration),
	)
	return res, nil
}

// FromRecords runs the pipeline over records already in memory. It fails
// only when ctx is cancelled.
func FromRecords(ctx context.Context, records []ingest.Record, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, skipped, err := prepare(ctx, records, opts.Workers)
	if err != nil {
		return nil, err
	}

	paths := make([]graph.Path, len(entries))
	parents := make([]graph.Path, len(entries))
	present := make(map[string]struct{}, len(entries))
	for i := range entries {
		paths[i] = entries[i].path
		parents[i] = entries[i].parent
		present[entries[i].path.Key()] = struct{}{}
	}
	required := InferDirectories(paths, parents)

	nodes := make(map[string]*graph.Node, len(required)+len(entries))
	for _, n := range Synthesize(required, present) {
		nodes[n.ID] = n
	}

	built, err := materialize(ctx, entries, required, opts)
	if err != nil {
		return nil, err
	}
	// Upsert in entry order: the last entry for an id wins.
	for _, n := range built {
		nodes[n.ID] = n
	}

	adjacency, roots := Assemble(nodes)
	meta, uncertain := summarize(nodes, len(skipped))
	for _, id := range uncertain {
		logging.Debug("classified by extension heuristic",
			logging.String("path", nodes[id].Path.String()),
			logging.String("kind", nodes[id].Kind.String()),
			logging.String("heuristic", opts.Heuristic.String()))
	}

	return &Result{
		Nodes:     nodes,
		Adjacency: adjacency,
		Roots:     roots,
		Metadata:  meta,
		Skipped:   skipped,
		Uncertain: uncertain,
		Records:   len(records),
	}, nil
}

// materialize builds one node per entry, in parallel, keeping entry order.
// A path counts as containing something when any record implies it as a
// directory, which is exactly the required set.
func materialize(ctx context.Context, entries []entry, required []graph.Path, opts Options) ([]*graph.Node, error) {
	contained := make(map[string]struct{}, len(required))
	for _, p := range required {
		contained[p.Key()] = struct{}{}
	}

	out := make([]*graph.Node, len(entries))
	err := fanOut(ctx, len(entries), opts.Workers, func(i int) {
		e := &entries[i]
		_, inside := contained[e.path.Key()]
		kind, uncertain := Classify(e.path, e.rec.KindHint, inside, opts.Heuristic)
		out[i] = BuildNode(e.path, effectiveParent(e), &e.rec, kind, uncertain)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Tree returns the serialized form of the build.
func (r *Result) Tree() *api.Tree {
	return Serialize(r.Nodes, r.Adjacency, r.Roots, r.Metadata)
}

// JSON returns the build encoded for publication.
func (r *Result) JSON() ([]byte, error) {
	return Marshal(r.Tree())
}

// Store returns a navigable snapshot of the build.
func (r *Result) Store() *graph.MemoryStore {
	s := graph.NewMemoryStore()
	for _, id := range r.Roots {
		s.AddRoot(r.Nodes[id])
	}
	for _, n := range r.Nodes {
		s.AddNode(n)
	}
	for parent, children := range r.Adjacency {
		s.SetChildren(parent, children)
	}
	s.SetStats(r.Metadata)
	return s
}
