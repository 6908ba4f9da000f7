package tree

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/filetree/internal/graph"
	"github.com/agentic-research/filetree/internal/ingest"
)

// ErrMalformedRecord marks a record whose path normalizes to nothing.
// Such records are skipped, never fatal.
var ErrMalformedRecord = errors.New("malformed record")

// Skip describes an input record the build dropped.
type Skip struct {
	Raw    string
	Reason error
}

// entry is a record with its paths normalized.
type entry struct {
	path   graph.Path
	parent graph.Path // declared parent; zero when absent
	rec    ingest.Record
}

// minChunk keeps tiny inputs on one goroutine.
const minChunk = 256

// fanOut calls fn for every index in [0, n) across at most workers
// goroutines. fn must only touch state owned by its index.
func fanOut(ctx context.Context, n, workers int, fn func(i int)) error {
	if n == 0 {
		return ctx.Err()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := max((n+workers-1)/workers, minChunk)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}

// prepare normalizes every record, drops the malformed ones and orders the
// rest so later phases see the same sequence whatever order the store
// returned.
func prepare(ctx context.Context, records []ingest.Record, workers int) ([]entry, []Skip, error) {
	all := make([]entry, len(records))
	err := fanOut(ctx, len(records), workers, func(i int) {
		all[i] = entry{
			path:   graph.Normalize(records[i].Path),
			parent: graph.Normalize(records[i].Parent),
			rec:    records[i],
		}
	})
	if err != nil {
		return nil, nil, err
	}

	entries := make([]entry, 0, len(all))
	var skipped []Skip
	for _, e := range all {
		if e.path.IsZero() {
			skipped = append(skipped, Skip{Raw: e.rec.Path, Reason: ErrMalformedRecord})
			continue
		}
		if e.parent.Equal(e.path) {
			e.parent = nil
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return compareEntries(&entries[i], &entries[j]) < 0
	})
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Raw < skipped[j].Raw })
	return entries, skipped, nil
}

// compareEntries is a total order over everything that reaches the output,
// so equal entries are interchangeable.
func compareEntries(a, b *entry) int {
	if c := a.path.Compare(b.path); c != 0 {
		return c
	}
	if c := a.parent.Compare(b.parent); c != 0 {
		return c
	}
	if c := strings.Compare(a.rec.Name, b.rec.Name); c != 0 {
		return c
	}
	if c := strings.Compare(a.rec.KindHint, b.rec.KindHint); c != 0 {
		return c
	}
	if c := compareOptional(a.rec.Created, b.rec.Created); c != 0 {
		return c
	}
	if c := compareOptional(a.rec.Modified, b.rec.Modified); c != 0 {
		return c
	}
	return compareOptional(a.rec.Size, b.rec.Size)
}

func compareOptional[T int64 | float64](a, b *T) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

// InferDirectories returns every directory the given paths imply: each
// strict ancestor of a record path, each declared parent and the ancestors
// of those declared parents. The result is
// sorted and holds one path per case-insensitive identity, spelled the way
// that sorts first.
func InferDirectories(paths, parents []graph.Path) []graph.Path {
	var candidates []graph.Path
	for _, p := range paths {
		candidates = append(candidates, p.Ancestors()...)
	}
	for _, p := range parents {
		if !p.IsZero() {
			candidates = append(candidates, p)
			candidates = append(candidates, p.Ancestors()...)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Compare(candidates[j]) < 0
	})

	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0]
	for _, p := range candidates {
		k := p.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Synthesize builds placeholder directories for every required path that
// no record covers. present holds the keys of record paths.
func Synthesize(required []graph.Path, present map[string]struct{}) []*graph.Node {
	var out []*graph.Node
	for _, p := range required {
		if _, ok := present[p.Key()]; ok {
			continue
		}
		out = append(out, BuildNode(p, p.Parent(), nil, graph.KindDirectory, false))
	}
	return out
}

// effectiveParent prefers the declared parent, but only when it is shorter
// than the path itself. Every parent edge then shortens the path, so the
// parent relation cannot form a cycle.
func effectiveParent(e *entry) graph.Path {
	if !e.parent.IsZero() && len(e.parent) < len(e.path) {
		return e.parent
	}
	return e.path.Parent()
}
