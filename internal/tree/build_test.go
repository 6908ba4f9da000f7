package tree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/filetree/api"
	"github.com/agentic-research/filetree/internal/graph"
	"github.com/agentic-research/filetree/internal/ingest"
)

type sliceSource struct {
	records []ingest.Record
	err     error
}

func (s sliceSource) Load(context.Context) ([]ingest.Record, error) {
	return s.records, s.err
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func build(t *testing.T, opts Options, records ...ingest.Record) *Result {
	t.Helper()
	res, err := FromRecords(context.Background(), records, opts)
	require.NoError(t, err)
	return res
}

func idOf(path string) string { return graph.NodeID(graph.Parse(path)) }

func names(res *Result, ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = res.Nodes[id].Name
	}
	return out
}

// assertWellFormed checks the structural guarantees every build makes.
func assertWellFormed(t *testing.T, res *Result) {
	t.Helper()
	listed := map[string]int{}
	for _, n := range res.Nodes {
		if n.ParentID != "" {
			if _, ok := res.Nodes[n.ParentID]; !ok {
				// an unresolved parent makes the node a root
				assert.Contains(t, res.Roots, n.ID)
			}
		}
		for _, anc := range n.Path.Ancestors() {
			assert.Contains(t, res.Nodes, graph.NodeID(anc), "ancestor %s of %s", anc, n.Path)
		}
	}
	for parent, children := range res.Adjacency {
		assert.Contains(t, res.Nodes, parent)
		assert.NotEmpty(t, children)
		for _, c := range children {
			listed[c]++
			assert.Equal(t, parent, res.Nodes[c].ParentID)
		}
	}
	for _, r := range res.Roots {
		listed[r]++
	}
	assert.Len(t, listed, len(res.Nodes), "every node is listed exactly once")
	for id, count := range listed {
		assert.Equal(t, 1, count, id)
	}
}

func TestSyntheticAncestors(t *testing.T) {
	res := build(t, Options{}, ingest.Record{Path: `C:\Users\me\doc.txt`, Name: "doc.txt", Size: i64(12)})
	assertWellFormed(t, res)

	require.Len(t, res.Nodes, 4)
	assert.Equal(t, 3, res.Metadata.SyntheticDirectories)
	assert.Equal(t, 1, res.Metadata.TotalFiles)
	assert.Equal(t, 3, res.Metadata.TotalDirectories)

	for _, p := range []string{"C:", "C:|Users", "C:|Users|me"} {
		n := res.Nodes[idOf(p)]
		require.NotNil(t, n, p)
		assert.True(t, n.Synthetic, p)
		assert.True(t, n.IsDir(), p)
		assert.Nil(t, n.Created)
		assert.Nil(t, n.Size)
	}
	file := res.Nodes[idOf("C:|Users|me|doc.txt")]
	require.NotNil(t, file)
	assert.False(t, file.Synthetic)
	assert.Equal(t, "txt", file.Ext)
	assert.Equal(t, idOf("C:|Users|me"), file.ParentID)
	assert.Equal(t, []string{idOf("C:")}, res.Roots)
}

func TestSiblingOrdering(t *testing.T) {
	res := build(t, Options{},
		ingest.Record{Path: "root/b.txt"},
		ingest.Record{Path: "root/A", KindHint: "folder"},
		ingest.Record{Path: "root/a.txt"},
		ingest.Record{Path: "root/B", KindHint: "folder"},
	)
	assertWellFormed(t, res)
	assert.Equal(t, []string{"A", "B", "a.txt", "b.txt"}, names(res, res.Adjacency[idOf("root")]))
}

func TestRootsOrderedByName(t *testing.T) {
	res := build(t, Options{},
		ingest.Record{Path: "zeta.txt"},
		ingest.Record{Path: "Alpha", KindHint: "folder"},
		ingest.Record{Path: "beta.txt"},
	)
	assert.Equal(t, []string{"Alpha", "beta.txt", "zeta.txt"}, names(res, res.Roots))
}

func TestMalformedRecordsSkipped(t *testing.T) {
	res := build(t, Options{},
		ingest.Record{Path: "///"},
		ingest.Record{Path: ""},
		ingest.Record{Path: `\\`},
		ingest.Record{Path: "   "},
		ingest.Record{Path: "a/b.txt"},
	)
	assertWellFormed(t, res)
	assert.Len(t, res.Nodes, 2)
	assert.Equal(t, 4, res.Metadata.SkippedRecords)
	require.Len(t, res.Skipped, 4)
	for _, s := range res.Skipped {
		assert.ErrorIs(t, s.Reason, ErrMalformedRecord)
	}
	assert.Equal(t, 5, res.Records)
}

func TestSurroundingWhitespaceIsTrimmed(t *testing.T) {
	res := build(t, Options{},
		ingest.Record{Path: ` C:\home\a.txt `},
		ingest.Record{Path: `C:\home\b.txt`},
	)
	assertWellFormed(t, res)
	assert.Equal(t, []string{idOf("C:")}, res.Roots)
	a, ok := res.Nodes[idOf("C:|home|a.txt")]
	require.True(t, ok)
	assert.Equal(t, "a.txt", a.Name)
	assert.Equal(t, "txt", a.Ext)
}

func TestDotFileExtension(t *testing.T) {
	res := build(t, Options{}, ingest.Record{Path: `C:\home\.bashrc`})
	n, ok := res.Nodes[idOf("C:|home|.bashrc")]
	require.True(t, ok)
	assert.False(t, n.IsDir())
	assert.Equal(t, ".bashrc", n.Name)
	assert.Equal(t, "bashrc", n.Ext)
}

func TestBareDriveIsRoot(t *testing.T) {
	res := build(t, Options{}, ingest.Record{Path: `D:\`, KindHint: "folder"})
	require.Len(t, res.Nodes, 1)
	assert.Equal(t, []string{idOf("D:")}, res.Roots)
	n := res.Nodes[idOf("D:")]
	assert.True(t, n.IsDir())
	assert.False(t, n.Synthetic)
	assert.Empty(t, n.ParentID)
}

func TestRealRecordOverridesPlaceholder(t *testing.T) {
	res := build(t, Options{},
		ingest.Record{Path: "proj/src/main.go"},
		ingest.Record{Path: "proj/src", Name: "src", KindHint: "folder", Modified: f64(1700000000)},
	)
	src := res.Nodes[idOf("proj|src")]
	require.NotNil(t, src)
	assert.False(t, src.Synthetic)
	require.NotNil(t, src.Modified)
	assert.Equal(t, 1700000000.0, *src.Modified)
	assert.Equal(t, 1, res.Metadata.SyntheticDirectories)
}

func TestCaseInsensitiveIdentity(t *testing.T) {
	assert.Equal(t, idOf("Foo|Bar.txt"), idOf("foo|bar.TXT"))
	assert.NotEqual(t, graph.NormalizeString("Foo/Bar.txt"), graph.NormalizeString("foo/bar.TXT"))

	res := build(t, Options{},
		ingest.Record{Path: "Foo/Bar.txt"},
		ingest.Record{Path: "foo/bar.TXT"},
	)
	assertWellFormed(t, res)
	assert.Len(t, res.Nodes, 2)
	assert.Len(t, res.Roots, 1)
	// the sorted-first spelling names the synthetic directory
	assert.Equal(t, "Foo", res.Nodes[res.Roots[0]].Name)
}

func TestDuplicatePathLastWins(t *testing.T) {
	res := build(t, Options{},
		ingest.Record{Path: "a/x.txt", Size: i64(2)},
		ingest.Record{Path: "a/x.txt", Size: i64(1)},
	)
	n := res.Nodes[idOf("a|x.txt")]
	require.NotNil(t, n)
	// entries sort by size, so the larger one is processed last
	assert.Equal(t, int64(2), *n.Size)
}

func TestHeuristic(t *testing.T) {
	records := []ingest.Record{
		{Path: "proj/README"},
		{Path: "proj/docs"},
		{Path: "proj/docs/guide.md"},
	}

	res := build(t, Options{Heuristic: HeuristicExtension}, records...)
	assert.True(t, res.Nodes[idOf("proj|README")].IsDir())
	assert.Equal(t, 1, res.Metadata.UncertainNodes)
	assert.Equal(t, []string{idOf("proj|README")}, res.Uncertain)

	res = build(t, Options{Heuristic: HeuristicFile}, records...)
	readme := res.Nodes[idOf("proj|README")]
	assert.False(t, readme.IsDir())
	assert.True(t, readme.Uncertain)
	assert.Empty(t, readme.Ext)
	// containment settles docs regardless of heuristic
	docs := res.Nodes[idOf("proj|docs")]
	assert.True(t, docs.IsDir())
	assert.False(t, docs.Uncertain)
	assert.Equal(t, 1, res.Metadata.UncertainNodes)
}

func TestDeclaredParent(t *testing.T) {
	t.Run("shorter parent is honored", func(t *testing.T) {
		res := build(t, Options{}, ingest.Record{Path: "a/b/c.txt", Parent: "a"})
		assertWellFormed(t, res)
		assert.Equal(t, idOf("a"), res.Nodes[idOf("a|b|c.txt")].ParentID)
		// a|b is still implied by the path itself
		assert.Contains(t, res.Nodes, idOf("a|b"))
		assert.Equal(t, []string{"b", "c.txt"}, names(res, res.Adjacency[idOf("a")]))
	})

	t.Run("deeper parent is ignored but still synthesized", func(t *testing.T) {
		res := build(t, Options{}, ingest.Record{Path: "a/b.txt", Parent: `x\y\z`})
		assertWellFormed(t, res)
		assert.Equal(t, idOf("a"), res.Nodes[idOf("a|b.txt")].ParentID)
		for _, p := range []string{"x", "x|y", "x|y|z"} {
			assert.Contains(t, res.Nodes, idOf(p), p)
		}
		assert.Equal(t, []string{"a", "x"}, names(res, res.Roots))
	})

	t.Run("self parent is dropped", func(t *testing.T) {
		res := build(t, Options{}, ingest.Record{Path: "solo.txt", Parent: "SOLO.TXT"})
		assertWellFormed(t, res)
		assert.Len(t, res.Nodes, 1)
		assert.Equal(t, []string{idOf("solo.txt")}, res.Roots)
	})

	t.Run("declared parent marks a directory", func(t *testing.T) {
		res := build(t, Options{},
			ingest.Record{Path: "v1.0", KindHint: "release"},
			ingest.Record{Path: "v1.0/notes.md", Parent: "v1.0"},
		)
		assert.True(t, res.Nodes[idOf("v1.0")].IsDir())
	})
}

func TestZeroTimestampsAreUnknown(t *testing.T) {
	res := build(t, Options{}, ingest.Record{Path: "f.txt", Created: f64(0), Modified: f64(1.5)})
	n := res.Nodes[idOf("f.txt")]
	assert.Nil(t, n.Created)
	require.NotNil(t, n.Modified)
	assert.Equal(t, 1.5, *n.Modified)
}

func randomRecords(rng *rand.Rand, n int) []ingest.Record {
	dirs := []string{"C:", `C:\Users`, "c:/users/ME", "/srv/data", "srv/Data/raw", "docs"}
	leaves := []string{"a.txt", "B.txt", "README", "notes", "img.PNG", "x.tar.gz"}
	out := make([]ingest.Record, 0, n)
	for i := 0; i < n; i++ {
		d := dirs[rng.Intn(len(dirs))]
		r := ingest.Record{
			Path: fmt.Sprintf("%s/%d/%s", d, rng.Intn(20), leaves[rng.Intn(len(leaves))]),
		}
		if rng.Intn(4) == 0 {
			r.Parent = d
		}
		if rng.Intn(3) == 0 {
			r.Size = i64(rng.Int63n(1 << 20))
		}
		if rng.Intn(5) == 0 {
			r.KindHint = "folder"
		}
		if rng.Intn(10) == 0 {
			r.Path = "//"
		}
		out = append(out, r)
	}
	return out
}

func TestDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	records := randomRecords(rng, 2000)

	first := build(t, Options{Workers: 1}, records...)
	assertWellFormed(t, first)
	want, err := first.JSON()
	require.NoError(t, err)

	t.Run("idempotent", func(t *testing.T) {
		got, err := build(t, Options{Workers: 1}, records...).JSON()
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got))
	})

	t.Run("shuffled input", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			shuffled := append([]ingest.Record(nil), records...)
			rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
			got, err := build(t, Options{Workers: 8}, shuffled...).JSON()
			require.NoError(t, err)
			assert.Equal(t, string(want), string(got))
		}
	})
}

func TestSerializedShape(t *testing.T) {
	res := build(t, Options{}, ingest.Record{Path: "a/b.txt", Size: i64(3)})
	data, err := res.JSON()
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &top))
	assert.Len(t, top, 4)
	for _, k := range []string{"nodes", "adjacency_list", "root_ids", "metadata"} {
		assert.Contains(t, top, k)
	}

	var tree api.Tree
	require.NoError(t, json.Unmarshal(data, &tree))
	root := tree.Nodes[idOf("a")]
	assert.Nil(t, root.ParentID)
	assert.Equal(t, 1, root.IsDir)
	assert.True(t, root.IsSynthetic)
	leaf := tree.Nodes[idOf("a|b.txt")]
	assert.Equal(t, "a|b.txt", leaf.PathAbs)
	require.NotNil(t, leaf.ParentID)
	assert.Equal(t, idOf("a"), *leaf.ParentID)
}

func TestEmptyInput(t *testing.T) {
	res := build(t, Options{})
	data, err := res.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"nodes": {}, "adjacency_list": {}, "root_ids": [],
		"metadata": {"total_nodes": 0, "total_files": 0, "total_directories": 0,
			"synthetic_directories": 0, "skipped_records": 0, "uncertain_nodes": 0}
	}`, string(data))
}

func TestBuildFromSource(t *testing.T) {
	res, err := Build(context.Background(), sliceSource{records: []ingest.Record{{Path: "x/y.txt"}}}, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.BuildID)
	assert.Equal(t, 2, res.Metadata.TotalNodes)

	store := res.Store()
	n, err := store.Lookup(graph.Parse("X|Y.TXT"))
	require.NoError(t, err)
	assert.Equal(t, "y.txt", n.Name)
	roots, err := store.ListChildren("")
	require.NoError(t, err)
	assert.Equal(t, res.Roots, roots)
	assert.Equal(t, res.Metadata, store.Stats())
}

func TestBuildLoadFailure(t *testing.T) {
	_, err := Build(context.Background(), sliceSource{err: ingest.ErrTableMissing}, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingest.ErrTableMissing))
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FromRecords(ctx, []ingest.Record{{Path: "a.txt"}}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
