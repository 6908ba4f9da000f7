package tests

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/filetree/api"
	"github.com/agentic-research/filetree/internal/graph"
	"github.com/agentic-research/filetree/internal/ingest"
	"github.com/agentic-research/filetree/internal/nfsmount"
	"github.com/agentic-research/filetree/internal/sink"
	"github.com/agentic-research/filetree/internal/tree"
)

const publishedPath = "/published/tree.json"

func f64(v float64) *float64 { return &v }

// fixture bundles a record store, the published tree, and a writable
// mount view that rebuilds and republishes after every change.
type fixture struct {
	store *ingest.SQLStore
	mem   billy.Filesystem
	out   *sink.File
	live  *graph.HotSwapGraph
	doc   []byte
	gfs   *nfsmount.GraphFS
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := ingest.CreateSQLite(ctx, filepath.Join(t.TempDir(), "index.db"), "Hello")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Insert(ctx,
		ingest.Record{Path: `C:\Users\me\Documents\report.pdf`, Parent: `C:\Users\me\Documents`, KindHint: "pdf", Modified: f64(1.7e9)},
		ingest.Record{Path: `C:\Users\me\Documents\drafts\v1.docx`, Parent: `C:\Users\me\Documents\drafts`},
		ingest.Record{Path: `C:\Users\me\Music`, KindHint: "folder"},
		ingest.Record{Path: ""},
	))

	fx := &fixture{store: store, mem: memfs.New()}
	fx.out = sink.NewFile(fx.mem, publishedPath)

	res := fx.rebuild(t, ctx)
	fx.live = graph.NewHotSwapGraph(res.Store())
	fx.gfs = nfsmount.NewGraphFS(fx.live, func() []byte { return fx.doc })
	fx.gfs.SetMutator(store, func(ctx context.Context) error {
		res, doc, err := fx.build(ctx)
		if err != nil {
			return err
		}
		fx.doc = doc
		fx.live.Swap(res.Store())
		return nil
	})
	return fx
}

// build loads the store, builds, and publishes.
func (fx *fixture) build(ctx context.Context) (*tree.Result, []byte, error) {
	res, err := tree.Build(ctx, fx.store, tree.Options{})
	if err != nil {
		return nil, nil, err
	}
	doc, err := res.JSON()
	if err != nil {
		return nil, nil, err
	}
	return res, doc, sink.Publish(ctx, fx.out, doc)
}

func (fx *fixture) rebuild(t *testing.T, ctx context.Context) *tree.Result {
	t.Helper()
	res, doc, err := fx.build(ctx)
	require.NoError(t, err)
	fx.doc = doc
	return res
}

// published reads the tree document back from the sink's filesystem.
func (fx *fixture) published(t *testing.T) api.Tree {
	t.Helper()
	f, err := fx.mem.Open(publishedPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	require.NoError(t, err)

	var tr api.Tree
	require.NoError(t, json.Unmarshal(data, &tr))
	return tr
}

func nodeAt(tr api.Tree, path string) (api.Node, bool) {
	n, ok := tr.Nodes[graph.NodeID(graph.Parse(path))]
	return n, ok
}

func TestPublishedTreeIsWellFormed(t *testing.T) {
	fx := setup(t)
	tr := fx.published(t)

	// C: Users me Documents report.pdf drafts v1.docx Music
	assert.Equal(t, 8, tr.Metadata.TotalNodes)
	assert.Equal(t, 2, tr.Metadata.TotalFiles)
	assert.Equal(t, 6, tr.Metadata.TotalDirectories)
	assert.Equal(t, 5, tr.Metadata.SyntheticDirectories)
	assert.Equal(t, 1, tr.Metadata.SkippedRecords)
	require.Len(t, tr.RootIDs, 1)

	for id, n := range tr.Nodes {
		assert.Equal(t, id, n.ID)
		if n.ParentID == nil {
			assert.Contains(t, tr.RootIDs, id)
			continue
		}
		_, ok := tr.Nodes[*n.ParentID]
		assert.True(t, ok, "dangling parent for %s", n.PathAbs)
		assert.Contains(t, tr.AdjacencyList[*n.ParentID], id)
	}

	me, ok := nodeAt(tr, "C:|Users|me")
	require.True(t, ok)
	var names []string
	for _, id := range tr.AdjacencyList[me.ID] {
		names = append(names, tr.Nodes[id].Name)
	}
	assert.Equal(t, []string{"Documents", "Music"}, names)

	music, _ := nodeAt(tr, "C:|Users|me|Music")
	assert.False(t, music.IsSynthetic)
	report, _ := nodeAt(tr, "C:|Users|me|Documents|report.pdf")
	assert.Equal(t, "pdf", report.Ext)
	require.NotNil(t, report.WhenModified)
	assert.InDelta(t, 1.7e9, *report.WhenModified, 1e-6)
}

func TestMountServesPublishedDocument(t *testing.T) {
	fx := setup(t)

	f, err := fx.gfs.Open("/" + nfsmount.TreeFile)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.JSONEq(t, string(fx.doc), string(data))

	info, err := fx.gfs.Stat("/C:/Users/me/Documents/report.pdf")
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestMkdirThroughMountRebuilds(t *testing.T) {
	fx := setup(t)

	require.NoError(t, fx.gfs.MkdirAll("/C:/Users/me/Pictures/2024", 0o755))

	info, err := fx.gfs.Stat("/C:/Users/me/Pictures/2024")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	tr := fx.published(t)
	n, ok := nodeAt(tr, "C:|Users|me|Pictures|2024")
	require.True(t, ok)
	assert.False(t, n.IsSynthetic)
	assert.Equal(t, 1, n.IsDir)
}

func TestRenameDirectoryThroughMount(t *testing.T) {
	fx := setup(t)

	require.NoError(t, fx.gfs.Rename("/C:/Users/me/Documents/drafts", "/C:/Users/me/Documents/archive"))

	_, err := fx.gfs.Stat("/C:/Users/me/Documents/archive/v1.docx")
	require.NoError(t, err)
	_, err = fx.gfs.Stat("/C:/Users/me/Documents/drafts")
	assert.Error(t, err)

	tr := fx.published(t)
	_, ok := nodeAt(tr, "C:|Users|me|Documents|drafts")
	assert.False(t, ok)
	_, ok = nodeAt(tr, "C:|Users|me|Documents|archive|v1.docx")
	assert.True(t, ok)
}

func TestRemoveThroughMount(t *testing.T) {
	fx := setup(t)

	require.NoError(t, fx.gfs.Remove("/C:/Users/me/Documents/report.pdf"))
	tr := fx.published(t)
	_, ok := nodeAt(tr, "C:|Users|me|Documents|report.pdf")
	assert.False(t, ok)
	assert.Equal(t, 1, tr.Metadata.TotalFiles)

	records, err := fx.store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRebuildIsDeterministic(t *testing.T) {
	fx := setup(t)
	first := append([]byte(nil), fx.doc...)

	fx.rebuild(t, context.Background())
	assert.Equal(t, string(first), string(fx.doc))
}
