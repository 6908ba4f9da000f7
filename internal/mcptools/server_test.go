package mcptools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/filetree/api"
	"github.com/agentic-research/filetree/internal/graph"
	"github.com/agentic-research/filetree/internal/ingest"
	"github.com/agentic-research/filetree/internal/tree"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	res, err := tree.FromRecords(context.Background(), []ingest.Record{
		{Path: "/srv/data/raw/a.csv"},
		{Path: "/srv/data/raw/B.csv"},
		{Path: "/srv/data/readme.md"},
		{Path: "/srv/logs", KindHint: "folder"},
	}, tree.Options{})
	require.NoError(t, err)
	doc, err := res.JSON()
	require.NoError(t, err)
	return NewServer(res.Store(), func() []byte { return doc })
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleStats(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleStats(context.Background(), call(nil))
	require.NoError(t, err)

	var meta api.Metadata
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &meta))
	assert.Equal(t, 7, meta.TotalNodes)
	assert.Equal(t, 3, meta.TotalFiles)
	assert.Equal(t, 3, meta.SyntheticDirectories)
}

func TestHandleListChildren(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	t.Run("roots", func(t *testing.T) {
		res, err := s.handleListChildren(ctx, call(nil))
		require.NoError(t, err)
		var entries []Entry
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "srv", entries[0].Name)
		assert.True(t, entries[0].Synthetic)
	})

	t.Run("directory", func(t *testing.T) {
		res, err := s.handleListChildren(ctx, call(map[string]any{"path": "SRV|data"}))
		require.NoError(t, err)
		var entries []Entry
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, "raw", entries[0].Name)
		assert.Equal(t, "readme.md", entries[1].Name)
	})

	t.Run("file", func(t *testing.T) {
		res, err := s.handleListChildren(ctx, call(map[string]any{"path": "srv/data/readme.md"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})

	t.Run("missing", func(t *testing.T) {
		res, err := s.handleListChildren(ctx, call(map[string]any{"path": "nope"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})
}

func TestHandleGetNode(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleGetNode(ctx, call(map[string]any{"path": "srv|data|raw|b.CSV"}))
	require.NoError(t, err)
	var n api.Node
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &n))
	assert.Equal(t, "B.csv", n.Name)
	assert.Equal(t, "csv", n.Ext)
	assert.Equal(t, 0, n.IsDir)

	id := graph.NodeID(graph.Parse("srv|logs"))
	res, err = s.handleGetNode(ctx, call(map[string]any{"id": id}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &n))
	assert.Equal(t, "srv|logs", n.PathAbs)

	res, err = s.handleGetNode(ctx, call(map[string]any{"id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleGetNode(ctx, call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleFind(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleFind(ctx, call(map[string]any{"query": "CSV"}))
	require.NoError(t, err)
	var entries []Entry
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "srv|data|raw|B.csv", entries[0].Path)
	assert.Equal(t, "srv|data|raw|a.csv", entries[1].Path)

	res, err = s.handleFind(ctx, call(map[string]any{"query": "csv", "limit": float64(1)}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &entries))
	assert.Len(t, entries, 1)

	res, err = s.handleFind(ctx, call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
