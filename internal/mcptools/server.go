// Package mcptools serves a built file tree to agents over the Model Context
// Protocol. Every tool reads from a graph.Graph, so a hot-swapped graph is
// picked up by the next call.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/filetree/internal/graph"
	"github.com/agentic-research/filetree/internal/logging"
	"github.com/agentic-research/filetree/internal/tree"
)

// Version is the MCP server version.
const Version = "0.1.0"

// TreeURI names the resource holding the serialized tree.
const TreeURI = "filetree://tree.json"

const defaultFindLimit = 50

// Server is the MCP server for one tree.
type Server struct {
	graph  graph.Graph
	doc    func() []byte
	server *server.MCPServer
}

// NewServer registers the tree tools over g. doc supplies the serialized
// tree for the tree resource.
func NewServer(g graph.Graph, doc func() []byte) *Server {
	s := &Server{
		graph: g,
		doc:   doc,
		server: server.NewMCPServer("filetree", Version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.server }

// Run serves over stdio until ctx is cancelled or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	return server.NewStdioServer(s.server).Listen(ctx, os.Stdin, os.Stdout)
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is
// cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	go func() {
		<-ctx.Done()
		if err := httpServer.Shutdown(context.Background()); err != nil {
			logging.Warn("mcp http shutdown", logging.Err(err))
		}
	}()
	logging.Info("mcp http listening", logging.String("addr", addr))
	if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerTools() {
	s.server.AddTool(mcp.NewTool("tree_stats",
		mcp.WithDescription("Summary counters of the current file tree"),
	), s.handleStats)

	s.server.AddTool(mcp.NewTool("list_children",
		mcp.WithDescription("List the children of a directory, directories first. Omit path to list the roots."),
		mcp.WithString("path", mcp.Description(`Canonical path, segments separated by "|" or "/"`)),
	), s.handleListChildren)

	s.server.AddTool(mcp.NewTool("get_node",
		mcp.WithDescription("Return one node by canonical path or id"),
		mcp.WithString("path", mcp.Description("Canonical path of the node")),
		mcp.WithString("id", mcp.Description("Node id; used when path is empty")),
	), s.handleGetNode)

	s.server.AddTool(mcp.NewTool("find",
		mcp.WithDescription("Find nodes whose name contains the query, ignoring case"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Substring to look for")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 50)")),
	), s.handleFind)
}

func (s *Server) registerResources() {
	s.server.AddResource(mcp.NewResource(TreeURI, "tree",
		mcp.WithResourceDescription("The serialized file tree"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{mcp.TextResourceContents{
			URI:      TreeURI,
			MIMEType: "application/json",
			Text:     string(s.doc()),
		}}, nil
	})
}

// Entry is one line of a directory listing.
type Entry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path_abs"`
	IsDir     bool   `json:"is_dir"`
	Synthetic bool   `json:"is_synthetic"`
}

func entryOf(n *graph.Node) Entry {
	return Entry{
		ID:        n.ID,
		Name:      n.Name,
		Path:      n.Path.String(),
		IsDir:     n.IsDir(),
		Synthetic: n.Synthetic,
	}
}

func (s *Server) handleStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.graph.Stats())
}

func (s *Server) handleListChildren(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parentID := ""
	if p := graph.Parse(req.GetString("path", "")); !p.IsZero() {
		n, err := s.graph.Lookup(p)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("no node at %s", p)), nil
		}
		if !n.IsDir() {
			return mcp.NewToolResultError(fmt.Sprintf("%s is not a directory", p)), nil
		}
		parentID = n.ID
	}

	ids, err := s.graph.ListChildren(parentID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		n, err := s.graph.GetNode(id)
		if err != nil {
			continue
		}
		entries = append(entries, entryOf(n))
	}
	return jsonResult(entries)
}

func (s *Server) handleGetNode(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		n   *graph.Node
		err error
	)
	if p := graph.Parse(req.GetString("path", "")); !p.IsZero() {
		n, err = s.graph.Lookup(p)
	} else if id := req.GetString("id", ""); id != "" {
		n, err = s.graph.GetNode(id)
	} else {
		return mcp.NewToolResultError("path or id is required"), nil
	}
	if errors.Is(err, graph.ErrNotFound) {
		return mcp.NewToolResultError("node not found"), nil
	}
	if err != nil {
		return nil, err
	}
	return jsonResult(tree.WireNode(n))
}

func (s *Server) handleFind(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	limit := req.GetInt("limit", defaultFindLimit)

	found := graph.Find(s.graph, query, limit)
	entries := make([]Entry, len(found))
	for i, n := range found {
		entries[i] = entryOf(n)
	}
	return jsonResult(entries)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
