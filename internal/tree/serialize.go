package tree

import (
	"encoding/json"
	"fmt"

	"github.com/agentic-research/filetree/api"
	"github.com/agentic-research/filetree/internal/graph"
)

// Serialize produces the wire form of an assembled tree. Parent ids that
// do not resolve inside nodes are written as null.
func Serialize(nodes map[string]*graph.Node, adjacency map[string][]string, roots []string, meta api.Metadata) *api.Tree {
	t := &api.Tree{
		Nodes:         make(map[string]api.Node, len(nodes)),
		AdjacencyList: make(map[string][]string, len(adjacency)),
		RootIDs:       append([]string{}, roots...),
		Metadata:      meta,
	}
	for id, n := range nodes {
		w := WireNode(n)
		if w.ParentID != nil {
			if _, ok := nodes[*w.ParentID]; !ok {
				w.ParentID = nil
			}
		}
		t.Nodes[id] = w
	}
	for parent, children := range adjacency {
		t.AdjacencyList[parent] = append([]string{}, children...)
	}
	return t
}

// WireNode converts one node to its serialized form.
func WireNode(n *graph.Node) api.Node {
	w := api.Node{
		ID:           n.ID,
		PathAbs:      n.Path.String(),
		Name:         n.Name,
		Ext:          n.Ext,
		SizeBytes:    n.Size,
		WhenCreated:  n.Created,
		WhenModified: n.Modified,
		IsSynthetic:  n.Synthetic,
	}
	if n.ParentID != "" {
		parent := n.ParentID
		w.ParentID = &parent
	}
	if n.IsDir() {
		w.IsDir = 1
	}
	return w
}

// Marshal encodes a tree as indented JSON. Map keys are sorted by the
// encoder, so equal trees encode to identical bytes.
func Marshal(t *api.Tree) ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tree: %w", err)
	}
	return append(data, '\n'), nil
}
