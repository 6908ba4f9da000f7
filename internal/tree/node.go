package tree

import (
	"strings"

	"github.com/agentic-research/filetree/internal/graph"
	"github.com/agentic-research/filetree/internal/ingest"
)

// BuildNode converts one record, or a synthetic placeholder when rec is nil,
// into a canonical node. It is a pure function; the caller decides parent,
// kind and where the node goes.
func BuildNode(path, parent graph.Path, rec *ingest.Record, kind graph.Kind, uncertain bool) *graph.Node {
	n := &graph.Node{
		ID:        graph.NodeID(path),
		Path:      path,
		Kind:      kind,
		Uncertain: uncertain,
	}
	if !parent.IsZero() {
		n.ParentID = graph.NodeID(parent)
	}

	if rec == nil {
		n.Name = path.Base()
		n.Synthetic = true
		return n
	}

	n.Name = rec.Name
	if strings.TrimSpace(n.Name) == "" {
		n.Name = path.Base()
	}
	if !kind.IsDir() {
		n.Ext = graph.Extension(n.Name)
	}
	n.Size = rec.Size
	n.Created = knownTime(rec.Created)
	n.Modified = knownTime(rec.Modified)
	return n
}

// knownTime drops zero timestamps, which stores use to mean unknown.
func knownTime(ts *float64) *float64 {
	if ts == nil || *ts == 0 {
		return nil
	}
	v := *ts
	return &v
}
