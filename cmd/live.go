package cmd

import (
	"sync/atomic"

	"github.com/agentic-research/filetree/internal/graph"
	"github.com/agentic-research/filetree/internal/tree"
)

// liveTree is the tree a long-running command serves. Each rebuild swaps in
// a new snapshot; readers never see a half-applied build.
type liveTree struct {
	graph *graph.HotSwapGraph
	doc   atomic.Pointer[[]byte]
}

func newLiveTree(res *tree.Result, doc []byte) *liveTree {
	lt := &liveTree{graph: graph.NewHotSwapGraph(res.Store())}
	lt.doc.Store(&doc)
	return lt
}

func (lt *liveTree) update(res *tree.Result, doc []byte) {
	lt.graph.Swap(res.Store())
	lt.doc.Store(&doc)
}

func (lt *liveTree) document() []byte {
	return *lt.doc.Load()
}
