package graph

import (
	"sync"

	"github.com/agentic-research/filetree/api"
)

// HotSwapGraph is a thread-safe wrapper that allows swapping the underlying graph instance.
// Long-running commands hand it to readers once and swap in each rebuild.
type HotSwapGraph struct {
	mu      sync.RWMutex
	current Graph
}

func NewHotSwapGraph(initial Graph) *HotSwapGraph {
	return &HotSwapGraph{current: initial}
}

// Swap atomically replaces the current graph with a new one.
// Readers holding nodes from the old graph keep a consistent view of it.
func (h *HotSwapGraph) Swap(newGraph Graph) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = newGraph
}

// Current returns the graph readers currently see.
func (h *HotSwapGraph) Current() Graph {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// GetNode delegates to current graph.
func (h *HotSwapGraph) GetNode(id string) (*Node, error) {
	return h.Current().GetNode(id)
}

// ListChildren delegates to current graph.
func (h *HotSwapGraph) ListChildren(id string) ([]string, error) {
	return h.Current().ListChildren(id)
}

// Lookup delegates to current graph.
func (h *HotSwapGraph) Lookup(p Path) (*Node, error) {
	return h.Current().Lookup(p)
}

// Stats delegates to current graph.
func (h *HotSwapGraph) Stats() api.Metadata {
	return h.Current().Stats()
}

var _ Graph = (*HotSwapGraph)(nil)
