package tree

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/filetree/api"
	"github.com/agentic-research/filetree/internal/graph"
)

// ordinals assigns each node id a dense index in sorted id order, used as
// the bitmap member for that node.
func ordinals(nodes map[string]*graph.Node) []string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Assemble links every node to its parent and orders the result. A node
// whose parent is missing from nodes is a root. Children are kept in sets
// while linking, so a node can never be listed twice.
func Assemble(nodes map[string]*graph.Node) (adjacency map[string][]string, roots []string) {
	ids := ordinals(nodes)
	sets := make(map[string]*roaring.Bitmap)
	roots = []string{}

	for i, id := range ids {
		n := nodes[id]
		if n.ParentID != "" && n.ParentID != id {
			if _, ok := nodes[n.ParentID]; ok {
				bm, exists := sets[n.ParentID]
				if !exists {
					bm = roaring.New()
					sets[n.ParentID] = bm
				}
				bm.Add(uint32(i))
				continue
			}
		}
		roots = append(roots, id)
	}

	adjacency = make(map[string][]string, len(sets))
	for parent, bm := range sets {
		children := make([]string, 0, bm.GetCardinality())
		it := bm.Iterator()
		for it.HasNext() {
			children = append(children, ids[it.Next()])
		}
		sort.Slice(children, func(i, j int) bool {
			return childLess(nodes[children[i]], nodes[children[j]])
		})
		adjacency[parent] = children
	}
	sort.Slice(roots, func(i, j int) bool {
		return nameLess(nodes[roots[i]], nodes[roots[j]])
	})
	return adjacency, roots
}

// childLess orders siblings: directories first, then by name ignoring case.
func childLess(a, b *graph.Node) bool {
	if a.IsDir() != b.IsDir() {
		return a.IsDir()
	}
	return nameLess(a, b)
}

// nameLess orders by case-insensitive name. Exact name and then id break
// ties, so the order is total.
func nameLess(a, b *graph.Node) bool {
	la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if la != lb {
		return la < lb
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

// summarize counts the tree and lists uncertain node ids in id order.
func summarize(nodes map[string]*graph.Node, skipped int) (api.Metadata, []string) {
	ids := ordinals(nodes)
	dirs, synthetic, uncertain := roaring.New(), roaring.New(), roaring.New()
	for i, id := range ids {
		n := nodes[id]
		if n.IsDir() {
			dirs.Add(uint32(i))
		}
		if n.Synthetic {
			synthetic.Add(uint32(i))
		}
		if n.Uncertain {
			uncertain.Add(uint32(i))
		}
	}

	var uncertainIDs []string
	it := uncertain.Iterator()
	for it.HasNext() {
		uncertainIDs = append(uncertainIDs, ids[it.Next()])
	}

	return api.Metadata{
		TotalNodes:           len(ids),
		TotalFiles:           len(ids) - int(dirs.GetCardinality()),
		TotalDirectories:     int(dirs.GetCardinality()),
		SyntheticDirectories: int(roaring.And(synthetic, dirs).GetCardinality()),
		SkippedRecords:       skipped,
		UncertainNodes:       int(uncertain.GetCardinality()),
	}, uncertainIDs
}
