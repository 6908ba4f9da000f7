package graph

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentic-research/filetree/api"
)

var ErrNotFound = errors.New("node not found")

// Kind is the file/directory classification of a node. It is decided once,
// when the node is built, and carried from then on.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) IsDir() bool { return k == KindDirectory }

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Node is the canonical form of one file or directory.
type Node struct {
	ID       string
	Path     Path
	ParentID string // "" for nodes built without a parent
	Name     string
	Kind     Kind
	Ext      string // lowercased, empty for directories

	Size     *int64
	Created  *float64 // seconds since epoch
	Modified *float64

	// Synthetic nodes were inferred from other paths, never observed in the
	// record store.
	Synthetic bool
	// Uncertain nodes were classified by the extension heuristic alone.
	Uncertain bool
}

func (n *Node) IsDir() bool { return n.Kind.IsDir() }

// ModTime returns the modification time, or the zero time when unknown.
func (n *Node) ModTime() time.Time {
	if n.Modified == nil {
		return time.Time{}
	}
	sec := int64(*n.Modified)
	nsec := int64((*n.Modified - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Graph is the read side of a built tree, shared by the mount, the MCP
// server and the CLI renderers.
type Graph interface {
	GetNode(id string) (*Node, error)
	// ListChildren returns ordered child ids; "" lists the roots.
	ListChildren(id string) ([]string, error)
	// Lookup finds the node whose own canonical path is p.
	Lookup(p Path) (*Node, error)
	Stats() api.Metadata
}

// -----------------------------------------------------------------------------
// In-memory snapshot of one build
// -----------------------------------------------------------------------------

type MemoryStore struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	children map[string][]string
	roots    []string
	stats    api.Metadata
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:    make(map[string]*Node),
		children: make(map[string][]string),
		roots:    []string{},
	}
}

// AddRoot registers a node as a top-level root and adds it to the store.
// Callers decide root status; the store applies no heuristic.
func (s *MemoryStore) AddRoot(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
	for _, r := range s.roots {
		if r == n.ID {
			return
		}
	}
	s.roots = append(s.roots, n.ID)
}

// AddNode adds a non-root node to the store.
func (s *MemoryStore) AddNode(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
}

// SetChildren records the ordered children of a parent.
func (s *MemoryStore) SetChildren(parentID string, children []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children[parentID] = children
}

// SetStats records the summary reported by Stats.
func (s *MemoryStore) SetStats(m api.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = m
}

// GetNode implements Graph.
func (s *MemoryStore) GetNode(id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

// ListChildren implements Graph.
func (s *MemoryStore) ListChildren(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" {
		return append([]string(nil), s.roots...), nil
	}
	if _, ok := s.nodes[id]; !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), s.children[id]...), nil
}

// Lookup implements Graph.
func (s *MemoryStore) Lookup(p Path) (*Node, error) {
	if p.IsZero() {
		return nil, ErrNotFound
	}
	return s.GetNode(NodeID(p))
}

// Stats implements Graph.
func (s *MemoryStore) Stats() api.Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Len returns the number of nodes in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Find returns nodes whose name contains query, case-insensitively, ordered
// by canonical path. A limit of zero or less returns every match.
func Find(g Graph, query string, limit int) []*Node {
	query = strings.ToLower(query)
	var out []*Node
	var walk func(id string)
	walk = func(id string) {
		children, err := g.ListChildren(id)
		if err != nil {
			return
		}
		for _, c := range children {
			n, err := g.GetNode(c)
			if err != nil {
				continue
			}
			if strings.Contains(strings.ToLower(n.Name), query) {
				out = append(out, n)
			}
			if n.IsDir() {
				walk(c)
			}
		}
	}
	walk("")
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path.Compare(out[j].Path) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
