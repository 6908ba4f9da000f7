package graph

import (
	"errors"
	"testing"

	"github.com/agentic-research/filetree/api"
)

func newTestStore() *MemoryStore {
	store := NewMemoryStore()
	docs := &Node{ID: NodeID(Path{"docs"}), Path: Path{"docs"}, Name: "docs", Kind: KindDirectory}
	readme := &Node{
		ID: NodeID(Path{"docs", "README.md"}), Path: Path{"docs", "README.md"},
		ParentID: docs.ID, Name: "README.md", Ext: "md",
	}
	notes := &Node{
		ID: NodeID(Path{"docs", "Notes.txt"}), Path: Path{"docs", "Notes.txt"},
		ParentID: docs.ID, Name: "Notes.txt", Ext: "txt",
	}
	store.AddRoot(docs)
	store.AddNode(readme)
	store.AddNode(notes)
	store.SetChildren(docs.ID, []string{notes.ID, readme.ID})
	store.SetStats(api.Metadata{TotalNodes: 3, TotalFiles: 2, TotalDirectories: 1})
	return store
}

func TestMemoryStore_AddRootAndGetNode(t *testing.T) {
	store := newTestStore()

	node, err := store.GetNode(NodeID(Path{"docs"}))
	if err != nil {
		t.Fatalf("GetNode(docs) returned error: %v", err)
	}
	if !node.IsDir() {
		t.Error("docs should be a directory")
	}
}

func TestMemoryStore_GetNodeNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetNode("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ListChildrenRoot(t *testing.T) {
	store := newTestStore()

	roots, err := store.ListChildren("")
	if err != nil {
		t.Fatalf("ListChildren(\"\") returned error: %v", err)
	}
	if len(roots) != 1 || roots[0] != NodeID(Path{"docs"}) {
		t.Errorf("roots = %v, want [docs]", roots)
	}
}

func TestMemoryStore_ListChildrenKeepsOrder(t *testing.T) {
	store := newTestStore()

	children, err := store.ListChildren(NodeID(Path{"docs"}))
	if err != nil {
		t.Fatalf("ListChildren(docs) returned error: %v", err)
	}
	want := []string{NodeID(Path{"docs", "Notes.txt"}), NodeID(Path{"docs", "README.md"})}
	if len(children) != 2 || children[0] != want[0] || children[1] != want[1] {
		t.Errorf("children = %v, want %v", children, want)
	}
}

func TestMemoryStore_ListChildrenReturnsCopy(t *testing.T) {
	store := newTestStore()
	id := NodeID(Path{"docs"})

	children, _ := store.ListChildren(id)
	children[0] = "mutated"

	again, _ := store.ListChildren(id)
	if again[0] == "mutated" {
		t.Error("ListChildren leaked its internal slice")
	}
}

func TestMemoryStore_ListChildrenUnknown(t *testing.T) {
	store := newTestStore()
	if _, err := store.ListChildren("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_FileNodeHasNoChildren(t *testing.T) {
	store := newTestStore()
	children, err := store.ListChildren(NodeID(Path{"docs", "README.md"}))
	if err != nil {
		t.Fatalf("ListChildren(file) returned error: %v", err)
	}
	if len(children) != 0 {
		t.Errorf("file children = %v, want none", children)
	}
}

func TestMemoryStore_LookupIsCaseInsensitive(t *testing.T) {
	store := newTestStore()

	n, err := store.Lookup(Path{"DOCS", "readme.MD"})
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if n.Name != "README.md" {
		t.Errorf("Name = %q, want README.md", n.Name)
	}
	if _, err := store.Lookup(nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(empty) err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_AddRootDeduplicates(t *testing.T) {
	store := NewMemoryStore()
	n := &Node{ID: "a", Name: "a", Kind: KindDirectory}
	store.AddRoot(n)
	store.AddRoot(n)

	roots, _ := store.ListChildren("")
	if len(roots) != 1 {
		t.Errorf("roots = %v, want one entry", roots)
	}
}

func TestFind(t *testing.T) {
	store := newTestStore()

	got := Find(store, "e", 0)
	if len(got) != 2 {
		t.Fatalf("Find(e) = %d nodes, want 2", len(got))
	}
	if got[0].Name != "Notes.txt" || got[1].Name != "README.md" {
		t.Errorf("Find order = %s, %s", got[0].Name, got[1].Name)
	}

	if got := Find(store, "NOTES", 0); len(got) != 1 {
		t.Errorf("Find(NOTES) = %d nodes, want 1", len(got))
	}
	if got := Find(store, "", 1); len(got) != 1 {
		t.Errorf("Find limit ignored: %d nodes", len(got))
	}
}

func TestHotSwapGraph(t *testing.T) {
	first := newTestStore()
	h := NewHotSwapGraph(first)
	if h.Stats().TotalNodes != 3 {
		t.Fatalf("TotalNodes = %d, want 3", h.Stats().TotalNodes)
	}

	h.Swap(NewMemoryStore())
	if h.Stats().TotalNodes != 0 {
		t.Errorf("TotalNodes after swap = %d, want 0", h.Stats().TotalNodes)
	}
	if _, err := h.GetNode(NodeID(Path{"docs"})); !errors.Is(err, ErrNotFound) {
		t.Errorf("old node still visible after swap: %v", err)
	}
}

func TestNodeModTime(t *testing.T) {
	ts := 1700000000.5
	n := &Node{Modified: &ts}
	got := n.ModTime()
	if got.Unix() != 1700000000 || got.Nanosecond() != 500000000 {
		t.Errorf("ModTime = %v", got)
	}
	if !(&Node{}).ModTime().IsZero() {
		t.Error("unknown ModTime should be zero")
	}
}
