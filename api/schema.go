package api

// Tree is the serialized form of a built file tree.
// It is the document written to disk, uploaded to object storage,
// and exposed as _tree.json on mounts.
type Tree struct {
	// Nodes maps node id to node.
	Nodes map[string]Node `json:"nodes"`
	// AdjacencyList maps a parent id to its ordered child ids.
	// Only parents with at least one child appear.
	AdjacencyList map[string][]string `json:"adjacency_list"`
	// RootIDs lists nodes without a resolvable parent, ordered by name.
	RootIDs []string `json:"root_ids"`
	// Metadata summarizes the tree.
	Metadata Metadata `json:"metadata"`
}

// Node is a single file or directory.
type Node struct {
	ID string `json:"id"`
	// PathAbs is the canonical "|"-delimited path, not an OS-native path.
	PathAbs      string   `json:"path_abs"`
	ParentID     *string  `json:"parent_id"`
	Name         string   `json:"name"`
	IsDir        int      `json:"is_dir"` // 0 or 1
	Ext          string   `json:"ext"`
	SizeBytes    *int64   `json:"size_bytes"`
	WhenCreated  *float64 `json:"when_created"`
	WhenModified *float64 `json:"when_modified"`
	IsSynthetic  bool     `json:"is_synthetic"`
}

// Metadata carries summary counters for a tree.
type Metadata struct {
	TotalNodes           int `json:"total_nodes"`
	TotalFiles           int `json:"total_files"`
	TotalDirectories     int `json:"total_directories"`
	SyntheticDirectories int `json:"synthetic_directories"`
	// SkippedRecords counts input records dropped because their path was empty.
	SkippedRecords int `json:"skipped_records"`
	// UncertainNodes counts nodes classified by the extension heuristic alone.
	UncertainNodes int `json:"uncertain_nodes"`
}
