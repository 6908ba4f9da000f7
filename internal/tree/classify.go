package tree

import (
	"fmt"
	"strings"

	"github.com/agentic-research/filetree/internal/graph"
)

// Heuristic decides what an extension-less path is when nothing else says.
type Heuristic int

const (
	// HeuristicExtension treats an extension-less final segment as a
	// directory. This matches how the record store has always been read.
	HeuristicExtension Heuristic = iota
	// HeuristicFile treats an extension-less final segment as a file.
	HeuristicFile
)

// ParseHeuristic maps a configuration value to a Heuristic.
func ParseHeuristic(s string) (Heuristic, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "extension":
		return HeuristicExtension, nil
	case "file":
		return HeuristicFile, nil
	}
	return 0, fmt.Errorf("unknown heuristic %q", s)
}

func (h Heuristic) String() string {
	if h == HeuristicFile {
		return "file"
	}
	return "extension"
}

// Classify decides the kind of the node at path. The first rule that
// applies wins:
//  1. the record's kind hint is a directory label;
//  2. something else in the store lives inside the path;
//  3. the final segment has no "."; the heuristic decides and the result is
//     reported as uncertain.
//
// Anything else is a file.
func Classify(path graph.Path, hint string, contained bool, h Heuristic) (kind graph.Kind, uncertain bool) {
	if graph.IsDirLabel(hint) || contained {
		return graph.KindDirectory, false
	}
	if !strings.Contains(path.Base(), ".") {
		if h == HeuristicFile {
			return graph.KindFile, true
		}
		return graph.KindDirectory, true
	}
	return graph.KindFile, false
}
