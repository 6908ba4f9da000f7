package graph

import "strings"

// IsDirLabel reports whether a kind hint explicitly names a directory.
func IsDirLabel(hint string) bool {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "folder", "dir", "directory":
		return true
	}
	return false
}

// Suffix returns the text after the final "." of name, as written. A name
// without a dot has none; ".bashrc" has "bashrc".
func Suffix(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}

// Extension is the lowercased Suffix of name.
func Extension(name string) string {
	return strings.ToLower(Suffix(name))
}
