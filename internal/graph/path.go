package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Delimiter joins canonical path segments when a path is flattened
// for serialization.
const Delimiter = "|"

// Path is a canonical path held as its ordered segments. Segments never
// contain a platform separator and are never empty. The zero value is the
// empty path, which has no parent and identifies nothing.
type Path []string

// Normalize canonicalizes a raw, platform-native path. Forward and back
// slashes both separate segments; runs of separators collapse and leading or
// trailing separators are dropped. Surrounding whitespace is trimmed first.
// It never fails: empty, blank or separator-only input yields the empty path.
func Normalize(raw string) Path {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	segs := strings.FieldsFunc(raw, isPlatformSeparator)
	if len(segs) == 0 {
		return nil
	}
	return Path(segs)
}

// Parse reads a path typed by a user or taken from a serialized tree.
// Unlike Normalize it also splits on the canonical delimiter.
func Parse(s string) Path {
	segs := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return isPlatformSeparator(r) || r == '|'
	})
	if len(segs) == 0 {
		return nil
	}
	return Path(segs)
}

// NormalizeString is Normalize flattened to the canonical delimited form.
func NormalizeString(raw string) string {
	return Normalize(raw).String()
}

// ParentOf returns the parent of a canonical delimited path, or "" when the
// path has fewer than two segments.
func ParentOf(canonical string) string {
	idx := strings.LastIndex(canonical, Delimiter)
	if idx <= 0 {
		return ""
	}
	return canonical[:idx]
}

func isPlatformSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// String flattens the path with Delimiter.
func (p Path) String() string {
	return strings.Join(p, Delimiter)
}

// Slash flattens the path with forward slashes, the form written back to
// record stores.
func (p Path) Slash() string {
	return strings.Join(p, "/")
}

// IsZero reports whether p is the empty path.
func (p Path) IsZero() bool { return len(p) == 0 }

// Base returns the final segment, or "" for the empty path.
func (p Path) Base() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns p without its final segment. Single-segment paths have no
// parent and return the empty path.
func (p Path) Parent() Path {
	if len(p) < 2 {
		return nil
	}
	return p[:len(p)-1:len(p)-1]
}

// Join returns a new path with name appended. name is normalized, so it may
// itself carry several segments.
func (p Path) Join(name string) Path {
	extra := Normalize(name)
	out := make(Path, 0, len(p)+len(extra))
	out = append(out, p...)
	return append(out, extra...)
}

// Key is the case-insensitive identity of p. Two paths with equal keys
// denote the same node.
func (p Path) Key() string {
	return strings.ToLower(strings.Join(p, "\x00"))
}

// Equal compares paths case-insensitively.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if !strings.EqualFold(p[i], o[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is p or one of its ancestors,
// compared case-insensitively.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) == 0 || len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// Rebase replaces the leading from segments with to. p must have from as a
// prefix.
func (p Path) Rebase(from, to Path) Path {
	out := make(Path, 0, len(to)+len(p)-len(from))
	out = append(out, to...)
	return append(out, p[len(from):]...)
}

// Ancestors returns every strict ancestor of p, nearest first.
func (p Path) Ancestors() []Path {
	if len(p) < 2 {
		return nil
	}
	out := make([]Path, 0, len(p)-1)
	for n := len(p) - 1; n >= 1; n-- {
		out = append(out, p[:n:n])
	}
	return out
}

// Compare orders paths segment by segment, case-sensitively.
func (p Path) Compare(o Path) int {
	for i := 0; i < len(p) && i < len(o); i++ {
		if c := strings.Compare(p[i], o[i]); c != 0 {
			return c
		}
	}
	return len(p) - len(o)
}

// NodeID derives the stable identifier of the node at p: the first 16 bytes
// of a SHA-256 over the lowercased segments, hex encoded. Segments are hashed
// NUL-separated so a segment containing the delimiter cannot collide with two
// shorter segments.
func NodeID(p Path) string {
	sum := sha256.Sum256([]byte(p.Key()))
	return hex.EncodeToString(sum[:16])
}
