package ingest

import (
	"context"
	"errors"
)

var (
	// ErrStoreUnavailable means the store could not be opened or queried.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrTableMissing means the store is reachable but holds no record table,
	// typically because nothing has been indexed yet.
	ErrTableMissing = errors.New("record table missing")

	ErrNotFound    = errors.New("no matching records")
	ErrExists      = errors.New("path already exists")
	ErrInvalidName = errors.New("invalid name")
	ErrInvalidPath = errors.New("invalid path")
)

// Record is one row of the record store: a file or directory some indexer
// has seen. Only Path is required; everything else may be empty or nil.
type Record struct {
	Path     string // platform-native path
	Parent   string // declared parent, possibly inconsistent with Path
	Name     string
	KindHint string   // free-text type label, e.g. "folder" or "pdf"
	Created  *float64 // seconds since epoch
	Modified *float64
	Size     *int64
}

// Source loads the full record collection as one snapshot.
// Order of the returned records carries no meaning.
type Source interface {
	Load(ctx context.Context) ([]Record, error)
}

// Mutator changes records in place. Every successful mutation must be
// followed by a full rebuild.
type Mutator interface {
	CreateFolder(ctx context.Context, parent, name string) (path string, existed bool, err error)
	Rename(ctx context.Context, oldPath, newName string) (newPath string, err error)
	Delete(ctx context.Context, path string, recursive bool) (removed int, err error)
}
