package sink

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// File writes the document to a path on a billy filesystem. The bytes go to
// a temporary sibling first and are renamed into place, so readers see
// either the old document or the new one.
type File struct {
	fs   billy.Filesystem
	path string
}

// NewFile returns a sink writing path inside fs.
func NewFile(fs billy.Filesystem, path string) *File {
	return &File{fs: fs, path: path}
}

// NewOSFile returns a sink writing path on the local disk.
func NewOSFile(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrSerialization, path, err)
	}
	return NewFile(osfs.New("/"), abs), nil
}

func (f *File) String() string { return "file:" + f.path }

// Publish implements Sink.
func (f *File) Publish(ctx context.Context, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, base := filepath.Split(f.path)
	if dir == "" {
		dir = "."
	}
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrSerialization, dir, err)
	}

	tmp, err := f.fs.TempFile(dir, "."+base+".tmp-")
	if err != nil {
		return fmt.Errorf("%w: temp file in %s: %v", ErrSerialization, dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = f.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(doc); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write %s: %v", ErrSerialization, tmpName, err)
	}
	if s, ok := tmp.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("%w: sync %s: %v", ErrSerialization, tmpName, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrSerialization, tmpName, err)
	}
	if err := f.fs.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", ErrSerialization, f.path, err)
	}
	committed = true
	return nil
}
