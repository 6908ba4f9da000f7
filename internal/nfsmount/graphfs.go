// Package nfsmount exposes a built file tree over NFS. It adapts
// graph.Graph to billy.Filesystem for use with willscott/go-nfs.
//
// Directories appear as directories. Every file reads as the JSON of its
// node, and the whole tree is available as /_tree.json.
package nfsmount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/agentic-research/filetree/internal/graph"
	"github.com/agentic-research/filetree/internal/ingest"
	"github.com/agentic-research/filetree/internal/logging"
	"github.com/agentic-research/filetree/internal/tree"
)

var (
	errReadOnly = errors.New("read-only filesystem")
	errCrossDir = errors.New("rename across directories is not supported")
	errNotEmpty = errors.New("directory not empty")
)

// TreeFile is the virtual file at the mount root holding the whole tree.
const TreeFile = "_tree.json"

// RebuildFunc rebuilds the tree after a successful mutation, typically by
// swapping a fresh build into a graph.HotSwapGraph.
type RebuildFunc func(ctx context.Context) error

// GraphFS adapts a graph.Graph to billy.Filesystem.
type GraphFS struct {
	graph     graph.Graph
	doc       func() []byte
	mountTime time.Time

	mutator ingest.Mutator
	rebuild RebuildFunc
}

// NewGraphFS creates a read-only billy.Filesystem over g. doc supplies the
// current serialized tree for /_tree.json and may be nil.
func NewGraphFS(g graph.Graph, doc func() []byte) *GraphFS {
	if doc == nil {
		doc = func() []byte { return []byte("{}\n") }
	}
	return &GraphFS{
		graph:     g,
		doc:       doc,
		mountTime: time.Now(),
	}
}

// SetMutator enables mkdir, rename and remove. Each one changes the record
// store through m and then calls rebuild.
func (fs *GraphFS) SetMutator(m ingest.Mutator, rebuild RebuildFunc) {
	fs.mutator = m
	fs.rebuild = rebuild
}

func (fs *GraphFS) writable() bool { return fs.mutator != nil }

// --- billy.Basic ---

// Create is refused: the record store only learns about files from its
// indexer.
func (fs *GraphFS) Create(filename string) (billy.File, error) {
	return nil, errReadOnly
}

func (fs *GraphFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *GraphFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	filename = cleanPath(filename)
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, errReadOnly
	}

	if filename == "/"+TreeFile {
		return &bytesFile{name: TreeFile, data: fs.doc()}, nil
	}

	node, err := fs.resolve(filename)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrNotExist}
	}
	if node.IsDir() {
		return nil, &os.PathError{Op: "open", Path: filename, Err: fmt.Errorf("is a directory")}
	}
	return &bytesFile{name: node.Path.Base(), data: nodeContent(node)}, nil
}

func (fs *GraphFS) Stat(filename string) (os.FileInfo, error) {
	return fs.Lstat(filename)
}

// Rename renames a node in place. Moving between directories is refused
// because records only support renaming.
func (fs *GraphFS) Rename(oldpath, newpath string) error {
	if !fs.writable() {
		return errReadOnly
	}
	oldpath, newpath = cleanPath(oldpath), cleanPath(newpath)
	if path.Dir(oldpath) != path.Dir(newpath) {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: errCrossDir}
	}
	node, err := fs.resolve(oldpath)
	if err != nil {
		return &os.PathError{Op: "rename", Path: oldpath, Err: os.ErrNotExist}
	}
	return fs.mutate("rename", oldpath, func(ctx context.Context) error {
		_, err := fs.mutator.Rename(ctx, node.Path.String(), path.Base(newpath))
		return err
	})
}

// Remove deletes a file, or an empty directory.
func (fs *GraphFS) Remove(filename string) error {
	if !fs.writable() {
		return errReadOnly
	}
	filename = cleanPath(filename)
	node, err := fs.resolve(filename)
	if err != nil {
		return &os.PathError{Op: "remove", Path: filename, Err: os.ErrNotExist}
	}
	if node.IsDir() {
		children, err := fs.graph.ListChildren(node.ID)
		if err == nil && len(children) > 0 {
			return &os.PathError{Op: "remove", Path: filename, Err: errNotEmpty}
		}
	}
	return fs.mutate("remove", filename, func(ctx context.Context) error {
		_, err := fs.mutator.Delete(ctx, node.Path.String(), node.IsDir())
		return err
	})
}

func (fs *GraphFS) Join(elem ...string) string {
	return path.Join(elem...)
}

// --- billy.TempFile ---

func (fs *GraphFS) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

func (fs *GraphFS) ReadDir(dirname string) ([]os.FileInfo, error) {
	dirname = cleanPath(dirname)

	parentID := ""
	if dirname != "/" {
		node, err := fs.resolve(dirname)
		if err != nil {
			return nil, &os.PathError{Op: "readdir", Path: dirname, Err: os.ErrNotExist}
		}
		if !node.IsDir() {
			return nil, &os.PathError{Op: "readdir", Path: dirname, Err: fmt.Errorf("not a directory")}
		}
		parentID = node.ID
	}

	children, err := fs.graph.ListChildren(parentID)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: dirname, Err: os.ErrNotExist}
	}

	infos := make([]os.FileInfo, 0, len(children)+1)
	if dirname == "/" {
		infos = append(infos, &staticFileInfo{
			name:    TreeFile,
			size:    int64(len(fs.doc())),
			mode:    0o444,
			modTime: fs.mountTime,
		})
	}
	for _, id := range children {
		child, err := fs.graph.GetNode(id)
		if err != nil {
			continue
		}
		infos = append(infos, fs.fileInfo(child))
	}
	return infos, nil
}

// MkdirAll creates every missing directory along filename as a folder
// record.
func (fs *GraphFS) MkdirAll(filename string, perm os.FileMode) error {
	if !fs.writable() {
		return errReadOnly
	}
	filename = cleanPath(filename)
	if filename == "/" {
		return nil
	}
	if node, err := fs.resolve(filename); err == nil {
		if node.IsDir() {
			return nil
		}
		return &os.PathError{Op: "mkdir", Path: filename, Err: os.ErrExist}
	}

	// Reuse the canonical spelling of the deepest existing ancestor.
	segs := strings.Split(strings.TrimPrefix(filename, "/"), "/")
	var parent graph.Path
	i := len(segs)
	for ; i > 0; i-- {
		if node, err := fs.resolve("/" + strings.Join(segs[:i], "/")); err == nil {
			parent = node.Path
			break
		}
	}
	return fs.mutate("mkdir", filename, func(ctx context.Context) error {
		for _, name := range segs[i:] {
			created, _, err := fs.mutator.CreateFolder(ctx, parent.String(), name)
			if err != nil {
				return err
			}
			parent = graph.Parse(created)
		}
		return nil
	})
}

// --- billy.Symlink ---

func (fs *GraphFS) Lstat(filename string) (os.FileInfo, error) {
	filename = cleanPath(filename)

	if filename == "/" {
		return &staticFileInfo{
			name:    "/",
			mode:    fs.dirMode(),
			modTime: fs.mountTime,
		}, nil
	}
	if filename == "/"+TreeFile {
		return &staticFileInfo{
			name:    TreeFile,
			size:    int64(len(fs.doc())),
			mode:    0o444,
			modTime: fs.mountTime,
		}, nil
	}

	node, err := fs.resolve(filename)
	if err != nil {
		return nil, &os.PathError{Op: "lstat", Path: filename, Err: os.ErrNotExist}
	}
	return fs.fileInfo(node), nil
}

func (fs *GraphFS) Symlink(target, link string) error {
	return billy.ErrNotSupported
}

func (fs *GraphFS) Readlink(link string) (string, error) {
	return "", billy.ErrNotSupported
}

// --- billy.Chroot ---

func (fs *GraphFS) Chroot(path string) (billy.Filesystem, error) {
	return chroot.New(fs, path), nil
}

func (fs *GraphFS) Root() string {
	return "/"
}

// --- billy.Capable ---

func (fs *GraphFS) Capabilities() billy.Capability {
	caps := billy.ReadCapability | billy.SeekCapability
	if fs.writable() {
		caps |= billy.WriteCapability
	}
	return caps
}

// --- internals ---

// resolve walks from the roots, matching each segment case-insensitively
// against the final segment of a child's path. Declared parents can move a
// node away from its path position, so the walk follows the tree rather than
// hashing the mount path.
func (fs *GraphFS) resolve(name string) (*graph.Node, error) {
	segs := strings.Split(strings.TrimPrefix(name, "/"), "/")
	parentID := ""
	var node *graph.Node
	for _, seg := range segs {
		children, err := fs.graph.ListChildren(parentID)
		if err != nil {
			return nil, err
		}
		node = nil
		for _, id := range children {
			c, err := fs.graph.GetNode(id)
			if err != nil {
				continue
			}
			if strings.EqualFold(c.Path.Base(), seg) {
				node = c
				break
			}
		}
		if node == nil {
			return nil, graph.ErrNotFound
		}
		parentID = node.ID
	}
	return node, nil
}

func (fs *GraphFS) mutate(op, target string, fn func(ctx context.Context) error) error {
	ctx := context.Background()
	if err := fn(ctx); err != nil {
		logging.Warn("mount mutation failed", logging.String("op", op),
			logging.String("path", target), logging.Err(err))
		return &os.PathError{Op: op, Path: target, Err: mutationErr(err)}
	}
	if fs.rebuild != nil {
		if err := fs.rebuild(ctx); err != nil {
			return &os.PathError{Op: op, Path: target, Err: err}
		}
	}
	return nil
}

// mutationErr maps record store errors onto the os errors NFS clients
// understand.
func mutationErr(err error) error {
	switch {
	case errors.Is(err, ingest.ErrNotFound):
		return os.ErrNotExist
	case errors.Is(err, ingest.ErrExists):
		return os.ErrExist
	case errors.Is(err, ingest.ErrInvalidName), errors.Is(err, ingest.ErrInvalidPath):
		return os.ErrInvalid
	}
	return err
}

func (fs *GraphFS) dirMode() os.FileMode {
	if fs.writable() {
		return os.ModeDir | 0o755
	}
	return os.ModeDir | 0o555
}

// fileInfo converts a graph.Node to os.FileInfo. Files report the size of
// their JSON content so reads line up with stat.
func (fs *GraphFS) fileInfo(n *graph.Node) os.FileInfo {
	modTime := n.ModTime()
	if modTime.IsZero() {
		modTime = fs.mountTime
	}
	if n.IsDir() {
		return &staticFileInfo{name: n.Path.Base(), mode: fs.dirMode(), modTime: modTime}
	}
	return &staticFileInfo{
		name:    n.Path.Base(),
		size:    int64(len(nodeContent(n))),
		mode:    0o444,
		modTime: modTime,
	}
}

// nodeContent is what reading a file returns: its wire form.
func nodeContent(n *graph.Node) []byte {
	data, err := json.MarshalIndent(tree.WireNode(n), "", "  ")
	if err != nil {
		return nil
	}
	return append(data, '\n')
}

// cleanPath normalizes a billy path to a clean absolute path.
func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// staticFileInfo implements os.FileInfo with static values.
type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() interface{}   { return nil }

var (
	_ billy.Filesystem = (*GraphFS)(nil)
	_ billy.Capable    = (*GraphFS)(nil)
)
