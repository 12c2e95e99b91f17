// Package memory implements internal/metastore.Store with an in-memory
// tree, grounded on the teacher's pkg/store/metadata/memory/store.go
// map-and-mutex design.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cubbit/metafsd/internal/metastore"
)

type node struct {
	handle   metastore.Handle
	typ      metastore.NodeType
	mode     uint32
	size     uint64
	modTime  time.Time
	parent   metastore.Handle
	children map[string]metastore.Handle // only populated for directories
}

// Store is a map-based metastore.Store guarded by a single RWMutex,
// sufficient for tests and for running metafsd without a persistent
// backend.
type Store struct {
	mu    sync.RWMutex
	nodes map[metastore.Handle]*node
	root  metastore.Handle
}

// New creates an empty store with a freshly minted root directory.
func New() *Store {
	root := metastore.Handle(uuid.New().String())
	s := &Store{
		nodes: make(map[metastore.Handle]*node),
		root:  root,
	}
	s.nodes[root] = &node{
		handle:   root,
		typ:      metastore.NodeDir,
		mode:     0o755,
		modTime:  time.Now(),
		children: make(map[string]metastore.Handle),
	}
	return s
}

func (s *Store) Root() metastore.Handle { return s.root }

func (s *Store) Close() error { return nil }

func toAttr(n *node) metastore.Attr {
	return metastore.Attr{
		Handle:  n.handle,
		Type:    n.typ,
		Size:    n.size,
		Mode:    n.mode,
		ModTime: n.modTime,
	}
}

func (s *Store) GetAttr(_ context.Context, h metastore.Handle) (metastore.Attr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[h]
	if !ok {
		return metastore.Attr{}, metastore.ErrNotFound
	}
	return toAttr(n), nil
}

func (s *Store) Lookup(_ context.Context, dir metastore.Handle, name string) (metastore.Attr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parent, ok := s.nodes[dir]
	if !ok {
		return metastore.Attr{}, metastore.ErrNotFound
	}
	if parent.typ != metastore.NodeDir {
		return metastore.Attr{}, metastore.ErrNotDir
	}
	child, ok := parent.children[name]
	if !ok {
		return metastore.Attr{}, metastore.ErrNotFound
	}
	return toAttr(s.nodes[child]), nil
}

func (s *Store) create(dir metastore.Handle, name string, mode uint32, typ metastore.NodeType) (metastore.Attr, error) {
	if name == "" {
		return metastore.Attr{}, metastore.ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[dir]
	if !ok {
		return metastore.Attr{}, metastore.ErrNotFound
	}
	if parent.typ != metastore.NodeDir {
		return metastore.Attr{}, metastore.ErrNotDir
	}
	if _, exists := parent.children[name]; exists {
		return metastore.Attr{}, metastore.ErrExists
	}

	h := metastore.Handle(uuid.New().String())
	n := &node{
		handle:  h,
		typ:     typ,
		mode:    mode,
		modTime: time.Now(),
		parent:  dir,
	}
	if typ == metastore.NodeDir {
		n.children = make(map[string]metastore.Handle)
	}
	s.nodes[h] = n
	parent.children[name] = h
	parent.modTime = time.Now()

	return toAttr(n), nil
}

func (s *Store) Create(_ context.Context, dir metastore.Handle, name string, mode uint32) (metastore.Attr, error) {
	return s.create(dir, name, mode, metastore.NodeFile)
}

func (s *Store) Mkdir(_ context.Context, dir metastore.Handle, name string, mode uint32) (metastore.Attr, error) {
	return s.create(dir, name, mode, metastore.NodeDir)
}

func (s *Store) remove(dir metastore.Handle, name string, wantDir bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[dir]
	if !ok {
		return metastore.ErrNotFound
	}
	childHandle, ok := parent.children[name]
	if !ok {
		return metastore.ErrNotFound
	}
	child := s.nodes[childHandle]

	if wantDir && child.typ != metastore.NodeDir {
		return metastore.ErrNotDir
	}
	if !wantDir && child.typ == metastore.NodeDir {
		return metastore.ErrIsDir
	}
	if child.typ == metastore.NodeDir && len(child.children) > 0 {
		return metastore.ErrNotEmpty
	}

	delete(parent.children, name)
	delete(s.nodes, childHandle)
	parent.modTime = time.Now()
	return nil
}

func (s *Store) Remove(_ context.Context, dir metastore.Handle, name string) error {
	return s.remove(dir, name, false)
}

func (s *Store) Rmdir(_ context.Context, dir metastore.Handle, name string) error {
	return s.remove(dir, name, true)
}

func (s *Store) Rename(_ context.Context, fromDir metastore.Handle, fromName string, toDir metastore.Handle, toName string) error {
	if toName == "" {
		return metastore.ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.nodes[fromDir]
	if !ok {
		return metastore.ErrNotFound
	}
	dst, ok := s.nodes[toDir]
	if !ok {
		return metastore.ErrNotFound
	}
	childHandle, ok := src.children[fromName]
	if !ok {
		return metastore.ErrNotFound
	}
	if _, exists := dst.children[toName]; exists {
		return metastore.ErrExists
	}

	delete(src.children, fromName)
	dst.children[toName] = childHandle
	s.nodes[childHandle].parent = toDir
	src.modTime = time.Now()
	dst.modTime = time.Now()
	return nil
}

func (s *Store) ReadDir(_ context.Context, dir metastore.Handle) ([]metastore.DirEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[dir]
	if !ok {
		return nil, metastore.ErrNotFound
	}
	if n.typ != metastore.NodeDir {
		return nil, metastore.ErrNotDir
	}

	entries := make([]metastore.DirEntry, 0, len(n.children))
	for name, h := range n.children {
		entries = append(entries, metastore.DirEntry{
			Name:   name,
			Handle: h,
			Type:   s.nodes[h].typ,
		})
	}
	return entries, nil
}
