// Package metastore implements the filesystem metadata backend an
// internal/executor.Executor dispatches requests to. It is the concrete
// answer to spec.md's "external interfaces are out of scope" note for the
// collaborator that actually performs GETATTR/LOOKUP/CREATE/etc work.
package metastore

import (
	"context"
	"errors"
	"time"
)

// Handle identifies a file or directory. Handles are opaque to callers
// above this package and are minted by the backend (see memory.New,
// badger.Open).
type Handle string

// NodeType distinguishes files from directories in Attr.
type NodeType uint8

const (
	NodeFile NodeType = iota
	NodeDir
)

// Attr mirrors the subset of file attributes the protocol layer needs to
// render a GETATTR/LOOKUP reply.
type Attr struct {
	Handle  Handle
	Type    NodeType
	Size    uint64
	Mode    uint32
	ModTime time.Time
}

// DirEntry is one row of a READDIR reply.
type DirEntry struct {
	Name   string
	Handle Handle
	Type   NodeType
}

var (
	ErrNotFound    = errors.New("metastore: not found")
	ErrExists      = errors.New("metastore: already exists")
	ErrNotDir      = errors.New("metastore: not a directory")
	ErrIsDir       = errors.New("metastore: is a directory")
	ErrNotEmpty    = errors.New("metastore: directory not empty")
	ErrInvalidName = errors.New("metastore: invalid name")
)

// Store is the metadata surface internal/executor dispatches to. All
// methods are safe for concurrent use.
type Store interface {
	GetAttr(ctx context.Context, h Handle) (Attr, error)
	Lookup(ctx context.Context, dir Handle, name string) (Attr, error)
	Create(ctx context.Context, dir Handle, name string, mode uint32) (Attr, error)
	Remove(ctx context.Context, dir Handle, name string) error
	Mkdir(ctx context.Context, dir Handle, name string, mode uint32) (Attr, error)
	Rmdir(ctx context.Context, dir Handle, name string) error
	Rename(ctx context.Context, fromDir Handle, fromName string, toDir Handle, toName string) error
	ReadDir(ctx context.Context, dir Handle) ([]DirEntry, error)
	// Root returns the handle of the filesystem root, minted when the
	// store is created (memory.New) or a fresh database is first opened
	// (badger.Open).
	Root() Handle
	Close() error
}
