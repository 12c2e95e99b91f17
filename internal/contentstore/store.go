// Package contentstore holds file byte content keyed by
// internal/metastore.Handle, grounded on the teacher's
// pkg/store/content tree.
package contentstore

import (
	"context"
	"errors"

	"github.com/cubbit/metafsd/internal/metastore"
)

var ErrNotFound = errors.New("contentstore: not found")

// Store is the content surface internal/executor dispatches READ/WRITE
// opcodes to.
type Store interface {
	Read(ctx context.Context, h metastore.Handle, offset int64, length int) ([]byte, error)
	Write(ctx context.Context, h metastore.Handle, offset int64, data []byte) error
	Delete(ctx context.Context, h metastore.Handle) error
}
