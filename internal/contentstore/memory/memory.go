// Package memory implements internal/contentstore.Store with a
// map of byte slices guarded by a mutex, grounded on the teacher's
// pkg/store/content/memory design.
package memory

import (
	"context"
	"sync"

	"github.com/cubbit/metafsd/internal/contentstore"
	"github.com/cubbit/metafsd/internal/metastore"
)

type Store struct {
	mu   sync.Mutex
	data map[metastore.Handle][]byte
}

func New() *Store {
	return &Store{data: make(map[metastore.Handle][]byte)}
}

func (s *Store) Read(_ context.Context, h metastore.Handle, offset int64, length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.data[h]
	if !ok {
		return nil, contentstore.ErrNotFound
	}
	if offset < 0 || int(offset) > len(buf) {
		return nil, nil
	}
	end := int(offset) + length
	if end > len(buf) {
		end = len(buf)
	}
	out := make([]byte, end-int(offset))
	copy(out, buf[offset:end])
	return out, nil
}

func (s *Store) Write(_ context.Context, h metastore.Handle, offset int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.data[h]
	end := int(offset) + len(data)
	if end > len(buf) {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:], data)
	s.data[h] = buf
	return nil
}

func (s *Store) Delete(_ context.Context, h metastore.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, h)
	return nil
}
