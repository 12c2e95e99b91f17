// Package badger implements internal/metastore.Store on top of
// github.com/dgraph-io/badger/v4, grounded on the teacher's
// pkg/store/metadata/badger key-namespace design (file records under
// "f:", parent-child edges under "c:").
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/cubbit/metafsd/internal/metastore"
)

// record is the JSON value stored under the "f:<uuid>" key.
type record struct {
	Type    metastore.NodeType `json:"type"`
	Mode    uint32             `json:"mode"`
	Size    uint64             `json:"size"`
	ModTime time.Time          `json:"mod_time"`
}

func fileKey(h metastore.Handle) []byte    { return []byte("f:" + string(h)) }
func childKey(parent metastore.Handle, name string) []byte {
	return []byte(fmt.Sprintf("c:%s:%s", parent, name))
}
func childPrefix(parent metastore.Handle) []byte { return []byte("c:" + string(parent) + ":") }

// Store is a BadgerDB-backed metastore.Store.
type Store struct {
	db   *badger.DB
	root metastore.Handle
}

// Open opens (creating if necessary) a badger database at dir and
// ensures a root directory record exists.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}

	s := &Store{db: db}
	if err := s.initRoot(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const rootKey = "cfg:root"

func (s *Store) initRoot() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(rootKey))
		if err == nil {
			return item.Value(func(v []byte) error {
				s.root = metastore.Handle(v)
				return nil
			})
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		root := metastore.Handle(uuid.New().String())
		rec := record{Type: metastore.NodeDir, Mode: 0o755, ModTime: time.Now()}
		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := txn.Set(fileKey(root), buf); err != nil {
			return err
		}
		if err := txn.Set([]byte(rootKey), []byte(root)); err != nil {
			return err
		}
		s.root = root
		return nil
	})
}

func (s *Store) Root() metastore.Handle { return s.root }

func (s *Store) Close() error { return s.db.Close() }

func getRecord(txn *badger.Txn, h metastore.Handle) (record, error) {
	item, err := txn.Get(fileKey(h))
	if err == badger.ErrKeyNotFound {
		return record{}, metastore.ErrNotFound
	}
	if err != nil {
		return record{}, err
	}
	var rec record
	err = item.Value(func(v []byte) error { return json.Unmarshal(v, &rec) })
	return rec, err
}

func toAttr(h metastore.Handle, rec record) metastore.Attr {
	return metastore.Attr{Handle: h, Type: rec.Type, Size: rec.Size, Mode: rec.Mode, ModTime: rec.ModTime}
}

func (s *Store) GetAttr(_ context.Context, h metastore.Handle) (metastore.Attr, error) {
	var attr metastore.Attr
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, h)
		if err != nil {
			return err
		}
		attr = toAttr(h, rec)
		return nil
	})
	return attr, err
}

func (s *Store) Lookup(_ context.Context, dir metastore.Handle, name string) (metastore.Attr, error) {
	var attr metastore.Attr
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := getRecord(txn, dir); err != nil {
			return err
		}
		item, err := txn.Get(childKey(dir, name))
		if err == badger.ErrKeyNotFound {
			return metastore.ErrNotFound
		}
		if err != nil {
			return err
		}
		var childHandle metastore.Handle
		if err := item.Value(func(v []byte) error { childHandle = metastore.Handle(v); return nil }); err != nil {
			return err
		}
		rec, err := getRecord(txn, childHandle)
		if err != nil {
			return err
		}
		attr = toAttr(childHandle, rec)
		return nil
	})
	return attr, err
}

func (s *Store) create(dir metastore.Handle, name string, mode uint32, typ metastore.NodeType) (metastore.Attr, error) {
	if name == "" {
		return metastore.Attr{}, metastore.ErrInvalidName
	}

	h := metastore.Handle(uuid.New().String())
	rec := record{Type: typ, Mode: mode, ModTime: time.Now()}

	err := s.db.Update(func(txn *badger.Txn) error {
		parentRec, err := getRecord(txn, dir)
		if err != nil {
			return err
		}
		if parentRec.Type != metastore.NodeDir {
			return metastore.ErrNotDir
		}
		if _, err := txn.Get(childKey(dir, name)); err == nil {
			return metastore.ErrExists
		}

		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := txn.Set(fileKey(h), buf); err != nil {
			return err
		}
		return txn.Set(childKey(dir, name), []byte(h))
	})
	if err != nil {
		return metastore.Attr{}, err
	}
	return toAttr(h, rec), nil
}

func (s *Store) Create(_ context.Context, dir metastore.Handle, name string, mode uint32) (metastore.Attr, error) {
	return s.create(dir, name, mode, metastore.NodeFile)
}

func (s *Store) Mkdir(_ context.Context, dir metastore.Handle, name string, mode uint32) (metastore.Attr, error) {
	return s.create(dir, name, mode, metastore.NodeDir)
}

func (s *Store) remove(dir metastore.Handle, name string, wantDir bool) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(childKey(dir, name))
		if err == badger.ErrKeyNotFound {
			return metastore.ErrNotFound
		}
		if err != nil {
			return err
		}
		var childHandle metastore.Handle
		if err := item.Value(func(v []byte) error { childHandle = metastore.Handle(v); return nil }); err != nil {
			return err
		}
		rec, err := getRecord(txn, childHandle)
		if err != nil {
			return err
		}
		if wantDir && rec.Type != metastore.NodeDir {
			return metastore.ErrNotDir
		}
		if !wantDir && rec.Type == metastore.NodeDir {
			return metastore.ErrIsDir
		}
		if rec.Type == metastore.NodeDir {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			prefix := childPrefix(childHandle)
			it.Seek(prefix)
			if it.ValidForPrefix(prefix) {
				return metastore.ErrNotEmpty
			}
		}
		if err := txn.Delete(fileKey(childHandle)); err != nil {
			return err
		}
		return txn.Delete(childKey(dir, name))
	})
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
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(childKey(fromDir, fromName))
		if err == badger.ErrKeyNotFound {
			return metastore.ErrNotFound
		}
		if err != nil {
			return err
		}
		var childHandle []byte
		if err := item.Value(func(v []byte) error { childHandle = append([]byte{}, v...); return nil }); err != nil {
			return err
		}
		if _, err := txn.Get(childKey(toDir, toName)); err == nil {
			return metastore.ErrExists
		}
		if err := txn.Delete(childKey(fromDir, fromName)); err != nil {
			return err
		}
		return txn.Set(childKey(toDir, toName), childHandle)
	})
}

func (s *Store) ReadDir(_ context.Context, dir metastore.Handle) ([]metastore.DirEntry, error) {
	var entries []metastore.DirEntry
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, dir)
		if err != nil {
			return err
		}
		if rec.Type != metastore.NodeDir {
			return metastore.ErrNotDir
		}

		prefix := childPrefix(dir)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			name := string(item.Key()[len(prefix):])
			var childHandle metastore.Handle
			if err := item.Value(func(v []byte) error { childHandle = metastore.Handle(v); return nil }); err != nil {
				return err
			}
			childRec, err := getRecord(txn, childHandle)
			if err != nil {
				return err
			}
			entries = append(entries, metastore.DirEntry{Name: name, Handle: childHandle, Type: childRec.Type})
		}
		return nil
	})
	return entries, err
}
