// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"bytes"
	"errors"
	"sync"

	"github.com/google/btree"
)

var (
	_ Database = (*MemDB)(nil)

	errClosed = errors.New("database closed")
)

type kv struct {
	key   []byte
	value []byte
}

func lessKV(a, b kv) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// MemDB is an in-memory ordered Database backed by a B-tree
type MemDB struct {
	lock   sync.RWMutex
	tree   *btree.BTreeG[kv]
	closed bool
}

// NewMemDB returns an empty in-memory database
func NewMemDB() *MemDB {
	return &MemDB{
		tree: btree.NewG[kv](32, lessKV),
	}
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	if db.closed {
		return false, errClosed
	}
	_, ok := db.tree.Get(kv{key: key})
	return ok, nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	if db.closed {
		return nil, errClosed
	}
	item, ok := db.tree.Get(kv{key: key})
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(item.value), nil
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	if db.closed {
		return errClosed
	}
	db.tree.ReplaceOrInsert(kv{key: bytes.Clone(key), value: bytes.Clone(value)})
	return nil
}

func (db *MemDB) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	if db.closed {
		return errClosed
	}
	db.tree.Delete(kv{key: key})
	return nil
}

func (db *MemDB) IteratePrefix(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	db.lock.RLock()
	if db.closed {
		db.lock.RUnlock()
		return errClosed
	}
	// Copy out matches so fn may write to the database.
	var items []kv
	db.tree.AscendGreaterOrEqual(kv{key: prefix}, func(item kv) bool {
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		items = append(items, item)
		return true
	})
	db.lock.RUnlock()

	for _, item := range items {
		cont, err := fn(bytes.Clone(item.key), bytes.Clone(item.value))
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Len returns the number of keys
func (db *MemDB) Len() int {
	db.lock.RLock()
	defer db.lock.RUnlock()
	return db.tree.Len()
}

func (db *MemDB) NewBatch() Batch {
	return &memBatch{db: db}
}

func (db *MemDB) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.closed = true
	return nil
}

type memOp struct {
	key    []byte
	value  []byte
	delete bool
}

type memBatch struct {
	db   *MemDB
	ops  []memOp
	size int
}

func (b *memBatch) Put(key []byte, value []byte) error {
	b.ops = append(b.ops, memOp{key: bytes.Clone(key), value: bytes.Clone(value)})
	b.size += len(key) + len(value)
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memOp{key: bytes.Clone(key), delete: true})
	b.size += len(key)
	return nil
}

func (b *memBatch) Size() int {
	return b.size
}

func (b *memBatch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()
	if b.db.closed {
		return errClosed
	}
	for _, op := range b.ops {
		if op.delete {
			b.db.tree.Delete(kv{key: op.key})
			continue
		}
		b.db.tree.ReplaceOrInsert(kv{key: op.key, value: op.value})
	}
	return nil
}

func (b *memBatch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}
