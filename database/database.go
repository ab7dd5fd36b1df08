// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package database is the ordered key-value repository that channel and
// light client state is persisted through.
package database

import (
	"errors"
)

var ErrNotFound = errors.New("not found")

// KeyValueReader reads single keys
type KeyValueReader interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
}

// KeyValueWriter writes single keys
type KeyValueWriter interface {
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// Iteratee iterates over a key prefix in ascending key order
type Iteratee interface {
	// IteratePrefix calls fn for each key with the given prefix until fn
	// returns false or an error.
	IteratePrefix(prefix []byte, fn func(key, value []byte) (bool, error)) error
}

// Database is an ordered key-value store
type Database interface {
	KeyValueReader
	KeyValueWriter
	Iteratee
	NewBatch() Batch
	Close() error
}

// Batch buffers writes until Write applies them all at once
type Batch interface {
	KeyValueWriter
	Size() int
	Write() error
	Reset()
}

// IsNotFound reports whether err is a missing key
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
