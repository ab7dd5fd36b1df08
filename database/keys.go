// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"encoding/binary"
	"fmt"
)

// Key joins parts with '/' separators
func Key(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	key := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			key = append(key, '/')
		}
		key = append(key, p...)
	}
	return key
}

// Uint64Key encodes v big endian so keys sort numerically
func Uint64Key(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// PutUint64 stores v under key
func PutUint64(db KeyValueWriter, key []byte, v uint64) error {
	return db.Put(key, Uint64Key(v))
}

// GetUint64 reads a uint64 stored with PutUint64
func GetUint64(db KeyValueReader, key []byte) (uint64, error) {
	b, err := db.Get(key)
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("value of key %q has length %d, expected 8", key, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// GetUint64OrZero is GetUint64 with missing keys read as zero
func GetUint64OrZero(db KeyValueReader, key []byte) (uint64, error) {
	v, err := GetUint64(db, key)
	if IsNotFound(err) {
		return 0, nil
	}
	return v, err
}
