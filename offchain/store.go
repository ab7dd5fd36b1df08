// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package offchain stores raw commitments outside of chain state. Only the
// commitment digest is published on-chain; relayers fetch the body from here.
package offchain

import (
	"context"
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/database"
)

// DefaultPrefix namespaces commitment keys
var DefaultPrefix = []byte("commitment")

// Store is a key-value store for raw commitments
type Store interface {
	Put(ctx context.Context, key []byte, value []byte) error
	Get(ctx context.Context, key []byte) ([]byte, error)
}

// CommitmentKey derives the storage key of a commitment
func CommitmentKey(prefix []byte, kind string, digest common.Hash) []byte {
	return database.Key(prefix, []byte(kind), digest.Bytes())
}

// PutCommitment writes c under its derived key and returns the digest
func PutCommitment(ctx context.Context, s Store, prefix []byte, kind string, c *channel.Commitment) (common.Hash, error) {
	digest := c.Digest()
	if err := s.Put(ctx, CommitmentKey(prefix, kind, digest), c.Bytes()); err != nil {
		return common.Hash{}, fmt.Errorf("failed to store commitment %s: %w", digest, err)
	}
	return digest, nil
}

// GetCommitment reads a commitment and checks it against its digest
func GetCommitment(ctx context.Context, s Store, prefix []byte, kind string, digest common.Hash) (*channel.Commitment, error) {
	b, err := s.Get(ctx, CommitmentKey(prefix, kind, digest))
	if err != nil {
		return nil, err
	}
	c, err := channel.ParseCommitment(b)
	if err != nil {
		return nil, err
	}
	if got := c.Digest(); got != digest {
		return nil, fmt.Errorf("%w: stored commitment has digest %s, expected %s", channel.ErrInvalidProof, got, digest)
	}
	return c, nil
}

var _ Store = (*DBStore)(nil)

// DBStore keeps commitments in a database.Database
type DBStore struct {
	db database.Database
}

func NewDBStore(db database.Database) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Put(_ context.Context, key []byte, value []byte) error {
	return s.db.Put(key, value)
}

func (s *DBStore) Get(_ context.Context, key []byte) ([]byte, error) {
	v, err := s.db.Get(key)
	if database.IsNotFound(err) {
		return nil, fmt.Errorf("%w: commitment %x", channel.ErrNotFound, key)
	}
	return v, err
}
