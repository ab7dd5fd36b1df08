// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package offchain

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/database"
)

var testChannel = common.HexToAddress("0x00000000000000000000000000000000000000c1")

func newTestCommitment(t *testing.T, payload string) *channel.Commitment {
	msg := channel.NewMessage(2, testChannel, testChannel, uint256.NewInt(1), 10, []byte(payload))
	msg.Nonce = 1
	c, err := channel.NewCommitment([]channel.Message{*msg})
	require.NoError(t, err)
	return c
}

func TestCommitmentRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	store := NewDBStore(database.NewMemDB())
	c := newTestCommitment(t, "hello")

	digest, err := PutCommitment(ctx, store, DefaultPrefix, "basic", c)
	require.NoError(err)
	require.Equal(c.Digest(), digest)

	got, err := GetCommitment(ctx, store, DefaultPrefix, "basic", digest)
	require.NoError(err)
	require.Equal(digest, got.Digest())

	// Kinds are separate namespaces.
	_, err = GetCommitment(ctx, store, DefaultPrefix, "incentivized", digest)
	require.ErrorIs(err, channel.ErrNotFound)
	require.Equal(channel.KindTransient, channel.Classify(err))
}

func TestGetCommitmentChecksDigest(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	store := NewDBStore(database.NewMemDB())
	stored := newTestCommitment(t, "hello")
	claimed := newTestCommitment(t, "other").Digest()

	require.NoError(store.Put(ctx, CommitmentKey(DefaultPrefix, "basic", claimed), stored.Bytes()))
	_, err := GetCommitment(ctx, store, DefaultPrefix, "basic", claimed)
	require.ErrorIs(err, channel.ErrInvalidProof)

	require.NoError(store.Put(ctx, CommitmentKey(DefaultPrefix, "basic", stored.Digest()), []byte{0xc0}))
	_, err = GetCommitment(ctx, store, DefaultPrefix, "basic", stored.Digest())
	require.Error(err)
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore("not a url", 0)
	require.Error(t, err)

	s, err := NewRedisStore("redis://127.0.0.1:6379/0", 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
