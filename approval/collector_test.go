// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package approval

import (
	"crypto/ecdsa"
	"testing"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/channel"
)

func newKeys(t *testing.T, n int) ([]*ecdsa.PrivateKey, []common.Address) {
	keys := make([]*ecdsa.PrivateKey, n)
	addrs := make([]common.Address, n)
	for i := range keys {
		sk, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = sk
		addrs[i] = common.Address(crypto.PubkeyToAddress(sk.PublicKey))
	}
	return keys, addrs
}

func sign(t *testing.T, digest common.Hash, sk *ecdsa.PrivateKey) []byte {
	sig, err := crypto.Sign(digest.Bytes(), sk)
	require.NoError(t, err)
	return sig
}

func TestMajority(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{n: 0, want: 0},
		{n: 1, want: 1},
		{n: 2, want: 2},
		{n: 3, want: 3},
		{n: 4, want: 3},
		{n: 7, want: 5},
		{n: 10, want: 7},
		{n: 100, want: 67},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, channel.Majority(tt.n), "n=%d", tt.n)
	}
}

func TestCollectorReadiness(t *testing.T) {
	require := require.New(t)
	keys, peers := newKeys(t, 4)
	c := NewCollector(1, peers)
	require.Equal(3, c.Threshold())

	digest := common.Hash(crypto.Keccak256Hash([]byte("commitment")))
	for i := 0; i < 2; i++ {
		added, err := c.Record(digest, peers[i], sign(t, digest, keys[i]))
		require.NoError(err)
		require.True(added)
	}
	require.False(c.IsReady(digest))
	require.Equal(2, c.Count(digest))

	added, err := c.Record(digest, peers[2], sign(t, digest, keys[2]))
	require.NoError(err)
	require.True(added)
	require.True(c.IsReady(digest))
	require.Equal(3, c.Count(digest))

	// A second signature from the same signer changes nothing.
	added, err = c.Record(digest, peers[2], sign(t, digest, keys[2]))
	require.NoError(err)
	require.False(added)
	require.Equal(3, c.Count(digest))
	require.True(c.IsReady(digest))

	sigs := c.Signatures(digest)
	require.Len(sigs, 3)
	for i, s := range sigs {
		require.Equal(peers[i], s.Signer)
		recovered, err := Recover(digest, s.Signature)
		require.NoError(err)
		require.Equal(peers[i], recovered)
	}

	c.Forget(digest)
	require.Zero(c.Count(digest))
	require.False(c.IsReady(digest))
}

func TestCollectorRejections(t *testing.T) {
	keys, peers := newKeys(t, 4)
	outsiderKeys, outsiders := newKeys(t, 1)
	digest := common.Hash(crypto.Keccak256Hash([]byte("digest")))
	other := common.Hash(crypto.Keccak256Hash([]byte("other")))

	tests := []struct {
		name      string
		signer    common.Address
		signature []byte
		wantErr   error
	}{
		{
			name:      "not a peer",
			signer:    outsiders[0],
			signature: sign(t, digest, outsiderKeys[0]),
			wantErr:   channel.ErrForbidden,
		},
		{
			name:      "signed by another peer",
			signer:    peers[0],
			signature: sign(t, digest, keys[1]),
			wantErr:   channel.ErrInvalidSignature,
		},
		{
			name:      "signed another digest",
			signer:    peers[0],
			signature: sign(t, other, keys[0]),
			wantErr:   channel.ErrInvalidSignature,
		},
		{
			name:      "truncated",
			signer:    peers[0],
			signature: sign(t, digest, keys[0])[:64],
			wantErr:   channel.ErrInvalidSignature,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			c := NewCollector(1, peers)
			added, err := c.Record(digest, tt.signer, tt.signature)
			require.ErrorIs(err, tt.wantErr)
			require.False(added)
			require.Zero(c.Count(digest))
		})
	}
}

func TestCollectorVerifiesBeforeDuplicateCheck(t *testing.T) {
	require := require.New(t)
	keys, peers := newKeys(t, 4)
	c := NewCollector(1, peers)
	digest := common.Hash(crypto.Keccak256Hash([]byte("resubmit")))

	added, err := c.Record(digest, peers[0], sign(t, digest, keys[0]))
	require.NoError(err)
	require.True(added)

	garbage := make([]byte, SignatureLen)
	garbage[0] = 0xff
	added, err = c.Record(digest, peers[0], garbage)
	require.ErrorIs(err, channel.ErrInvalidSignature)
	require.False(added)

	added, err = c.Record(digest, peers[0], sign(t, digest, keys[1]))
	require.ErrorIs(err, channel.ErrInvalidSignature)
	require.False(added)

	sigs := c.Signatures(digest)
	require.Len(sigs, 1)
	recovered, err := Recover(digest, sigs[0].Signature)
	require.NoError(err)
	require.Equal(peers[0], recovered)
}

func TestCollectorReadinessIsSticky(t *testing.T) {
	require := require.New(t)
	keys, peers := newKeys(t, 4)
	c := NewCollector(1, peers)
	digest := common.Hash(crypto.Keccak256Hash([]byte("sticky")))
	for i := 0; i < 4; i++ {
		_, err := c.Record(digest, peers[i], sign(t, digest, keys[i]))
		require.NoError(err)
		require.Equal(i >= 2, c.IsReady(digest))
	}
	require.Equal(4, c.Count(digest))
}

func TestCollectorRotate(t *testing.T) {
	require := require.New(t)
	keys, peers := newKeys(t, 4)
	c := NewCollector(1, peers[:2])
	digest := common.Hash(crypto.Keccak256Hash([]byte("rotate")))

	_, err := c.Record(digest, peers[0], sign(t, digest, keys[0]))
	require.NoError(err)
	_, err = c.Record(digest, peers[2], sign(t, digest, keys[2]))
	require.ErrorIs(err, channel.ErrForbidden)

	c.Rotate(2, peers[2:])
	require.Equal(uint64(2), c.Epoch())
	require.False(c.IsPeer(peers[0]))
	// Approvals are keyed by epoch, so the new set starts from zero.
	require.Zero(c.Count(digest))
	_, err = c.Record(digest, peers[2], sign(t, digest, keys[2]))
	require.NoError(err)
	require.Equal(1, c.Count(digest))
}

func TestRecoverAcceptsLegacyRecoveryID(t *testing.T) {
	require := require.New(t)
	keys, peers := newKeys(t, 1)
	digest := common.Hash(crypto.Keccak256Hash([]byte("legacy")))
	sig := sign(t, digest, keys[0])
	sig[crypto.RecoveryIDOffset] += 27

	recovered, err := Recover(digest, sig)
	require.NoError(err)
	require.Equal(peers[0], recovered)
}
