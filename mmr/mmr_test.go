// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package mmr

import (
	"testing"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"
	"github.com/stretchr/testify/require"
)

func leaf(i int) common.Hash {
	return common.Hash(crypto.Keccak256Hash([]byte{byte(i), byte(i >> 8)}))
}

func build(n int) *MMR {
	m := New()
	for i := 0; i < n; i++ {
		m.Append(leaf(i))
	}
	return m
}

func TestRootMatchesBaggedPeaks(t *testing.T) {
	require := require.New(t)

	_, err := New().Root()
	require.ErrorIs(err, ErrEmpty)

	m := build(1)
	root, err := m.Root()
	require.NoError(err)
	require.Equal(leaf(0), root)

	// 3 leaves: mountains of 2 and 1
	m = build(3)
	root, err = m.Root()
	require.NoError(err)
	require.Equal(Hash(Hash(leaf(0), leaf(1)), leaf(2)), root)

	// 7 leaves: mountains of 4, 2 and 1
	m = build(7)
	root, err = m.Root()
	require.NoError(err)
	p0 := Hash(Hash(leaf(0), leaf(1)), Hash(leaf(2), leaf(3)))
	p1 := Hash(leaf(4), leaf(5))
	p2 := leaf(6)
	require.Equal(Hash(p0, Hash(p1, p2)), root)
}

func TestProveAndVerifyAllLeaves(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 7, 8, 11, 16, 21} {
		m := build(n)
		root, err := m.Root()
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			proof, err := m.Prove(uint64(i))
			require.NoError(t, err)
			require.NoError(t, Verify(root, leaf(i), proof), "n=%d i=%d", n, i)
		}
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	m := build(11)
	root, err := m.Root()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(p *Proof) common.Hash
	}{
		{
			name: "wrong leaf",
			mutate: func(*Proof) common.Hash {
				return leaf(99)
			},
		},
		{
			name: "tampered item",
			mutate: func(p *Proof) common.Hash {
				p.Items[0][0] ^= 0xff
				return leaf(5)
			},
		},
		{
			name: "dropped item",
			mutate: func(p *Proof) common.Hash {
				p.Items = p.Items[:len(p.Items)-1]
				return leaf(5)
			},
		},
		{
			name: "flipped order",
			mutate: func(p *Proof) common.Hash {
				order := set.BitsFromBytes(p.Order)
				order.Add(len(p.Items) + 3)
				p.Order = order.Bytes()
				return leaf(5)
			},
		},
		{
			name: "claimed another index",
			mutate: func(p *Proof) common.Hash {
				p.LeafIndex = 4
				return leaf(5)
			},
		},
		{
			name: "index out of range",
			mutate: func(p *Proof) common.Hash {
				p.LeafIndex = p.LeafCount
				return leaf(5)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proof, err := m.Prove(5)
			require.NoError(t, err)
			l := tt.mutate(proof)
			require.Error(t, Verify(root, l, proof))
		})
	}
}

func TestProofAgainstOlderRoot(t *testing.T) {
	require := require.New(t)
	m := build(6)
	old, err := m.Root()
	require.NoError(err)
	proof, err := m.Prove(2)
	require.NoError(err)

	m.Append(leaf(6))
	latest, err := m.Root()
	require.NoError(err)
	require.NotEqual(old, latest)

	require.NoError(Verify(old, leaf(2), proof))
	require.ErrorIs(Verify(latest, leaf(2), proof), ErrInvalidProof)
}

func TestExpectedOrder(t *testing.T) {
	require := require.New(t)
	// 7 leaves, leaf 5: sibling 4 on the left, then right peak, then left peak
	order := ExpectedOrder(5, 7)
	require.True(order.Contains(0))
	require.False(order.Contains(1))
	require.True(order.Contains(2))
	require.Equal(3, proofLen(5, 7))
}

func TestProveAtOlderSize(t *testing.T) {
	require := require.New(t)
	m := build(13)
	for count := uint64(1); count <= 13; count++ {
		root, err := m.RootAt(count)
		require.NoError(err)
		require.Equal(mustRoot(t, build(int(count))), root)
		for i := uint64(0); i < count; i++ {
			proof, err := m.ProveAt(i, count)
			require.NoError(err)
			require.NoError(Verify(root, leaf(int(i)), proof), "count=%d i=%d", count, i)
		}
	}
	_, err := m.ProveAt(3, 14)
	require.ErrorIs(err, ErrOutOfRange)
	_, err = m.RootAt(0)
	require.ErrorIs(err, ErrEmpty)
}

func mustRoot(t *testing.T, m *MMR) common.Hash {
	root, err := m.Root()
	require.NoError(t, err)
	return root
}

func TestTruncateRestoresEarlierState(t *testing.T) {
	require := require.New(t)
	for _, count := range []int{1, 4, 5, 7} {
		m := build(count)
		for i := count; i < 13; i++ {
			m.Append(common.Hash{byte(i)})
		}
		m.Truncate(uint64(count))
		require.Equal(uint64(count), m.Len())

		want, err := build(count).Root()
		require.NoError(err)
		root, err := m.Root()
		require.NoError(err)
		require.Equal(want, root, "count=%d", count)

		// Appending after a truncate matches a fresh accumulator.
		m.Append(leaf(count))
		want, err = build(count + 1).Root()
		require.NoError(err)
		root, err = m.Root()
		require.NoError(err)
		require.Equal(want, root, "count=%d", count)
	}
}
