// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package channel

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestCommitmentDigest(t *testing.T) {
	require := require.New(t)
	a, err := NewCommitment(newTestMessages(3))
	require.NoError(err)
	b, err := NewCommitment(newTestMessages(3))
	require.NoError(err)

	require.Equal(uint64(300), a.TotalMaxGas)
	require.Equal(a.Digest(), b.Digest())
	require.Equal(uint64(1), a.FirstNonce())
	require.Equal(uint64(3), a.LastNonce())
	require.Equal(NetworkID(2), a.NetworkID())
	require.Equal(testChannel, a.Channel())

	fee, err := a.TotalFee()
	require.NoError(err)
	require.Equal(uint64(60), fee.Uint64())

	// Any change to a message changes the digest.
	b.Messages[1].Payload = []byte("other")
	require.NotEqual(a.Digest(), b.Digest())

	parsed, err := ParseCommitment(a.Bytes())
	require.NoError(err)
	require.Equal(a.Digest(), parsed.Digest())
}

func TestCommitmentVerify(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Commitment)
		err    error
	}{
		{
			name:   "valid",
			mutate: func(*Commitment) {},
		},
		{
			name:   "empty",
			mutate: func(c *Commitment) { c.Messages = nil },
			err:    ErrInvalidMessage,
		},
		{
			name:   "nonce gap",
			mutate: func(c *Commitment) { c.Messages[2].Nonce = 5 },
			err:    ErrInvalidNonce,
		},
		{
			name:   "mixed channels",
			mutate: func(c *Commitment) { c.Messages[1].NetworkID = 9 },
			err:    ErrInvalidMessage,
		},
		{
			name:   "gas total mismatch",
			mutate: func(c *Commitment) { c.TotalMaxGas++ },
			err:    ErrInvalidMessage,
		},
		{
			name:   "nil fee",
			mutate: func(c *Commitment) { c.Messages[0].Fee = nil },
			err:    ErrInvalidMessage,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, err := NewCommitment(newTestMessages(3))
			require.NoError(t, err)
			test.mutate(c)
			require.ErrorIs(t, c.Verify(), test.err)
		})
	}
}

func TestCommitmentOverflow(t *testing.T) {
	require := require.New(t)
	msgs := newTestMessages(2)
	msgs[0].MaxGas = math.MaxUint64
	_, err := NewCommitment(msgs)
	require.ErrorIs(err, ErrOverflow)

	msgs = newTestMessages(2)
	msgs[0].Fee = new(uint256.Int).SetAllOne()
	c, err := NewCommitment(msgs)
	require.NoError(err)
	_, err = c.TotalFee()
	require.ErrorIs(err, ErrOverflow)
}
