// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package queue

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/channel"
)

func newMessage(nonce uint64, gas uint64, payload []byte) channel.Message {
	return channel.Message{
		NetworkID: 1,
		Nonce:     nonce,
		Fee:       uint256.NewInt(1),
		MaxGas:    gas,
		Payload:   payload,
	}
}

func TestPushLimits(t *testing.T) {
	require := require.New(t)
	q := New(2, 4)

	err := q.Push(newMessage(1, 0, []byte("too large")))
	require.ErrorIs(err, channel.ErrPayloadTooLarge)
	require.Zero(q.Len())

	require.NoError(q.Push(newMessage(1, 0, []byte("a"))))
	require.NoError(q.Push(newMessage(2, 0, []byte("b"))))
	err = q.Push(newMessage(3, 0, []byte("c")))
	require.ErrorIs(err, channel.ErrQueueSizeLimitReached)
	require.Equal(2, q.Len())
}

func TestTakeKeepsRemainderInOrder(t *testing.T) {
	require := require.New(t)
	q := New(10, 16)
	for i := uint64(1); i <= 7; i++ {
		require.NoError(q.Push(newMessage(i, 10, nil)))
	}

	batch := q.Take(5, 0)
	require.Len(batch, 5)
	for i, msg := range batch {
		require.Equal(uint64(i+1), msg.Nonce)
	}
	require.Equal(2, q.Len())

	batch = q.Take(5, 0)
	require.Len(batch, 2)
	require.Equal(uint64(6), batch[0].Nonce)
	require.Equal(uint64(7), batch[1].Nonce)
	require.Nil(q.Take(5, 0))
}

func TestTakeGasCap(t *testing.T) {
	require := require.New(t)
	q := New(10, 16)
	require.NoError(q.Push(newMessage(1, 100, nil)))
	require.NoError(q.Push(newMessage(2, 50, nil)))
	require.NoError(q.Push(newMessage(3, 10, nil)))

	// An oversized first message is still taken alone.
	batch := q.Take(10, 60)
	require.Len(batch, 1)
	require.Equal(uint64(1), batch[0].Nonce)

	batch = q.Take(10, 60)
	require.Len(batch, 2)
	require.Equal(uint64(2), batch[0].Nonce)
	require.Equal(uint64(3), batch[1].Nonce)
}
