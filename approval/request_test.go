// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package approval

import (
	"errors"
	"testing"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRequestLifecycle(t *testing.T) {
	require := require.New(t)
	keys, peers := newKeys(t, 4)
	var seen []RequestStatus
	requests := NewRequests(zap.NewNop(), NewCollector(1, peers), func(r Request) {
		seen = append(seen, r.Status)
	})

	hash := common.Hash(crypto.Keccak256Hash([]byte("transfer")))
	require.NoError(requests.Register(hash, 2, []byte("payload")))
	require.ErrorIs(requests.Register(hash, 2, nil), ErrRequestExists)

	for i := 0; i < 2; i++ {
		status, err := requests.Approve(hash, peers[i], sign(t, hash, keys[i]))
		require.NoError(err)
		require.Equal(RequestPending, status)
	}
	require.Empty(requests.Pending())

	status, err := requests.Approve(hash, peers[2], sign(t, hash, keys[2]))
	require.NoError(err)
	require.Equal(RequestApprovalsReady, status)
	require.Len(requests.Pending(), 1)

	// Late approvals are recorded but the state stays put.
	status, err = requests.Approve(hash, peers[3], sign(t, hash, keys[3]))
	require.NoError(err)
	require.Equal(RequestApprovalsReady, status)

	require.NoError(requests.Finalize(hash, nil))
	require.Empty(requests.Pending())
	req, ok := requests.Get(hash)
	require.True(ok)
	require.Equal(RequestDone, req.Status)
	require.Equal([]RequestStatus{RequestPending, RequestApprovalsReady, RequestDone}, seen)

	require.ErrorIs(requests.Cancel(hash), ErrInvalidTransition)
}

func TestRequestFailureLeavesPendingIndex(t *testing.T) {
	require := require.New(t)
	keys, peers := newKeys(t, 1)
	var last Request
	requests := NewRequests(zap.NewNop(), NewCollector(1, peers), func(r Request) {
		last = r
	})

	hash := common.Hash(crypto.Keccak256Hash([]byte("bad")))
	require.NoError(requests.Register(hash, 2, nil))
	status, err := requests.Approve(hash, peers[0], sign(t, hash, keys[0]))
	require.NoError(err)
	require.Equal(RequestApprovalsReady, status)

	require.NoError(requests.Finalize(hash, errors.New("execution reverted")))
	require.Empty(requests.Pending())
	require.Equal(RequestFailed, last.Status)
	require.Equal("execution reverted", last.Reason)

	require.ErrorIs(requests.Finalize(hash, nil), ErrInvalidTransition)
}

func TestRequestCancel(t *testing.T) {
	require := require.New(t)
	_, peers := newKeys(t, 4)
	requests := NewRequests(zap.NewNop(), NewCollector(1, peers), nil)

	hash := common.Hash(crypto.Keccak256Hash([]byte("cancel")))
	require.ErrorIs(requests.Cancel(hash), ErrUnknownRequest)
	require.NoError(requests.Register(hash, 2, nil))
	require.NoError(requests.Cancel(hash))

	req, ok := requests.Get(hash)
	require.True(ok)
	require.Equal(RequestCancelled, req.Status)
	require.ErrorIs(requests.Fail(hash, "late"), ErrInvalidTransition)
}
