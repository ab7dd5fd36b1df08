// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rpc"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/approval"
	"github.com/luxfi/channel/chain"
	"github.com/luxfi/channel/database"
	"github.com/luxfi/channel/inbound"
	"github.com/luxfi/channel/offchain"
	"github.com/luxfi/channel/outbound"
)

var (
	testChannel = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	testTarget  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func newSigner(t *testing.T) *approval.LocalSigner {
	sk, err := crypto.GenerateKey()
	require.NoError(t, err)
	return approval.NewLocalSigner(sk)
}

func newNode(t *testing.T, config chain.Config) (*chain.Chain, *Client) {
	db := database.NewMemDB()
	c, err := chain.New(zap.NewNop(), config, db, offchain.NewDBStore(db))
	require.NoError(t, err)
	server, err := chain.NewServer(c)
	require.NoError(t, err)
	t.Cleanup(server.Stop)
	cl := New(rpc.DialInProc(server))
	t.Cleanup(cl.Close)
	return c, cl
}

func TestAdminCalls(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	admin := newSigner(t)
	member := newSigner(t)
	c, cl := newNode(t, chain.Config{
		NetworkID: 1,
		Admin:     admin.Address(),
		Finality:  chain.FinalityCommittee,
		Committee: []common.Address{member.Address()},
	})

	out := outbound.DefaultConfig(2, testChannel)
	out.CommitInterval = 1
	require.NoError(NewAdmin(cl, admin).RegisterOutbound(ctx, out))
	err := NewAdmin(cl, admin).RegisterOutbound(ctx, out)
	require.ErrorIs(err, chain.ErrChannelExists)

	err = NewAdmin(cl, member).RegisterInbound(ctx, inbound.DefaultConfig(2, 1, testChannel))
	require.ErrorIs(err, channel.ErrForbidden)
	require.Equal(channel.KindRejectedInput, channel.Classify(err))

	vs, err := NewAdmin(cl, admin).RotateCommittee(ctx, []common.Address{admin.Address()})
	require.NoError(err)
	require.Equal(uint64(2), vs.ID)

	// Failed admin calls still spend their nonce, forbidden ones do not.
	nonce, err := cl.AdminNonce(ctx)
	require.NoError(err)
	require.Equal(uint64(3), nonce)
	info, err := cl.Info(ctx)
	require.NoError(err)
	require.Equal(nonce, info.AdminNonce)

	block, err := c.ProduceBlock(ctx)
	require.NoError(err)
	require.NotNil(block.Statement.Next)
}

func TestSubmitAndProve(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	admin := newSigner(t)
	member := newSigner(t)
	c, cl := newNode(t, chain.Config{
		NetworkID: 1,
		Admin:     admin.Address(),
		Finality:  chain.FinalityCommittee,
		Committee: []common.Address{member.Address()},
	})
	out := outbound.DefaultConfig(2, testChannel)
	out.CommitInterval = 1
	require.NoError(NewAdmin(cl, admin).RegisterOutbound(ctx, out))

	accepted, err := cl.SubmitMessage(ctx, chain.SubmitArgs{
		Origin:    admin.Address(),
		NetworkID: 2,
		Channel:   testChannel,
		Target:    testTarget,
		Payload:   []byte("ping"),
		Fee:       uint256.NewInt(5),
		MaxGas:    1000,
	})
	require.NoError(err)
	require.Equal(admin.Address(), accepted.Origin)

	_, err = c.ProduceBlock(ctx)
	require.NoError(err)

	records, err := cl.Records(ctx, 2, testChannel, 0)
	require.NoError(err)
	require.Len(records, 1)

	commitment, err := cl.Commitment(ctx, 2, testChannel, records[0].Digest)
	require.NoError(err)
	require.Len(commitment.Messages, 1)
	require.Equal([]byte("ping"), commitment.Messages[0].Payload)

	_, err = cl.Commitment(ctx, 2, testChannel, common.Hash{1})
	require.ErrorIs(err, channel.ErrNotFound)

	statements, err := cl.Statements(ctx, 0, 0)
	require.NoError(err)
	require.Len(statements, 1)

	_, err = cl.FinalityClaim(ctx, 1)
	require.ErrorIs(err, channel.ErrNotReady)

	sig, err := member.Sign(statements[0].Digest())
	require.NoError(err)
	ready, err := cl.Approve(ctx, 1, member.Address(), sig)
	require.NoError(err)
	require.True(ready)

	claim, err := cl.FinalityClaim(ctx, 1)
	require.NoError(err)
	require.Equal(statements[0].Digest(), claim.Statement.Digest())

	proof, block, err := cl.Prove(ctx, 2, testChannel, records[0].Digest, 1)
	require.NoError(err)
	require.Equal(uint64(1), block)
	require.Equal(uint64(1), proof.Inclusion.LeafCount)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "coded error",
			err:  &channel.Error{Code: -32040, Message: "already delivered"},
			want: channel.ErrAlreadyDelivered,
		},
		{
			name: "transport error",
			err:  errTransport,
			want: errTransport,
		},
		{
			name: "nil",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}
}

var errTransport = errors.New("connection refused")
