// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/rpc"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/database"
	"github.com/luxfi/channel/lightclient"
	"github.com/luxfi/channel/outbound"
)

func dial(t *testing.T, c *Chain) *rpc.Client {
	server, err := NewServer(c)
	require.NoError(t, err)
	t.Cleanup(server.Stop)
	client := rpc.DialInProc(server)
	t.Cleanup(client.Close)
	return client
}

func codeOf(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return channel.FromCode(rpcErr.ErrorCode(), rpcErr.Error())
	}
	return err
}

func TestServiceAdminAuthorization(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	n := newTestNet(t, FinalityCommittee)
	client := dial(t, n.a)

	config := outbound.DefaultConfig(networkB, inbox)
	auth, err := Authorize(n.admin, MethodRegisterOutbound, n.a.AdminNonce(), config)
	require.NoError(err)
	require.NoError(client.CallContext(ctx, nil, Namespace+"_registerOutbound", auth, config))

	// The same authorization does not cover a different payload.
	other := outbound.DefaultConfig(networkB, sender)
	err = client.CallContext(ctx, nil, Namespace+"_registerOutbound", auth, other)
	require.ErrorIs(codeOf(err), channel.ErrForbidden)

	// A valid signature by a non-admin is rejected by the chain.
	intruder := newSigner(t)
	auth, err = Authorize(intruder, MethodRegisterOutbound, n.a.AdminNonce(), other)
	require.NoError(err)
	err = client.CallContext(ctx, nil, Namespace+"_registerOutbound", auth, other)
	require.ErrorIs(codeOf(err), channel.ErrForbidden)

	// An admin signature over a spent nonce is rejected.
	auth, err = Authorize(n.admin, MethodRegisterOutbound, 0, other)
	require.NoError(err)
	err = client.CallContext(ctx, nil, Namespace+"_registerOutbound", auth, other)
	require.ErrorIs(codeOf(err), channel.ErrInvalidNonce)

	var nonce uint64
	require.NoError(client.CallContext(ctx, &nonce, Namespace+"_adminNonce"))
	require.Equal(uint64(1), nonce)
	require.Equal(uint64(1), newChain(t, n.a.config, n.a.db).AdminNonce())
}

func TestServiceRejectsReplayedInitialization(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	n := newTestNet(t, FinalityCommittee)
	dest := newChain(t, Config{
		NetworkID:  networkB,
		Admin:      n.admin.Address(),
		Finality:   FinalityProofOfWork,
		Difficulty: 4,
	}, database.NewMemDB())
	client := dial(t, dest)

	vs, err := n.a.Validators()
	require.NoError(err)
	args := CommitteeInit{Origin: networkA, Current: vs}
	auth, err := Authorize(n.admin, MethodInitializeCommittee, dest.AdminNonce(), args)
	require.NoError(err)
	require.NoError(client.CallContext(ctx, nil, Namespace+"_initializeCommittee", auth, args))

	n.submit(t, 1)
	_, err = n.a.ProduceBlock(ctx)
	require.NoError(err)
	n.sign(t, 1, 3)
	claim, err := n.a.FinalityClaim(1)
	require.NoError(err)
	require.NoError(client.CallContext(ctx, nil, Namespace+"_importFinality", networkA, claim))

	err = client.CallContext(ctx, nil, Namespace+"_initializeCommittee", auth, args)
	require.ErrorIs(codeOf(err), channel.ErrInvalidNonce)

	// A fresh authorization cannot rewind the client either.
	auth, err = Authorize(n.admin, MethodInitializeCommittee, dest.AdminNonce(), args)
	require.NoError(err)
	err = client.CallContext(ctx, nil, Namespace+"_initializeCommittee", auth, args)
	require.ErrorIs(codeOf(err), channel.ErrAlreadyInitialized)

	var status LightClientStatus
	require.NoError(client.CallContext(ctx, &status, Namespace+"_lightClient", networkA))
	require.Equal(uint64(1), status.Latest)
}

func TestServiceRejectsReplayedRotation(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	n := newTestNet(t, FinalityCommittee)
	client := dial(t, n.a)

	members := []common.Address{n.signers[0].Address(), n.signers[1].Address()}
	auth, err := Authorize(n.admin, MethodRotateCommittee, n.a.AdminNonce(), members)
	require.NoError(err)
	var next lightclient.ValidatorSet
	require.NoError(client.CallContext(ctx, &next, Namespace+"_rotateCommittee", auth, members))
	require.Equal(uint64(2), next.ID)

	block, err := n.a.ProduceBlock(ctx)
	require.NoError(err)
	require.Equal(uint64(2), block.Statement.Next.ID)

	err = client.CallContext(ctx, &next, Namespace+"_rotateCommittee", auth, members)
	require.ErrorIs(codeOf(err), channel.ErrInvalidNonce)

	// No handover is queued again.
	n.submit(t, 1)
	block, err = n.a.ProduceBlock(ctx)
	require.NoError(err)
	require.Equal(uint64(2), block.Statement.ValidatorSetID)
	require.Nil(block.Statement.Next)
}

func TestServiceSubmitAndRead(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	n := newTestNet(t, FinalityCommittee)
	client := dial(t, n.a)

	args := SubmitArgs{
		Origin:    sender,
		NetworkID: networkB,
		Channel:   testChannel,
		Target:    inbox,
		Payload:   hexutil.Bytes("hello"),
		Fee:       uint256.NewInt(7),
		MaxGas:    21000,
	}
	var accepted outbound.Accepted
	require.NoError(client.CallContext(ctx, &accepted, Namespace+"_submitMessage", args))
	require.Equal(sender, accepted.Origin)

	args.NetworkID = 42
	err := client.CallContext(ctx, &accepted, Namespace+"_submitMessage", args)
	require.ErrorIs(codeOf(err), channel.ErrUnknownChannel)

	_, err = n.a.ProduceBlock(ctx)
	require.NoError(err)

	var info Info
	require.NoError(client.CallContext(ctx, &info, Namespace+"_info"))
	require.Equal(uint64(1), info.Height)
	require.Equal(FinalityCommittee, info.Finality)

	var records []outbound.Record
	require.NoError(client.CallContext(ctx, &records, Namespace+"_records", networkB, testChannel, 0))
	require.Len(records, 1)

	var raw hexutil.Bytes
	require.NoError(client.CallContext(ctx, &raw, Namespace+"_commitment", networkB, testChannel, records[0].Digest))
	c, err := channel.ParseCommitment(raw)
	require.NoError(err)
	require.Equal(records[0].Digest, c.Digest())

	err = client.CallContext(ctx, nil, Namespace+"_finalityClaim", 1)
	require.ErrorIs(codeOf(err), channel.ErrNotReady)
	require.Equal(channel.KindTransient, channel.Classify(codeOf(err)))
}
