// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"context"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/approval"
	"github.com/luxfi/channel/chain"
	"github.com/luxfi/channel/inbound"
	"github.com/luxfi/channel/lightclient"
	"github.com/luxfi/channel/outbound"
)

// Admin signs privileged calls with the chain admin key
type Admin struct {
	*Client
	signer approval.Signer
}

// NewAdmin returns a client whose admin calls are signed by signer
func NewAdmin(c *Client, signer approval.Signer) *Admin {
	return &Admin{Client: c, signer: signer}
}

// authorized signs method at the current admin nonce. Admin calls are not
// meant to run concurrently: a lost race fails with ErrInvalidNonce.
func (a *Admin) authorized(ctx context.Context, result interface{}, method string, payload interface{}, args ...interface{}) error {
	nonce, err := a.AdminNonce(ctx)
	if err != nil {
		return err
	}
	auth, err := chain.Authorize(a.signer, method, nonce, payload)
	if err != nil {
		return err
	}
	return a.call(ctx, result, method, append([]interface{}{auth}, args...)...)
}

func (a *Admin) RegisterOutbound(ctx context.Context, config outbound.Config) error {
	return a.authorized(ctx, nil, chain.MethodRegisterOutbound, config, config)
}

func (a *Admin) RegisterInbound(ctx context.Context, config inbound.Config) error {
	return a.authorized(ctx, nil, chain.MethodRegisterInbound, config, config)
}

func (a *Admin) RotateCommittee(ctx context.Context, members []common.Address) (*lightclient.ValidatorSet, error) {
	var vs lightclient.ValidatorSet
	if err := a.authorized(ctx, &vs, chain.MethodRotateCommittee, members, members); err != nil {
		return nil, err
	}
	return &vs, nil
}

func (a *Admin) InitializeCommittee(ctx context.Context, origin channel.NetworkID, current, next *lightclient.ValidatorSet, block uint64) error {
	args := chain.CommitteeInit{Origin: origin, Current: current, Next: next, Block: block}
	return a.authorized(ctx, nil, chain.MethodInitializeCommittee, args, args)
}

func (a *Admin) InitializeHeaderChain(ctx context.Context, origin channel.NetworkID, anchor *lightclient.Header, finalityDepth uint64, minDifficulty uint64) error {
	args := chain.HeaderChainInit{Origin: origin, Anchor: anchor, FinalityDepth: finalityDepth, MinDifficulty: minDifficulty}
	return a.authorized(ctx, nil, chain.MethodInitializeHeaderChain, args, args)
}

func (a *Admin) FinalizeRequest(ctx context.Context, hash common.Hash, reason string) error {
	return a.authorized(ctx, nil, chain.MethodFinalizeRequest, []interface{}{hash, reason}, hash, reason)
}

func (a *Admin) CancelRequest(ctx context.Context, hash common.Hash) error {
	return a.authorized(ctx, nil, chain.MethodCancelRequest, hash, hash)
}
