// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package client talks to a chain node over JSON-RPC.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/rpc"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/approval"
	"github.com/luxfi/channel/chain"
	"github.com/luxfi/channel/inbound"
	"github.com/luxfi/channel/lightclient"
	"github.com/luxfi/channel/outbound"
)

// Client is a typed wrapper of the bridge RPC namespace. Coded RPC errors
// are mapped back to the channel sentinels so errors.Is works across the
// hop.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to a node at rawurl (http, ws or ipc)
func Dial(ctx context.Context, rawurl string) (*Client, error) {
	c, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rawurl, err)
	}
	return New(c), nil
}

// New wraps an established RPC client
func New(c *rpc.Client) *Client {
	return &Client{rpc: c}
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return mapError(c.rpc.CallContext(ctx, result, chain.Namespace+"_"+method, args...))
}

func mapError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return channel.FromCode(rpcErr.ErrorCode(), rpcErr.Error())
	}
	return err
}

func (c *Client) Info(ctx context.Context) (*chain.Info, error) {
	var info chain.Info
	if err := c.call(ctx, &info, "info"); err != nil {
		return nil, err
	}
	return &info, nil
}

// AdminNonce returns the nonce the next admin call must be signed with
func (c *Client) AdminNonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	err := c.call(ctx, &nonce, "adminNonce")
	return nonce, err
}

func (c *Client) SubmitMessage(ctx context.Context, args chain.SubmitArgs) (*outbound.Accepted, error) {
	var accepted outbound.Accepted
	if err := c.call(ctx, &accepted, "submitMessage", args); err != nil {
		return nil, err
	}
	return &accepted, nil
}

func (c *Client) Outbound(ctx context.Context, network channel.NetworkID, channelID common.Address) (*chain.OutboundStatus, error) {
	var status chain.OutboundStatus
	if err := c.call(ctx, &status, "outbound", network, channelID); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) Records(ctx context.Context, network channel.NetworkID, channelID common.Address, afterNonce uint64) ([]outbound.Record, error) {
	var records []outbound.Record
	err := c.call(ctx, &records, "records", network, channelID, afterNonce)
	return records, err
}

// Commitment fetches a raw commitment and checks it hashes to digest
func (c *Client) Commitment(ctx context.Context, network channel.NetworkID, channelID common.Address, digest common.Hash) (*channel.Commitment, error) {
	var raw hexutil.Bytes
	if err := c.call(ctx, &raw, "commitment", network, channelID, digest); err != nil {
		return nil, err
	}
	commitment, err := channel.ParseCommitment(raw)
	if err != nil {
		return nil, err
	}
	if got := commitment.Digest(); got != digest {
		return nil, fmt.Errorf("%w: node returned commitment %s for %s", channel.ErrInvalidProof, got, digest)
	}
	return commitment, nil
}

func (c *Client) Statements(ctx context.Context, afterBlock uint64, limit int) ([]lightclient.Statement, error) {
	var statements []lightclient.Statement
	err := c.call(ctx, &statements, "statements", afterBlock, limit)
	return statements, err
}

func (c *Client) Validators(ctx context.Context) (*lightclient.ValidatorSet, error) {
	var vs lightclient.ValidatorSet
	if err := c.call(ctx, &vs, "validators"); err != nil {
		return nil, err
	}
	return &vs, nil
}

func (c *Client) Approve(ctx context.Context, block uint64, signer common.Address, signature []byte) (bool, error) {
	var ready bool
	err := c.call(ctx, &ready, "approve", block, signer, hexutil.Bytes(signature))
	return ready, err
}

func (c *Client) FinalityClaim(ctx context.Context, block uint64) (*lightclient.FinalityClaim, error) {
	var claim lightclient.FinalityClaim
	if err := c.call(ctx, &claim, "finalityClaim", block); err != nil {
		return nil, err
	}
	return &claim, nil
}

func (c *Client) Headers(ctx context.Context, from uint64, limit int) ([]*lightclient.Header, error) {
	var headers []*lightclient.Header
	err := c.call(ctx, &headers, "headers", from, limit)
	return headers, err
}

func (c *Client) Prove(ctx context.Context, network channel.NetworkID, channelID common.Address, digest common.Hash, at uint64) (*lightclient.Proof, uint64, error) {
	var result chain.ProofResult
	if err := c.call(ctx, &result, "prove", network, channelID, digest, at); err != nil {
		return nil, 0, err
	}
	return &result.Proof, result.Block, nil
}

// Deliver submits d to the inbound channel of origin
func (c *Client) Deliver(ctx context.Context, relayer common.Address, origin channel.NetworkID, d *inbound.Delivery) (*inbound.Receipt, error) {
	b, err := channel.Codec.Marshal(channel.CodecVersion, d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode delivery: %w", err)
	}
	var receipt inbound.Receipt
	if err := c.call(ctx, &receipt, "deliver", relayer, origin, hexutil.Bytes(b)); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) Dispatched(ctx context.Context, origin channel.NetworkID, channelID common.Address) (uint64, error) {
	var n uint64
	err := c.call(ctx, &n, "dispatched", origin, channelID)
	return n, err
}

func (c *Client) ImportFinality(ctx context.Context, origin channel.NetworkID, claim *lightclient.FinalityClaim) error {
	return c.call(ctx, nil, "importFinality", origin, claim)
}

func (c *Client) ImportHeaders(ctx context.Context, origin channel.NetworkID, headers []*lightclient.Header) error {
	return c.call(ctx, nil, "importHeaders", origin, headers)
}

func (c *Client) LightClient(ctx context.Context, origin channel.NetworkID) (*chain.LightClientStatus, error) {
	var status chain.LightClientStatus
	if err := c.call(ctx, &status, "lightClient", origin); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) Statuses(ctx context.Context, from int) ([]channel.StatusChange, error) {
	var changes []channel.StatusChange
	err := c.call(ctx, &changes, "statuses", from)
	return changes, err
}

func (c *Client) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	var balance uint256.Int
	if err := c.call(ctx, &balance, "balance", addr); err != nil {
		return nil, err
	}
	return &balance, nil
}

func (c *Client) Inbox(ctx context.Context, target common.Address) ([]channel.Message, error) {
	var msgs []channel.Message
	err := c.call(ctx, &msgs, "inbox", target)
	return msgs, err
}

func (c *Client) RegisterRequest(ctx context.Context, hash common.Hash, network channel.NetworkID, payload []byte) error {
	return c.call(ctx, nil, "registerRequest", hash, network, hexutil.Bytes(payload))
}

func (c *Client) ApproveRequest(ctx context.Context, hash common.Hash, signer common.Address, signature []byte) (string, error) {
	var status string
	err := c.call(ctx, &status, "approveRequest", hash, signer, hexutil.Bytes(signature))
	return status, err
}

func (c *Client) Request(ctx context.Context, hash common.Hash) (*approval.Request, error) {
	var req approval.Request
	if err := c.call(ctx, &req, "request", hash); err != nil {
		return nil, err
	}
	return &req, nil
}

func (c *Client) PendingRequests(ctx context.Context) ([]common.Hash, error) {
	var hashes []common.Hash
	err := c.call(ctx, &hashes, "pendingRequests")
	return hashes, err
}
