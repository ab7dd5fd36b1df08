// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/rpc"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/approval"
	"github.com/luxfi/channel/inbound"
	"github.com/luxfi/channel/lightclient"
	"github.com/luxfi/channel/outbound"
)

// Namespace of the JSON-RPC service
const Namespace = "bridge"

// Admin method names signed in an Authorization
const (
	MethodRegisterOutbound      = "registerOutbound"
	MethodRegisterInbound       = "registerInbound"
	MethodRotateCommittee       = "rotateCommittee"
	MethodInitializeCommittee   = "initializeCommittee"
	MethodInitializeHeaderChain = "initializeHeaderChain"
	MethodFinalizeRequest       = "finalizeRequest"
	MethodCancelRequest         = "cancelRequest"
)

// NewServer serves c over JSON-RPC under the bridge namespace
func NewServer(c *Chain) (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName(Namespace, &Service{chain: c}); err != nil {
		return nil, err
	}
	return server, nil
}

// Service exposes a Chain over JSON-RPC. Errors carry numeric codes so
// clients can map them back to sentinels.
type Service struct {
	chain *Chain
}

// Info describes the chain
type Info struct {
	NetworkID  channel.NetworkID `json:"networkID"`
	Finality   Finality          `json:"finality"`
	Height     uint64            `json:"height"`
	AdminNonce uint64            `json:"adminNonce"`
}

// SubmitArgs are the arguments of SubmitMessage
type SubmitArgs struct {
	Origin    common.Address    `json:"origin"`
	NetworkID channel.NetworkID `json:"networkID"`
	Channel   common.Address    `json:"channel"`
	Target    common.Address    `json:"target"`
	Payload   hexutil.Bytes     `json:"payload"`
	Fee       *uint256.Int      `json:"fee"`
	MaxGas    uint64            `json:"maxGas"`
}

// ProofResult is an inclusion proof with the block the digest was
// committed in
type ProofResult struct {
	Block uint64            `json:"block"`
	Proof lightclient.Proof `json:"proof"`
}

// CommitteeInit are the arguments of InitializeCommittee
type CommitteeInit struct {
	Origin  channel.NetworkID         `json:"origin"`
	Current *lightclient.ValidatorSet `json:"current"`
	Next    *lightclient.ValidatorSet `json:"next,omitempty"`
	Block   uint64                    `json:"block"`
}

// HeaderChainInit are the arguments of InitializeHeaderChain
type HeaderChainInit struct {
	Origin        channel.NetworkID   `json:"origin"`
	Anchor        *lightclient.Header `json:"anchor"`
	FinalityDepth uint64              `json:"finalityDepth"`
	MinDifficulty uint64              `json:"minDifficulty,omitempty"`
}

func (s *Service) Info() Info {
	return Info{
		NetworkID:  s.chain.NetworkID(),
		Finality:   s.chain.Finality(),
		Height:     s.chain.Height(),
		AdminNonce: s.chain.AdminNonce(),
	}
}

// AdminNonce returns the nonce the next admin authorization must carry
func (s *Service) AdminNonce() uint64 {
	return s.chain.AdminNonce()
}

// admit checks auth over method and payload and spends its nonce
func (s *Service) admit(auth *Authorization, method string, payload interface{}) (common.Address, error) {
	origin, err := auth.Verify(method, payload)
	if err != nil {
		return common.Address{}, err
	}
	if err := s.chain.UseAdminNonce(origin, auth.Nonce); err != nil {
		return common.Address{}, err
	}
	return origin, nil
}

func (s *Service) SubmitMessage(args SubmitArgs) (*outbound.Accepted, error) {
	accepted, err := s.chain.SubmitMessage(args.Origin, args.NetworkID, args.Channel, args.Target, args.Payload, args.Fee, args.MaxGas)
	return accepted, channel.WithCode(err)
}

func (s *Service) Outbound(network channel.NetworkID, channelID common.Address) (*OutboundStatus, error) {
	status, err := s.chain.Outbound(network, channelID)
	return status, channel.WithCode(err)
}

func (s *Service) Records(network channel.NetworkID, channelID common.Address, afterNonce uint64) ([]outbound.Record, error) {
	records, err := s.chain.Records(network, channelID, afterNonce)
	return records, channel.WithCode(err)
}

// Commitment returns the raw encoding of a commitment
func (s *Service) Commitment(ctx context.Context, network channel.NetworkID, channelID common.Address, digest common.Hash) (hexutil.Bytes, error) {
	c, err := s.chain.Commitment(ctx, network, channelID, digest)
	if err != nil {
		return nil, channel.WithCode(err)
	}
	return c.Bytes(), nil
}

func (s *Service) Statements(afterBlock uint64, limit int) []lightclient.Statement {
	return s.chain.Statements(afterBlock, limit)
}

func (s *Service) Validators() (*lightclient.ValidatorSet, error) {
	vs, err := s.chain.Validators()
	return vs, channel.WithCode(err)
}

func (s *Service) Approve(block uint64, signer common.Address, signature hexutil.Bytes) (bool, error) {
	ready, err := s.chain.Approve(block, signer, signature)
	return ready, channel.WithCode(err)
}

func (s *Service) FinalityClaim(block uint64) (*lightclient.FinalityClaim, error) {
	claim, err := s.chain.FinalityClaim(block)
	return claim, channel.WithCode(err)
}

func (s *Service) Headers(from uint64, limit int) []*lightclient.Header {
	return s.chain.Headers(from, limit)
}

func (s *Service) Prove(network channel.NetworkID, channelID common.Address, digest common.Hash, at uint64) (*ProofResult, error) {
	proof, block, err := s.chain.Prove(network, channelID, digest, at)
	if err != nil {
		return nil, channel.WithCode(err)
	}
	return &ProofResult{Block: block, Proof: *proof}, nil
}

// Deliver takes the RLP encoding of an inbound.Delivery
func (s *Service) Deliver(ctx context.Context, relayer common.Address, origin channel.NetworkID, delivery hexutil.Bytes) (*inbound.Receipt, error) {
	d := &inbound.Delivery{}
	if _, err := channel.Codec.Unmarshal(delivery, d); err != nil {
		return nil, channel.WithCode(channel.ErrDecode)
	}
	receipt, err := s.chain.Deliver(ctx, relayer, origin, d)
	return receipt, channel.WithCode(err)
}

func (s *Service) Dispatched(origin channel.NetworkID, channelID common.Address) (uint64, error) {
	n, err := s.chain.Dispatched(origin, channelID)
	return n, channel.WithCode(err)
}

func (s *Service) ImportFinality(origin channel.NetworkID, claim *lightclient.FinalityClaim) error {
	return channel.WithCode(s.chain.ImportFinality(origin, claim))
}

func (s *Service) ImportHeaders(origin channel.NetworkID, headers []*lightclient.Header) error {
	return channel.WithCode(s.chain.ImportHeaders(origin, headers))
}

func (s *Service) LightClient(origin channel.NetworkID) (*LightClientStatus, error) {
	status, err := s.chain.LightClient(origin)
	return status, channel.WithCode(err)
}

func (s *Service) Statuses(from int) []channel.StatusChange {
	return s.chain.Statuses(from)
}

func (s *Service) Balance(addr common.Address) *uint256.Int {
	return s.chain.Balance(addr)
}

func (s *Service) Inbox(target common.Address) ([]channel.Message, error) {
	msgs, err := s.chain.Inbox(target)
	return msgs, channel.WithCode(err)
}

func (s *Service) RegisterOutbound(auth *Authorization, config outbound.Config) error {
	origin, err := s.admit(auth, MethodRegisterOutbound, config)
	if err != nil {
		return channel.WithCode(err)
	}
	return channel.WithCode(s.chain.RegisterOutbound(origin, config))
}

func (s *Service) RegisterInbound(auth *Authorization, config inbound.Config) error {
	origin, err := s.admit(auth, MethodRegisterInbound, config)
	if err != nil {
		return channel.WithCode(err)
	}
	return channel.WithCode(s.chain.RegisterInbound(origin, config))
}

func (s *Service) RotateCommittee(auth *Authorization, members []common.Address) (*lightclient.ValidatorSet, error) {
	origin, err := s.admit(auth, MethodRotateCommittee, members)
	if err != nil {
		return nil, channel.WithCode(err)
	}
	vs, err := s.chain.RotateCommittee(origin, members)
	return vs, channel.WithCode(err)
}

func (s *Service) InitializeCommittee(auth *Authorization, args CommitteeInit) error {
	origin, err := s.admit(auth, MethodInitializeCommittee, args)
	if err != nil {
		return channel.WithCode(err)
	}
	return channel.WithCode(s.chain.InitializeCommittee(origin, args.Origin, args.Current, args.Next, args.Block))
}

func (s *Service) InitializeHeaderChain(auth *Authorization, args HeaderChainInit) error {
	origin, err := s.admit(auth, MethodInitializeHeaderChain, args)
	if err != nil {
		return channel.WithCode(err)
	}
	return channel.WithCode(s.chain.InitializeHeaderChain(origin, args.Origin, args.Anchor, args.FinalityDepth, args.MinDifficulty))
}

func (s *Service) RegisterRequest(hash common.Hash, network channel.NetworkID, payload hexutil.Bytes) error {
	return channel.WithCode(s.chain.RegisterRequest(hash, network, payload))
}

func (s *Service) ApproveRequest(hash common.Hash, signer common.Address, signature hexutil.Bytes) (string, error) {
	status, err := s.chain.ApproveRequest(hash, signer, signature)
	if err != nil {
		return "", channel.WithCode(err)
	}
	return status.String(), nil
}

func (s *Service) FinalizeRequest(auth *Authorization, hash common.Hash, reason string) error {
	origin, err := s.admit(auth, MethodFinalizeRequest, []interface{}{hash, reason})
	if err != nil {
		return channel.WithCode(err)
	}
	return channel.WithCode(s.chain.FinalizeRequest(origin, hash, reason))
}

func (s *Service) CancelRequest(auth *Authorization, hash common.Hash) error {
	origin, err := s.admit(auth, MethodCancelRequest, hash)
	if err != nil {
		return channel.WithCode(err)
	}
	return channel.WithCode(s.chain.CancelRequest(origin, hash))
}

func (s *Service) Request(hash common.Hash) (*approval.Request, error) {
	req, err := s.chain.Request(hash)
	return req, channel.WithCode(err)
}

func (s *Service) PendingRequests() ([]common.Hash, error) {
	hashes, err := s.chain.PendingRequests()
	return hashes, channel.WithCode(err)
}
