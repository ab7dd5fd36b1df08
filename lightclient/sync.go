// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package lightclient verifies that commitments were finalized on a remote
// network. Two kinds of clients are supported behind one Verify contract:
// committee finality over an accumulator root, and proof-of-work header
// chains.
package lightclient

import (
	"context"
	"fmt"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
)

// Client verifies inclusion of a leaf in the finalized state of one network
type Client interface {
	VerifyInclusion(leaf *Leaf, proof *Proof) error
}

var (
	_ Client = (*CommitteeClient)(nil)
	_ Client = (*HeaderChainClient)(nil)
)

// Sync holds one light client per origin network. Clients can only be
// installed or reset by the admin origin, and a network is initialized at
// most once; ForceSet is the only way to replace committee state.
type Sync struct {
	log     *zap.Logger
	admin   common.Address
	clients map[channel.NetworkID]Client
}

func NewSync(log *zap.Logger, admin common.Address) *Sync {
	return &Sync{
		log:     log,
		admin:   admin,
		clients: make(map[channel.NetworkID]Client),
	}
}

func (s *Sync) authorize(origin common.Address) error {
	if origin != s.admin {
		return fmt.Errorf("%w: %s is not the light client admin", channel.ErrForbidden, origin)
	}
	return nil
}

func (s *Sync) checkFresh(network channel.NetworkID) error {
	if _, ok := s.clients[network]; ok {
		return fmt.Errorf("%w: %d", channel.ErrAlreadyInitialized, network)
	}
	return nil
}

// InitializeCommittee installs a committee client for network
func (s *Sync) InitializeCommittee(
	origin common.Address,
	network channel.NetworkID,
	current *ValidatorSet,
	next *ValidatorSet,
	block uint64,
	historySize int,
) error {
	if err := s.authorize(origin); err != nil {
		return err
	}
	if err := s.checkFresh(network); err != nil {
		return err
	}
	client, err := NewCommitteeClient(
		s.log.With(zap.Uint64("networkID", uint64(network))),
		current,
		next,
		block,
		historySize,
	)
	if err != nil {
		return err
	}
	s.clients[network] = client
	s.log.Info(
		"Initialized committee light client",
		zap.Uint64("networkID", uint64(network)),
		zap.Uint64("validatorSetID", current.ID),
		zap.Uint64("block", block),
	)
	return nil
}

// InitializeHeaderChain installs a header-chain client for network
func (s *Sync) InitializeHeaderChain(
	origin common.Address,
	network channel.NetworkID,
	anchor *Header,
	finalityDepth uint64,
	minDifficulty uint64,
) error {
	if err := s.authorize(origin); err != nil {
		return err
	}
	if err := s.checkFresh(network); err != nil {
		return err
	}
	if anchor == nil {
		return fmt.Errorf("%w: missing anchor header", channel.ErrInvalidProof)
	}
	client := NewHeaderChainClient(
		s.log.With(zap.Uint64("networkID", uint64(network))),
		anchor,
		finalityDepth,
		minDifficulty,
	)
	s.clients[network] = client
	s.log.Info(
		"Initialized header chain light client",
		zap.Uint64("networkID", uint64(network)),
		zap.Uint64("anchor", anchor.Number),
		zap.Uint64("minDifficulty", client.MinDifficulty()),
	)
	return nil
}

// ForceSet resets the committees of a committee client
func (s *Sync) ForceSet(origin common.Address, network channel.NetworkID, current, next *ValidatorSet) error {
	if err := s.authorize(origin); err != nil {
		return err
	}
	c, err := s.Committee(network)
	if err != nil {
		return err
	}
	return c.ForceSet(current, next)
}

// Committee returns the committee client of network
func (s *Sync) Committee(network channel.NetworkID) (*CommitteeClient, error) {
	client, ok := s.clients[network]
	if !ok {
		return nil, fmt.Errorf("%w: %d", channel.ErrNotInitialized, network)
	}
	c, ok := client.(*CommitteeClient)
	if !ok {
		return nil, fmt.Errorf("%w: network %d is not committee finalized", channel.ErrUnknownNetwork, network)
	}
	return c, nil
}

// HeaderChain returns the header-chain client of network
func (s *Sync) HeaderChain(network channel.NetworkID) (*HeaderChainClient, error) {
	client, ok := s.clients[network]
	if !ok {
		return nil, fmt.Errorf("%w: %d", channel.ErrNotInitialized, network)
	}
	c, ok := client.(*HeaderChainClient)
	if !ok {
		return nil, fmt.Errorf("%w: network %d is not a header chain", channel.ErrUnknownNetwork, network)
	}
	return c, nil
}

// ImportFinality imports a committee statement for network
func (s *Sync) ImportFinality(network channel.NetworkID, claim *FinalityClaim) error {
	c, err := s.Committee(network)
	if err != nil {
		return err
	}
	return c.ImportFinality(claim)
}

// ImportHeaders imports headers for network
func (s *Sync) ImportHeaders(network channel.NetworkID, headers []*Header) error {
	c, err := s.HeaderChain(network)
	if err != nil {
		return err
	}
	return c.ImportHeaders(headers)
}

// Verify authenticates leaf as finalized on the origin network. It never
// changes the client state.
func (s *Sync) Verify(ctx context.Context, network channel.NetworkID, leaf *Leaf, proof *Proof) (*Authenticated, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, fmt.Errorf("%w: missing proof", channel.ErrInvalidProof)
	}
	client, ok := s.clients[network]
	if !ok {
		return nil, fmt.Errorf("%w: %d", channel.ErrNotInitialized, network)
	}
	if err := client.VerifyInclusion(leaf, proof); err != nil {
		return nil, err
	}
	return &Authenticated{
		Origin: network,
		Leaf:   *leaf,
		Block:  proof.Block,
	}, nil
}
