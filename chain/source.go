// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/lightclient"
	"github.com/luxfi/channel/outbound"
)

func (c *Chain) outboundChannel(network channel.NetworkID, channelID common.Address) (*outbound.Channel, error) {
	ch, ok := c.outbound[channelKey{network: network, channel: channelID}]
	if !ok {
		return nil, fmt.Errorf("%w: outbound %d/%s", channel.ErrUnknownChannel, network, channelID)
	}
	return ch, nil
}

// SubmitMessage queues a message on an outbound channel
func (c *Chain) SubmitMessage(
	origin common.Address,
	network channel.NetworkID,
	channelID common.Address,
	target common.Address,
	payload []byte,
	fee *uint256.Int,
	maxGas uint64,
) (*outbound.Accepted, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	ch, err := c.outboundChannel(network, channelID)
	if err != nil {
		return nil, err
	}
	if _, err := ch.Submit(origin, target, payload, fee, maxGas); err != nil {
		return nil, err
	}
	accepted := ch.DrainAccepted()
	return &accepted[len(accepted)-1], nil
}

// OutboundStatus is the nonce state of an outbound channel
type OutboundStatus struct {
	Nonce          uint64 `json:"nonce"`
	CommittedNonce uint64 `json:"committedNonce"`
	Pending        int    `json:"pending"`
	Halted         bool   `json:"halted"`
}

// Outbound returns the state of an outbound channel
func (c *Chain) Outbound(network channel.NetworkID, channelID common.Address) (*OutboundStatus, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	ch, err := c.outboundChannel(network, channelID)
	if err != nil {
		return nil, err
	}
	return &OutboundStatus{
		Nonce:          ch.Nonce(),
		CommittedNonce: ch.CommittedNonce(),
		Pending:        ch.Pending(),
		Halted:         ch.Halted(),
	}, nil
}

// Records returns the commit log entries after afterNonce
func (c *Chain) Records(network channel.NetworkID, channelID common.Address, afterNonce uint64) ([]outbound.Record, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	ch, err := c.outboundChannel(network, channelID)
	if err != nil {
		return nil, err
	}
	return ch.Records(afterNonce)
}

// Commitment reads a raw commitment from off-chain storage
func (c *Chain) Commitment(ctx context.Context, network channel.NetworkID, channelID common.Address, digest common.Hash) (*channel.Commitment, error) {
	c.lock.Lock()
	ch, err := c.outboundChannel(network, channelID)
	c.lock.Unlock()
	if err != nil {
		return nil, err
	}
	return ch.Commitment(ctx, digest)
}

// Statements returns up to limit statements after block afterBlock
func (c *Chain) Statements(afterBlock uint64, limit int) []lightclient.Statement {
	c.lock.Lock()
	defer c.lock.Unlock()

	i := sort.Search(len(c.statements), func(i int) bool {
		return c.statements[i].BlockNumber > afterBlock
	})
	var out []lightclient.Statement
	for ; i < len(c.statements) && (limit <= 0 || len(out) < limit); i++ {
		out = append(out, *c.statements[i])
	}
	return out
}

func (c *Chain) statement(block uint64) (*lightclient.Statement, error) {
	i := sort.Search(len(c.statements), func(i int) bool {
		return c.statements[i].BlockNumber >= block
	})
	if i == len(c.statements) || c.statements[i].BlockNumber != block {
		return nil, fmt.Errorf("%w: no statement at block %d", channel.ErrNotFound, block)
	}
	return c.statements[i], nil
}

// Validators returns the committee that signs the next statement
func (c *Chain) Validators() (*lightclient.ValidatorSet, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.current == nil {
		return nil, fmt.Errorf("%w: chain %d has no committee", channel.ErrUnknownNetwork, c.config.NetworkID)
	}
	return c.current.Clone(), nil
}

// Approve records a committee member's signature over the statement at
// block and reports whether the statement is ready
func (c *Chain) Approve(block uint64, signer common.Address, signature []byte) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	st, err := c.statement(block)
	if err != nil {
		return false, err
	}
	collector, ok := c.approvals[block]
	if !ok {
		return false, fmt.Errorf("%w: approvals of block %d were pruned", channel.ErrStaleClaim, block)
	}
	digest := st.Digest()
	if _, err := collector.Record(digest, signer, signature); err != nil {
		return false, err
	}
	return collector.IsReady(digest), nil
}

// pruneApprovals drops collectors of statements that fell out of history
func (c *Chain) pruneApprovals() {
	size := c.config.historySize()
	if len(c.statements) <= size {
		return
	}
	oldest := c.statements[len(c.statements)-size].BlockNumber
	for block := range c.approvals {
		if block < oldest {
			delete(c.approvals, block)
		}
	}
}

// FinalityClaim returns the statement at block with its signatures once a
// majority of its committee signed it
func (c *Chain) FinalityClaim(block uint64) (*lightclient.FinalityClaim, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	st, err := c.statement(block)
	if err != nil {
		return nil, err
	}
	collector, ok := c.approvals[block]
	if !ok {
		return nil, fmt.Errorf("%w: approvals of block %d were pruned", channel.ErrStaleClaim, block)
	}
	digest := st.Digest()
	if !collector.IsReady(digest) {
		return nil, fmt.Errorf("%w: statement %d has %d of %d signatures", channel.ErrNotReady, block, collector.Count(digest), collector.Threshold())
	}
	return &lightclient.FinalityClaim{
		Statement:  *st,
		Signatures: collector.Signatures(digest),
	}, nil
}

// Headers returns up to limit sealed headers starting at number from
func (c *Chain) Headers(from uint64, limit int) []*lightclient.Header {
	c.lock.Lock()
	defer c.lock.Unlock()

	var out []*lightclient.Header
	for n := from; n < uint64(len(c.headers)) && (limit <= 0 || len(out) < limit); n++ {
		h := *c.headers[n]
		out = append(out, &h)
	}
	return out
}

// Prove builds the inclusion proof of a committed digest. Under committee
// finality the proof is against the statement at block at; under
// proof-of-work finality it is against the header of the commit block and
// at is ignored. The returned height is the block the digest was committed
// in.
func (c *Chain) Prove(
	network channel.NetworkID,
	channelID common.Address,
	digest common.Hash,
	at uint64,
) (*lightclient.Proof, uint64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	pos, ok := c.leaves[leafKey{network: network, channel: channelID, digest: digest}]
	if !ok {
		return nil, 0, fmt.Errorf("%w: commitment %s", channel.ErrNotFound, digest)
	}

	switch c.config.Finality {
	case FinalityCommittee:
		st, err := c.statement(at)
		if err != nil {
			return nil, 0, err
		}
		if st.LeafCount <= pos.index {
			return nil, 0, fmt.Errorf("%w: statement %d precedes commitment %s", channel.ErrNotFinalized, at, digest)
		}
		inclusion, err := c.accumulator.ProveAt(pos.index, st.LeafCount)
		if err != nil {
			return nil, 0, err
		}
		return &lightclient.Proof{Block: at, Inclusion: *inclusion}, pos.block, nil
	default:
		acc := c.blockLeaves[pos.block]
		inclusion, err := acc.Prove(pos.index)
		if err != nil {
			return nil, 0, err
		}
		return &lightclient.Proof{
			Block:     pos.block,
			BlockHash: c.headers[pos.block].Hash(),
			Inclusion: *inclusion,
		}, pos.block, nil
	}
}
