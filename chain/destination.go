// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/inbound"
	"github.com/luxfi/channel/lightclient"
)

// LightClientStatus is the progress of a hosted light client
type LightClientStatus struct {
	Finality Finality `json:"finality"`

	// committee finality
	Latest         uint64 `json:"latest"`
	ValidatorSetID uint64 `json:"validatorSetID"`
	NextSetID      uint64 `json:"nextSetID"`

	// proof-of-work finality
	Best          uint64 `json:"best"`
	Finalized     uint64 `json:"finalized"`
	MinDifficulty uint64 `json:"minDifficulty"`
}

func (c *Chain) inboundChannel(origin channel.NetworkID, channelID common.Address) (*inbound.Channel, error) {
	ch, ok := c.inbound[channelKey{network: origin, channel: channelID}]
	if !ok {
		return nil, fmt.Errorf("%w: inbound %d/%s", channel.ErrUnknownChannel, origin, channelID)
	}
	return ch, nil
}

// Deliver submits a relayed commitment to the inbound channel of origin
func (c *Chain) Deliver(ctx context.Context, relayer common.Address, origin channel.NetworkID, d *inbound.Delivery) (*inbound.Receipt, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	ch, err := c.inboundChannel(origin, d.Commitment.Channel())
	if err != nil {
		return nil, err
	}
	return ch.Submit(ctx, relayer, d)
}

// Dispatched returns the last dispatched nonce of an inbound channel
func (c *Chain) Dispatched(origin channel.NetworkID, channelID common.Address) (uint64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	ch, err := c.inboundChannel(origin, channelID)
	if err != nil {
		return 0, err
	}
	return ch.Dispatched(), nil
}

// ImportFinality imports a committee statement of origin
func (c *Chain) ImportFinality(origin channel.NetworkID, claim *lightclient.FinalityClaim) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.sync.ImportFinality(origin, claim)
}

// ImportHeaders imports headers of origin
func (c *Chain) ImportHeaders(origin channel.NetworkID, headers []*lightclient.Header) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.sync.ImportHeaders(origin, headers)
}

// LightClient returns the progress of the light client of origin
func (c *Chain) LightClient(origin channel.NetworkID) (*LightClientStatus, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if committee, err := c.sync.Committee(origin); err == nil {
		status := &LightClientStatus{
			Finality:       FinalityCommittee,
			Latest:         committee.Latest(),
			ValidatorSetID: committee.Current().ID,
		}
		if next := committee.Next(); next != nil {
			status.NextSetID = next.ID
		}
		return status, nil
	}
	headers, err := c.sync.HeaderChain(origin)
	if err != nil {
		return nil, err
	}
	return &LightClientStatus{
		Finality:      FinalityProofOfWork,
		Best:          headers.Best().Number,
		Finalized:     headers.Finalized().Number,
		MinDifficulty: headers.MinDifficulty(),
	}, nil
}

// Balance returns the fees credited to addr
func (c *Chain) Balance(addr common.Address) *uint256.Int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ledger.Balance(addr)
}
