// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package inbound delivers authenticated commitments on the destination
// chain exactly once and in nonce order.
package inbound

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/database"
	"github.com/luxfi/channel/lightclient"
)

var dispatchedKey = []byte("dispatched")

// Verifier authenticates a commitment leaf as final on its origin network
type Verifier interface {
	Verify(ctx context.Context, network channel.NetworkID, leaf *lightclient.Leaf, proof *lightclient.Proof) (*lightclient.Authenticated, error)
}

// FeeSink moves delivery fees
type FeeSink interface {
	Pay(to common.Address, amount *uint256.Int) error
}

// Delivery is what a relayer submits: the raw commitment, the source height
// it was recorded at and the proof of its finality
type Delivery struct {
	Commitment channel.Commitment `json:"commitment"`
	Block      uint64             `json:"block"`
	Proof      lightclient.Proof  `json:"proof"`
}

// Leaf returns the accumulator leaf the proof must authenticate
func (d *Delivery) Leaf() *lightclient.Leaf {
	return &lightclient.Leaf{
		NetworkID: d.Commitment.NetworkID(),
		Channel:   d.Commitment.Channel(),
		Digest:    d.Commitment.Digest(),
		Block:     d.Block,
	}
}

// Result is the outcome of one dispatched message
type Result struct {
	Nonce  uint64         `json:"nonce"`
	Status channel.Status `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// Receipt summarises an accepted delivery
type Receipt struct {
	Digest  common.Hash    `json:"digest"`
	Relayer common.Address `json:"relayer"`
	Results []Result       `json:"results"`
	Reward  *uint256.Int   `json:"reward"`
}

// Channel is the receiving end of one channel.
//
// Channel is not safe for concurrent use; the hosting chain applies
// submissions sequentially.
type Channel struct {
	config   Config
	log      *zap.Logger
	db       database.Database
	verifier Verifier
	registry *Registry
	fees     FeeSink
	notifier channel.StatusNotifier
	prefix   []byte

	dispatched uint64
}

func New(
	log *zap.Logger,
	config Config,
	db database.Database,
	verifier Verifier,
	registry *Registry,
	fees FeeSink,
	notifier channel.StatusNotifier,
) (*Channel, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid inbound config: %w", err)
	}
	if notifier == nil {
		notifier = channel.NoopNotifier{}
	}
	c := &Channel{
		config:   config,
		log:      log.With(zap.Uint64("origin", uint64(config.Origin)), zap.Stringer("channel", config.Channel)),
		db:       db,
		verifier: verifier,
		registry: registry,
		fees:     fees,
		notifier: notifier,
		prefix:   Prefix(config.Origin, config.Channel),
	}
	dispatched, err := database.GetUint64OrZero(db, database.Key(c.prefix, dispatchedKey))
	if err != nil {
		return nil, fmt.Errorf("failed to load dispatched nonce: %w", err)
	}
	c.dispatched = dispatched
	return c, nil
}

// Prefix is the database prefix of an inbound channel's state
func Prefix(origin channel.NetworkID, channelID common.Address) []byte {
	return database.Key([]byte("inbound"), database.Uint64Key(uint64(origin)), channelID.Bytes())
}

// check validates d against the nonce counter without side effects
func (c *Channel) check(d *Delivery) error {
	cm := &d.Commitment
	if err := cm.Verify(); err != nil {
		return err
	}
	if cm.NetworkID() != c.config.NetworkID || cm.Channel() != c.config.Channel {
		return fmt.Errorf("%w: commitment for %d/%s", channel.ErrUnknownChannel, cm.NetworkID(), cm.Channel())
	}
	if cm.LastNonce() <= c.dispatched {
		return fmt.Errorf("%w: nonces %d-%d, dispatched %d", channel.ErrAlreadyDelivered, cm.FirstNonce(), cm.LastNonce(), c.dispatched)
	}
	if cm.FirstNonce() != c.dispatched+1 {
		return fmt.Errorf("%w: first nonce %d, expected %d", channel.ErrInvalidNonce, cm.FirstNonce(), c.dispatched+1)
	}
	return nil
}

// Submit verifies and dispatches a delivery. Either every message is
// consumed or the channel state is untouched. Handler failures are reported
// per message and do not stop the nonce from advancing.
func (c *Channel) Submit(ctx context.Context, relayer common.Address, d *Delivery) (*Receipt, error) {
	if err := c.check(d); err != nil {
		return nil, err
	}
	if _, err := c.verifier.Verify(ctx, c.config.Origin, d.Leaf(), &d.Proof); err != nil {
		return nil, err
	}
	cm := &d.Commitment
	if err := database.PutUint64(c.db, database.Key(c.prefix, dispatchedKey), cm.LastNonce()); err != nil {
		return nil, fmt.Errorf("failed to persist dispatched nonce: %w", err)
	}

	receipt := &Receipt{
		Digest:  cm.Digest(),
		Relayer: relayer,
		Results: make([]Result, 0, len(cm.Messages)),
	}
	for i := range cm.Messages {
		msg := &cm.Messages[i]
		c.dispatched = msg.Nonce
		result := Result{Nonce: msg.Nonce, Status: channel.StatusDelivered}
		if err := c.registry.Dispatch(ctx, msg); err != nil {
			result.Status = channel.StatusFailed
			result.Error = err.Error()
			c.log.Warn(
				"Message dispatch failed",
				zap.Uint64("nonce", msg.Nonce),
				zap.Stringer("target", msg.Target),
				zap.Error(err),
			)
		}
		receipt.Results = append(receipt.Results, result)
		c.notifier.OnStatusChange(c.config.Origin, msg.ID(), result.Status)
	}
	receipt.Reward = c.payFees(relayer, cm)

	c.log.Info(
		"Delivered commitment",
		zap.Stringer("digest", receipt.Digest),
		zap.Stringer("relayer", relayer),
		zap.Uint64("firstNonce", cm.FirstNonce()),
		zap.Uint64("lastNonce", cm.LastNonce()),
	)
	return receipt, nil
}

// payFees splits the batch fee between relayer and treasury. Failures are
// logged only.
func (c *Channel) payFees(relayer common.Address, cm *channel.Commitment) *uint256.Int {
	reward := new(uint256.Int)
	if c.fees == nil {
		return reward
	}
	total, err := cm.TotalFee()
	if err != nil {
		c.log.Error("Failed to sum batch fee", zap.Error(err))
		return reward
	}
	if total.IsZero() {
		return reward
	}
	// 512-bit intermediate product
	reward, _ = new(uint256.Int).MulDivOverflow(total, uint256.NewInt(c.config.RewardFraction), uint256.NewInt(RewardDenominator))
	remainder := new(uint256.Int).Sub(total, reward)

	if err := c.fees.Pay(relayer, reward); err != nil {
		c.log.Error(
			"Failed to pay relayer reward",
			zap.Stringer("relayer", relayer),
			zap.Stringer("amount", reward),
			zap.Error(err),
		)
		reward = new(uint256.Int)
	}
	if !remainder.IsZero() {
		if err := c.fees.Pay(c.config.Treasury, remainder); err != nil {
			c.log.Error(
				"Failed to pay treasury",
				zap.Stringer("amount", remainder),
				zap.Error(err),
			)
		}
	}
	return reward
}

// Dispatched returns the last dispatched nonce
func (c *Channel) Dispatched() uint64 { return c.dispatched }

// Config returns the channel config
func (c *Channel) Config() Config { return c.config }
