// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/database"
	"github.com/luxfi/channel/inbound"
	"github.com/luxfi/channel/lightclient"
	"github.com/luxfi/channel/outbound"
)

// lightClientGenesis is the persisted bootstrap of a hosted light client.
// Clients restart from it and are brought forward by relayers again.
type lightClientGenesis struct {
	Finality      Finality                  `json:"finality"`
	Current       *lightclient.ValidatorSet `json:"current,omitempty"`
	Next          *lightclient.ValidatorSet `json:"next,omitempty"`
	Block         uint64                    `json:"block"`
	Anchor        *lightclient.Header       `json:"anchor,omitempty"`
	FinalityDepth uint64                    `json:"finalityDepth"`
	MinDifficulty uint64                    `json:"minDifficulty,omitempty"`
}

func (c *Chain) authorize(origin common.Address) error {
	if origin != c.config.Admin {
		return fmt.Errorf("%w: %s is not the chain admin", channel.ErrForbidden, origin)
	}
	return nil
}

// AdminNonce returns the nonce the next admin authorization must carry
func (c *Chain) AdminNonce() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.adminNonce
}

// UseAdminNonce consumes the admin nonce for an authorized call by origin.
// The nonce is spent even if the call itself fails afterwards.
func (c *Chain) UseAdminNonce(origin common.Address, nonce uint64) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.authorize(origin); err != nil {
		return err
	}
	if nonce != c.adminNonce {
		return fmt.Errorf("%w: admin nonce %d, expected %d", channel.ErrInvalidNonce, nonce, c.adminNonce)
	}
	if err := database.PutUint64(c.db, adminNonceKey, nonce+1); err != nil {
		return fmt.Errorf("failed to persist admin nonce: %w", err)
	}
	c.adminNonce = nonce + 1
	return nil
}

func putJSON(db database.KeyValueWriter, key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return db.Put(key, b)
}

// RegisterOutbound opens an outbound channel towards config.NetworkID
func (c *Chain) RegisterOutbound(origin common.Address, config outbound.Config) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.authorize(origin); err != nil {
		return err
	}
	key := channelKey{network: config.NetworkID, channel: config.Channel}
	if _, ok := c.outbound[key]; ok {
		return fmt.Errorf("%w: outbound %d/%s", ErrChannelExists, config.NetworkID, config.Channel)
	}
	if err := c.openOutbound(config); err != nil {
		return err
	}
	if err := putJSON(c.db, database.Key(outboundPrefix, database.Uint64Key(uint64(config.NetworkID)), config.Channel.Bytes()), config); err != nil {
		return fmt.Errorf("failed to persist outbound config: %w", err)
	}
	c.log.Info(
		"Registered outbound channel",
		zap.Uint64("destination", uint64(config.NetworkID)),
		zap.Stringer("channel", config.Channel),
	)
	return nil
}

// RegisterInbound opens an inbound channel receiving from config.Origin
func (c *Chain) RegisterInbound(origin common.Address, config inbound.Config) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.authorize(origin); err != nil {
		return err
	}
	if config.NetworkID != c.config.NetworkID {
		return fmt.Errorf("%w: inbound channel for network %d registered on %d", channel.ErrUnknownNetwork, config.NetworkID, c.config.NetworkID)
	}
	key := channelKey{network: config.Origin, channel: config.Channel}
	if _, ok := c.inbound[key]; ok {
		return fmt.Errorf("%w: inbound %d/%s", ErrChannelExists, config.Origin, config.Channel)
	}
	if err := c.openInbound(config); err != nil {
		return err
	}
	if err := putJSON(c.db, database.Key(inboundPrefix, database.Uint64Key(uint64(config.Origin)), config.Channel.Bytes()), config); err != nil {
		return fmt.Errorf("failed to persist inbound config: %w", err)
	}
	c.log.Info(
		"Registered inbound channel",
		zap.Uint64("origin", uint64(config.Origin)),
		zap.Stringer("channel", config.Channel),
	)
	return nil
}

// RegisterHandler binds an inbound dispatch target
func (c *Chain) RegisterHandler(target common.Address, h inbound.Handler) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.registry.Register(target, h)
}

// RotateCommittee schedules a new committee. The next finality statement
// announces it and the statements after that are signed by it.
func (c *Chain) RotateCommittee(origin common.Address, members []common.Address) (*lightclient.ValidatorSet, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.authorize(origin); err != nil {
		return nil, err
	}
	if c.config.Finality != FinalityCommittee {
		return nil, fmt.Errorf("%w: chain %d has no committee", channel.ErrUnknownNetwork, c.config.NetworkID)
	}
	id := c.current.ID + 1
	if c.pending != nil {
		id = c.pending.ID
	}
	next, err := lightclient.NewValidatorSet(id, members)
	if err != nil {
		return nil, err
	}
	c.pending = next
	if err := c.saveValidators(); err != nil {
		return nil, fmt.Errorf("failed to persist validators: %w", err)
	}
	return next.Clone(), nil
}

// InitializeCommittee installs a light client of a committee finalized
// network
func (c *Chain) InitializeCommittee(
	origin common.Address,
	network channel.NetworkID,
	current *lightclient.ValidatorSet,
	next *lightclient.ValidatorSet,
	block uint64,
) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.sync.InitializeCommittee(origin, network, current, next, block, c.config.historySize()); err != nil {
		return err
	}
	return putJSON(c.db, database.Key(lightClientPrefix, database.Uint64Key(uint64(network))), &lightClientGenesis{
		Finality: FinalityCommittee,
		Current:  current,
		Next:     next,
		Block:    block,
	})
}

// InitializeHeaderChain installs a light client of a proof-of-work network.
// A zero minDifficulty requires the difficulty of the anchor.
func (c *Chain) InitializeHeaderChain(
	origin common.Address,
	network channel.NetworkID,
	anchor *lightclient.Header,
	finalityDepth uint64,
	minDifficulty uint64,
) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.sync.InitializeHeaderChain(origin, network, anchor, finalityDepth, minDifficulty); err != nil {
		return err
	}
	return putJSON(c.db, database.Key(lightClientPrefix, database.Uint64Key(uint64(network))), &lightClientGenesis{
		Finality:      FinalityProofOfWork,
		Anchor:        anchor,
		FinalityDepth: finalityDepth,
		MinDifficulty: minDifficulty,
	})
}

func (c *Chain) loadLightClients() error {
	return c.db.IteratePrefix(database.Key(lightClientPrefix, nil), func(key, value []byte) (bool, error) {
		var g lightClientGenesis
		if err := json.Unmarshal(value, &g); err != nil {
			return false, fmt.Errorf("%w: light client genesis: %v", channel.ErrDecode, err)
		}
		network, err := networkFromKey(key)
		if err != nil {
			return false, err
		}
		switch g.Finality {
		case FinalityCommittee:
			err = c.sync.InitializeCommittee(c.config.Admin, network, g.Current, g.Next, g.Block, c.config.historySize())
		case FinalityProofOfWork:
			err = c.sync.InitializeHeaderChain(c.config.Admin, network, g.Anchor, g.FinalityDepth, g.MinDifficulty)
		default:
			err = fmt.Errorf("%w: %q", errUnknownFinality, g.Finality)
		}
		return err == nil, err
	})
}

func networkFromKey(key []byte) (channel.NetworkID, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("%w: light client key %x", channel.ErrDecode, key)
	}
	return channel.NetworkID(binary.BigEndian.Uint64(key[len(key)-8:])), nil
}
