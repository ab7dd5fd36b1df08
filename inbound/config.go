// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package inbound

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/channel"
)

// RewardDenominator is the per-mill base of RewardFraction
const RewardDenominator = 1000

// DefaultRewardFraction pays relayers 80% of the batch fee
const DefaultRewardFraction = 800

var errInvalidRewardFraction = errors.New("reward fraction exceeds denominator")

// Config of one inbound channel
type Config struct {
	// Origin is the network whose light client authenticates deliveries
	Origin channel.NetworkID `json:"origin"`

	// NetworkID is this network's id as stamped on incoming messages
	NetworkID channel.NetworkID `json:"networkID"`
	Channel   common.Address    `json:"channel"`

	// RewardFraction of the batch fee paid to the relayer, in per-mill
	RewardFraction uint64         `json:"rewardFraction"`
	Treasury       common.Address `json:"treasury"`
}

func DefaultConfig(origin, networkID channel.NetworkID, channelID common.Address) Config {
	return Config{
		Origin:         origin,
		NetworkID:      networkID,
		Channel:        channelID,
		RewardFraction: DefaultRewardFraction,
	}
}

func (c *Config) Validate() error {
	if c.RewardFraction > RewardDenominator {
		return fmt.Errorf("%w: %d > %d", errInvalidRewardFraction, c.RewardFraction, RewardDenominator)
	}
	return nil
}
