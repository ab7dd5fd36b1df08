// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package outbound

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/offchain"
)

const (
	KindBasic        = "basic"
	KindIncentivized = "incentivized"

	DefaultMaxMessagesPerCommit = 20
	DefaultCommitInterval       = 10
)

// Config of a single outbound channel
type Config struct {
	NetworkID channel.NetworkID
	Channel   common.Address
	// Kind separates commitment keys of different channel flavours in
	// off-chain storage.
	Kind string

	MaxPayloadSize       int
	MaxMessagesPerCommit int
	// QueueCapacity bounds pending messages. Zero means MaxMessagesPerCommit.
	QueueCapacity int
	// MaxGasPerCommit caps the summed MaxGas of a batch. Zero disables it.
	MaxGasPerCommit uint64
	// CommitInterval is the number of blocks between commits
	CommitInterval uint64
	StoragePrefix  []byte
}

// DefaultConfig returns a config with default limits
func DefaultConfig(networkID channel.NetworkID, channelID common.Address) Config {
	return Config{
		NetworkID:            networkID,
		Channel:              channelID,
		Kind:                 KindIncentivized,
		MaxPayloadSize:       channel.DefaultMaxPayloadSize,
		MaxMessagesPerCommit: DefaultMaxMessagesPerCommit,
		CommitInterval:       DefaultCommitInterval,
		StoragePrefix:        offchain.DefaultPrefix,
	}
}

func (c *Config) queueCapacity() int {
	if c.QueueCapacity == 0 {
		return c.MaxMessagesPerCommit
	}
	return c.QueueCapacity
}

// Validate checks the config
func (c *Config) Validate() error {
	if c.Kind == "" {
		return errors.New("channel kind not set")
	}
	if c.MaxPayloadSize <= 0 {
		return fmt.Errorf("invalid max payload size %d", c.MaxPayloadSize)
	}
	if c.MaxMessagesPerCommit <= 0 {
		return fmt.Errorf("invalid max messages per commit %d", c.MaxMessagesPerCommit)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("invalid queue capacity %d", c.QueueCapacity)
	}
	if c.CommitInterval == 0 {
		return errors.New("commit interval must be positive")
	}
	if len(c.StoragePrefix) == 0 {
		return errors.New("storage prefix not set")
	}
	return nil
}
