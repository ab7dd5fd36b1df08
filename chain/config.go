// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/lightclient"
)

// Finality selects how other networks verify this chain
type Finality string

const (
	// FinalityCommittee signs accumulator roots with a rotating committee
	FinalityCommittee Finality = "committee"
	// FinalityProofOfWork seals headers that carry a per-block logs root
	FinalityProofOfWork Finality = "pow"

	DefaultDifficulty = 16
)

var (
	errMissingCommittee = errors.New("committee finality requires at least one committee member")
	errUnknownFinality  = errors.New("unknown finality mode")
)

// Config of a simulated chain
type Config struct {
	NetworkID channel.NetworkID `json:"networkID"`
	Admin     common.Address    `json:"admin"`
	Finality  Finality          `json:"finality"`

	// Committee is the genesis validator set for committee finality
	Committee []common.Address `json:"committee"`
	// Difficulty of sealed headers for proof-of-work finality
	Difficulty uint64 `json:"difficulty"`

	// RoundRobin commits at most one outbound channel per block
	RoundRobin bool `json:"roundRobin"`
	// HistorySize bounds the finalized roots kept by hosted light clients
	HistorySize int `json:"historySize"`
	// Inboxes are targets whose delivered payloads are stored for reading
	Inboxes []common.Address `json:"inboxes"`
}

func (c *Config) Validate() error {
	switch c.Finality {
	case FinalityCommittee:
		if len(c.Committee) == 0 {
			return errMissingCommittee
		}
		if _, err := lightclient.NewValidatorSet(1, c.Committee); err != nil {
			return fmt.Errorf("invalid committee: %w", err)
		}
	case FinalityProofOfWork:
	default:
		return fmt.Errorf("%w: %q", errUnknownFinality, c.Finality)
	}
	return nil
}

func (c *Config) difficulty() uint64 {
	if c.Difficulty == 0 {
		return DefaultDifficulty
	}
	return c.Difficulty
}

func (c *Config) historySize() int {
	if c.HistorySize <= 0 {
		return lightclient.DefaultHistorySize
	}
	return c.HistorySize
}
