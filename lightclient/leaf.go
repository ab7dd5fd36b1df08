// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package lightclient

import (
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/mmr"
)

// Leaf is the accumulator entry the source chain appends for each commit.
// NetworkID is the destination network of the committed channel.
type Leaf struct {
	NetworkID channel.NetworkID `json:"networkID"`
	Channel   common.Address    `json:"channel"`
	Digest    common.Hash       `json:"digest"`
	Block     uint64            `json:"block"`
}

// Hash returns the accumulator leaf hash
func (l *Leaf) Hash() common.Hash {
	b, _ := channel.Codec.Marshal(channel.CodecVersion, l)
	return common.Hash(crypto.Keccak256Hash(b))
}

// Proof is the inclusion part of a claim. For committee finality Block is
// the signed statement's block number; for header chains it is the height
// of the header whose logs root holds the leaf.
type Proof struct {
	Block     uint64      `json:"block"`
	BlockHash common.Hash `json:"blockHash"`
	Inclusion mmr.Proof   `json:"inclusion"`
}

// Authenticated is a leaf that was proven final on its origin network
type Authenticated struct {
	Origin channel.NetworkID
	Leaf   Leaf
	Block  uint64
}
