// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package channel

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// Commitment is an ordered batch of messages drained from one outbound queue.
// Its digest is the only value published on-chain.
type Commitment struct {
	Messages    []Message
	TotalMaxGas uint64
}

// wireMessage is the tuple the commitment digest is computed over
type wireMessage struct {
	Target  common.Address
	Nonce   uint64
	Payload []byte
	Fee     *uint256.Int
	MaxGas  uint64
}

// NewCommitment builds a commitment over msgs in the given order
func NewCommitment(msgs []Message) (*Commitment, error) {
	var total uint64
	for i := range msgs {
		sum, err := AddUint64(total, msgs[i].MaxGas)
		if err != nil {
			return nil, fmt.Errorf("%w: total max gas", err)
		}
		total = sum
	}
	return &Commitment{
		Messages:    msgs,
		TotalMaxGas: total,
	}, nil
}

// Verify checks that the commitment is well formed: one network and channel,
// contiguous nonces and a matching gas total.
func (c *Commitment) Verify() error {
	if len(c.Messages) == 0 {
		return fmt.Errorf("%w: empty commitment", ErrInvalidMessage)
	}
	first := c.Messages[0]
	var total uint64
	for i, msg := range c.Messages {
		if msg.NetworkID != first.NetworkID || msg.Channel != first.Channel {
			return fmt.Errorf("%w: message %d belongs to another channel", ErrInvalidMessage, i)
		}
		if msg.Nonce != first.Nonce+uint64(i) {
			return fmt.Errorf("%w: message %d has nonce %d, expected %d", ErrInvalidNonce, i, msg.Nonce, first.Nonce+uint64(i))
		}
		if msg.Fee == nil {
			return fmt.Errorf("%w: message %d has nil fee", ErrInvalidMessage, i)
		}
		sum, err := AddUint64(total, msg.MaxGas)
		if err != nil {
			return fmt.Errorf("%w: total max gas", err)
		}
		total = sum
	}
	if total != c.TotalMaxGas {
		return fmt.Errorf("%w: total max gas %d, declared %d", ErrInvalidMessage, total, c.TotalMaxGas)
	}
	return nil
}

// NetworkID returns the destination network of the batch
func (c *Commitment) NetworkID() NetworkID {
	if len(c.Messages) == 0 {
		return 0
	}
	return c.Messages[0].NetworkID
}

// Channel returns the channel the batch was committed on
func (c *Commitment) Channel() common.Address {
	if len(c.Messages) == 0 {
		return common.Address{}
	}
	return c.Messages[0].Channel
}

// FirstNonce returns the nonce of the first message, or 0 if empty
func (c *Commitment) FirstNonce() uint64 {
	if len(c.Messages) == 0 {
		return 0
	}
	return c.Messages[0].Nonce
}

// LastNonce returns the nonce of the last message, or 0 if empty
func (c *Commitment) LastNonce() uint64 {
	if len(c.Messages) == 0 {
		return 0
	}
	return c.Messages[len(c.Messages)-1].Nonce
}

// TotalFee sums the declared fees of all messages
func (c *Commitment) TotalFee() (*uint256.Int, error) {
	total := new(uint256.Int)
	for i := range c.Messages {
		if _, overflow := total.AddOverflow(total, c.Messages[i].Fee); overflow {
			return nil, fmt.Errorf("%w: total fee", ErrOverflow)
		}
	}
	return total, nil
}

// EncodeWire returns the deterministic encoding the digest is computed over
func (c *Commitment) EncodeWire() []byte {
	wire := make([]wireMessage, len(c.Messages))
	for i, msg := range c.Messages {
		wire[i] = wireMessage{
			Target:  msg.Target,
			Nonce:   msg.Nonce,
			Payload: msg.Payload,
			Fee:     msg.Fee,
			MaxGas:  msg.MaxGas,
		}
	}
	b, _ := Codec.Marshal(CodecVersion, wire)
	return b
}

// Digest returns the keccak256 hash of the wire encoding
func (c *Commitment) Digest() common.Hash {
	return common.Hash(crypto.Keccak256Hash(c.EncodeWire()))
}

// Bytes returns the full encoding stored off-chain
func (c *Commitment) Bytes() []byte {
	b, _ := Codec.Marshal(CodecVersion, c)
	return b
}

// ParseCommitment parses a commitment from its off-chain encoding
func ParseCommitment(b []byte) (*Commitment, error) {
	c := &Commitment{}
	if _, err := Codec.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal commitment: %v", ErrDecode, err)
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return c, nil
}
