// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package channel

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

const (
	CodecVersion = 0

	// DefaultMaxPayloadSize bounds a single message payload
	DefaultMaxPayloadSize = 8 * KiB
)

// NetworkID identifies a remote network a channel delivers to or receives from
type NetworkID uint64

// Message is a single outbound message. It is immutable once queued.
type Message struct {
	NetworkID NetworkID
	Channel   common.Address
	Target    common.Address
	Nonce     uint64
	Fee       *uint256.Int
	MaxGas    uint64
	Payload   []byte
}

// NewMessage creates a message without a nonce. The nonce is assigned by the
// outbound channel at enqueue time.
func NewMessage(
	networkID NetworkID,
	channelID common.Address,
	target common.Address,
	fee *uint256.Int,
	maxGas uint64,
	payload []byte,
) *Message {
	if fee == nil {
		fee = new(uint256.Int)
	}
	return &Message{
		NetworkID: networkID,
		Channel:   channelID,
		Target:    target,
		Fee:       fee.Clone(),
		MaxGas:    maxGas,
		Payload:   payload,
	}
}

// Verify checks the message against a payload limit
func (m *Message) Verify(maxPayloadSize int) error {
	if len(m.Payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d", ErrPayloadTooLarge, len(m.Payload), maxPayloadSize)
	}
	if m.Fee == nil {
		return fmt.Errorf("%w: nil fee", ErrInvalidMessage)
	}
	return nil
}

// ID returns the identifier used for status notifications
func (m *Message) ID() MessageID {
	return MessageID{
		NetworkID: m.NetworkID,
		Channel:   m.Channel,
		Nonce:     m.Nonce,
	}
}

// Bytes returns the byte representation of the message
func (m *Message) Bytes() []byte {
	b, _ := Codec.Marshal(CodecVersion, m)
	return b
}

// ParseMessage parses a message from bytes
func ParseMessage(b []byte) (*Message, error) {
	msg := &Message{}
	if _, err := Codec.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal message: %v", ErrDecode, err)
	}
	return msg, nil
}

// MessageID names one message for status notifications
type MessageID struct {
	NetworkID NetworkID
	Channel   common.Address
	Nonce     uint64
}

// ID returns the hash of the message id
func (m MessageID) ID() ids.ID {
	b, _ := Codec.Marshal(CodecVersion, &m)
	return ids.ID(crypto.Keccak256Hash(b))
}

func (m MessageID) String() string {
	return fmt.Sprintf("%d/%s/%d", m.NetworkID, m.Channel.Hex(), m.Nonce)
}
