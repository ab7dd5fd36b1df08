// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package approval accumulates threshold signatures from a peer set.
package approval

import (
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"

	"github.com/luxfi/channel"
)

// SignatureLen is the length of a recoverable secp256k1 signature [R || S || V]
const SignatureLen = crypto.SignatureLength

// Approval is one recorded signature
type Approval struct {
	Signer    common.Address
	Signature []byte
}

type key struct {
	digest common.Hash
	epoch  uint64
}

type approvalSet struct {
	signatures map[common.Address][]byte
	order      []common.Address
	ready      bool
}

// Collector records at most one signature per peer per digest and reports
// when a digest gathered a Byzantine majority of the peer set.
//
// Collector is not safe for concurrent use.
type Collector struct {
	epoch uint64
	peers set.Set[common.Address]
	sets  map[key]*approvalSet
}

// NewCollector returns a collector for the given peer set epoch
func NewCollector(epoch uint64, peers []common.Address) *Collector {
	return &Collector{
		epoch: epoch,
		peers: set.Of(peers...),
		sets:  make(map[key]*approvalSet),
	}
}

// Rotate switches to a new peer set. Approval sets recorded under earlier
// epochs are kept until forgotten but no longer grow.
func (c *Collector) Rotate(epoch uint64, peers []common.Address) {
	c.epoch = epoch
	c.peers = set.Of(peers...)
}

// Epoch returns the current peer set epoch
func (c *Collector) Epoch() uint64 {
	return c.epoch
}

// IsPeer reports whether signer is in the current peer set
func (c *Collector) IsPeer(signer common.Address) bool {
	return c.peers.Contains(signer)
}

// Threshold returns the number of signatures required for readiness
func (c *Collector) Threshold() int {
	return channel.Majority(c.peers.Len())
}

// Record verifies and stores a signature of digest by signer. It returns
// false without error if signer already signed digest with a valid signature.
func (c *Collector) Record(digest common.Hash, signer common.Address, signature []byte) (bool, error) {
	if !c.peers.Contains(signer) {
		return false, fmt.Errorf("%w: %s is not a peer of epoch %d", channel.ErrForbidden, signer, c.epoch)
	}
	recovered, err := Recover(digest, signature)
	if err != nil {
		return false, err
	}
	if recovered != signer {
		return false, fmt.Errorf("%w: signature recovers to %s, expected %s", channel.ErrInvalidSignature, recovered, signer)
	}

	k := key{digest: digest, epoch: c.epoch}
	s, ok := c.sets[k]
	if ok {
		if _, signed := s.signatures[signer]; signed {
			return false, nil
		}
	} else {
		s = &approvalSet{signatures: make(map[common.Address][]byte)}
		c.sets[k] = s
	}
	s.signatures[signer] = append([]byte(nil), signature...)
	s.order = append(s.order, signer)
	if !s.ready && len(s.signatures) >= c.Threshold() {
		s.ready = true
	}
	return true, nil
}

// Count returns the number of signatures recorded for digest
func (c *Collector) Count(digest common.Hash) int {
	s, ok := c.sets[key{digest: digest, epoch: c.epoch}]
	if !ok {
		return 0
	}
	return len(s.signatures)
}

// IsReady reports whether digest reached the majority threshold. Readiness
// never reverts once reached.
func (c *Collector) IsReady(digest common.Hash) bool {
	s, ok := c.sets[key{digest: digest, epoch: c.epoch}]
	return ok && s.ready
}

// Signatures returns the recorded signatures in recording order
func (c *Collector) Signatures(digest common.Hash) []Approval {
	s, ok := c.sets[key{digest: digest, epoch: c.epoch}]
	if !ok {
		return nil
	}
	out := make([]Approval, 0, len(s.order))
	for _, signer := range s.order {
		out = append(out, Approval{
			Signer:    signer,
			Signature: append([]byte(nil), s.signatures[signer]...),
		})
	}
	return out
}

// Forget drops every approval set of digest, in any epoch
func (c *Collector) Forget(digest common.Hash) {
	for k := range c.sets {
		if k.digest == digest {
			delete(c.sets, k)
		}
	}
}

// Recover returns the address that produced signature over digest
func Recover(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLen {
		return common.Address{}, fmt.Errorf("%w: length %d, expected %d", channel.ErrInvalidSignature, len(signature), SignatureLen)
	}
	sig := append([]byte(nil), signature...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", channel.ErrInvalidSignature, err)
	}
	return common.Address(crypto.PubkeyToAddress(*pub)), nil
}
