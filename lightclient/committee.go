// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package lightclient

import (
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/approval"
	"github.com/luxfi/channel/mmr"
)

// DefaultHistorySize is the number of finalized roots kept for inclusion
// proofs against slightly older statements
const DefaultHistorySize = 256

// Statement is what a committee signs: the accumulator root at a block and
// optionally the committee that takes over after it.
type Statement struct {
	BlockNumber    uint64        `json:"blockNumber"`
	ValidatorSetID uint64        `json:"validatorSetID"`
	Root           common.Hash   `json:"root"`
	LeafCount      uint64        `json:"leafCount"`
	Next           *ValidatorSet `json:"next" rlp:"nil"`
}

type statementPreimage struct {
	BlockNumber    uint64
	ValidatorSetID uint64
	Root           common.Hash
	LeafCount      uint64
	NextID         uint64
	NextRoot       common.Hash
}

// Digest is the hash signed by committee members
func (s *Statement) Digest() common.Hash {
	pre := statementPreimage{
		BlockNumber:    s.BlockNumber,
		ValidatorSetID: s.ValidatorSetID,
		Root:           s.Root,
		LeafCount:      s.LeafCount,
	}
	if s.Next != nil {
		pre.NextID = s.Next.ID
		pre.NextRoot = s.Next.Root
	}
	b, _ := channel.Codec.Marshal(channel.CodecVersion, &pre)
	return common.Hash(crypto.Keccak256Hash(b))
}

// FinalityClaim is a statement with the committee signatures over its digest
type FinalityClaim struct {
	Statement  Statement           `json:"statement"`
	Signatures []approval.Approval `json:"signatures"`
}

// VerifyStatement checks the claim's signatures against vs. Signatures are
// replayed through a fresh collector so duplicates count once and any
// invalid signature rejects the whole claim.
func VerifyStatement(vs *ValidatorSet, claim *FinalityClaim) error {
	if claim.Statement.ValidatorSetID != vs.ID {
		return fmt.Errorf("%w: statement signed by set %d, expected %d", channel.ErrInvalidProof, claim.Statement.ValidatorSetID, vs.ID)
	}
	digest := claim.Statement.Digest()
	collector := approval.NewCollector(vs.ID, vs.Members)
	for _, a := range claim.Signatures {
		if _, err := collector.Record(digest, a.Signer, a.Signature); err != nil {
			return fmt.Errorf("%w: %v", channel.ErrInvalidSignature, err)
		}
	}
	if !collector.IsReady(digest) {
		return fmt.Errorf("%w: %d of %d", channel.ErrNotEnoughSigners, collector.Count(digest), collector.Threshold())
	}
	return nil
}

type finalizedRoot struct {
	block     uint64
	root      common.Hash
	leafCount uint64
}

// CommitteeClient follows a committee-finalized chain through signed
// statements over its accumulator root.
//
// CommitteeClient is not safe for concurrent use.
type CommitteeClient struct {
	log *zap.Logger

	current *ValidatorSet
	next    *ValidatorSet
	latest  uint64

	history     []finalizedRoot
	historySize int
}

// NewCommitteeClient bootstraps a client from a trusted current and next
// committee at block
func NewCommitteeClient(
	log *zap.Logger,
	current *ValidatorSet,
	next *ValidatorSet,
	block uint64,
	historySize int,
) (*CommitteeClient, error) {
	if err := current.Verify(); err != nil {
		return nil, fmt.Errorf("invalid current validator set: %w", err)
	}
	if next != nil {
		if err := next.Verify(); err != nil {
			return nil, fmt.Errorf("invalid next validator set: %w", err)
		}
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &CommitteeClient{
		log:         log,
		current:     current.Clone(),
		next:        next.Clone(),
		latest:      block,
		historySize: historySize,
	}, nil
}

// ImportFinality accepts a signed statement for a block newer than the last
// accepted one. A statement signed by the next committee performs the
// handover. Nothing changes unless every check passes.
func (c *CommitteeClient) ImportFinality(claim *FinalityClaim) error {
	st := &claim.Statement
	if st.BlockNumber <= c.latest {
		if r, ok := c.root(st.BlockNumber); ok && r.root == st.Root && r.leafCount == st.LeafCount {
			return fmt.Errorf("%w: block %d", channel.ErrAlreadyImported, st.BlockNumber)
		}
		return fmt.Errorf("%w: block %d, latest %d", channel.ErrStaleClaim, st.BlockNumber, c.latest)
	}

	var (
		signers  *ValidatorSet
		handover bool
	)
	switch {
	case st.ValidatorSetID == c.current.ID:
		signers = c.current
	case c.next != nil && st.ValidatorSetID == c.next.ID:
		signers = c.next
		handover = true
	default:
		return fmt.Errorf("%w: unknown validator set %d", channel.ErrInvalidProof, st.ValidatorSetID)
	}
	if err := VerifyStatement(signers, claim); err != nil {
		return err
	}

	var announced *ValidatorSet
	if st.Next != nil {
		if err := st.Next.Verify(); err != nil {
			return fmt.Errorf("%w: announced set: %v", channel.ErrInvalidProof, err)
		}
		if st.Next.ID <= signers.ID {
			return fmt.Errorf("%w: announced set %d does not follow %d", channel.ErrInvalidProof, st.Next.ID, signers.ID)
		}
		announced = st.Next.Clone()
	}

	if handover {
		c.current = c.next
		c.next = nil
		c.log.Info(
			"Validator set handover",
			zap.Uint64("validatorSetID", c.current.ID),
			zap.Uint64("block", st.BlockNumber),
		)
	}
	if announced != nil {
		c.next = announced
	}
	c.latest = st.BlockNumber
	c.history = append(c.history, finalizedRoot{
		block:     st.BlockNumber,
		root:      st.Root,
		leafCount: st.LeafCount,
	})
	if len(c.history) > c.historySize {
		c.history = c.history[len(c.history)-c.historySize:]
	}
	c.log.Debug(
		"Imported finality statement",
		zap.Uint64("block", st.BlockNumber),
		zap.Stringer("root", st.Root),
		zap.Uint64("leafCount", st.LeafCount),
	)
	return nil
}

func (c *CommitteeClient) root(block uint64) (finalizedRoot, bool) {
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].block == block {
			return c.history[i], true
		}
	}
	return finalizedRoot{}, false
}

// VerifyInclusion checks leaf against the root finalized at proof.Block
func (c *CommitteeClient) VerifyInclusion(leaf *Leaf, proof *Proof) error {
	if proof.Block > c.latest {
		return fmt.Errorf("%w: block %d, latest finalized %d", channel.ErrNotFinalized, proof.Block, c.latest)
	}
	r, ok := c.root(proof.Block)
	if !ok {
		return fmt.Errorf("%w: no finalized root for block %d", channel.ErrStaleClaim, proof.Block)
	}
	if proof.Inclusion.LeafCount != r.leafCount {
		return fmt.Errorf("%w: proof over %d leaves, root has %d", channel.ErrInvalidProof, proof.Inclusion.LeafCount, r.leafCount)
	}
	if err := mmr.Verify(r.root, leaf.Hash(), &proof.Inclusion); err != nil {
		return fmt.Errorf("%w: %v", channel.ErrInvalidProof, err)
	}
	return nil
}

// ForceSet replaces the tracked committees without a signed handover
func (c *CommitteeClient) ForceSet(current, next *ValidatorSet) error {
	if err := current.Verify(); err != nil {
		return fmt.Errorf("invalid current validator set: %w", err)
	}
	if next != nil {
		if err := next.Verify(); err != nil {
			return fmt.Errorf("invalid next validator set: %w", err)
		}
	}
	c.current = current.Clone()
	c.next = next.Clone()
	c.log.Warn("Validator sets forced", zap.Uint64("validatorSetID", current.ID))
	return nil
}

// Current returns the committee currently signing statements
func (c *CommitteeClient) Current() *ValidatorSet { return c.current.Clone() }

// Next returns the announced committee, or nil
func (c *CommitteeClient) Next() *ValidatorSet { return c.next.Clone() }

// Latest returns the block of the last accepted statement
func (c *CommitteeClient) Latest() uint64 { return c.latest }
