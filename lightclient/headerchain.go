// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package lightclient

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/mmr"
)

// DefaultFinalityDepth is the number of confirmations after which a header
// is final
const DefaultFinalityDepth = 6

// Header is a proof-of-work block header. LogsRoot is the accumulator root
// over the commitment leaves emitted in the block.
type Header struct {
	ParentHash common.Hash `json:"parentHash"`
	Number     uint64      `json:"number"`
	Time       uint64      `json:"time"`
	LogsRoot   common.Hash `json:"logsRoot"`
	LogsCount  uint64      `json:"logsCount"`
	Difficulty uint64      `json:"difficulty"`
	Nonce      uint64      `json:"nonce"`
}

// Hash returns the keccak256 hash of the header encoding
func (h *Header) Hash() common.Hash {
	b, _ := channel.Codec.Marshal(channel.CodecVersion, h)
	return common.Hash(crypto.Keccak256Hash(b))
}

// Target returns the highest hash value that satisfies the difficulty
func Target(difficulty uint64) *uint256.Int {
	target := new(uint256.Int).SetAllOne()
	if difficulty <= 1 {
		return target
	}
	return target.Div(target, uint256.NewInt(difficulty))
}

// CheckWork reports whether the header hash meets its difficulty target
func (h *Header) CheckWork() bool {
	if h.Difficulty == 0 {
		return false
	}
	hash := h.Hash()
	return !new(uint256.Int).SetBytes32(hash[:]).Gt(Target(h.Difficulty))
}

// Seal searches the nonce space until the header meets its target
func (h *Header) Seal() {
	for !h.CheckWork() {
		h.Nonce++
	}
}

type storedHeader struct {
	header *Header
	hash   common.Hash
	td     *uint256.Int
}

// HeaderChainClient follows a proof-of-work chain from a trusted anchor.
// The heaviest chain wins and headers FinalityDepth below the best one are
// final; the chain never reorganises at or below the finalized header.
// Every imported header must carry at least the minimum difficulty.
//
// HeaderChainClient is not safe for concurrent use.
type HeaderChainClient struct {
	log           *zap.Logger
	finalityDepth uint64
	minDifficulty uint64

	headers   map[common.Hash]*storedHeader
	canonical map[uint64]common.Hash
	best      *storedHeader
	finalized *storedHeader
}

// NewHeaderChainClient starts from a trusted finalized anchor. A zero
// minDifficulty requires the difficulty of the anchor.
func NewHeaderChainClient(log *zap.Logger, anchor *Header, finalityDepth uint64, minDifficulty uint64) *HeaderChainClient {
	if finalityDepth == 0 {
		finalityDepth = DefaultFinalityDepth
	}
	if minDifficulty == 0 {
		minDifficulty = anchor.Difficulty
	}
	if minDifficulty == 0 {
		minDifficulty = 1
	}
	a := &storedHeader{
		header: anchor,
		hash:   anchor.Hash(),
		td:     uint256.NewInt(anchor.Difficulty),
	}
	return &HeaderChainClient{
		log:           log,
		finalityDepth: finalityDepth,
		minDifficulty: minDifficulty,
		headers:       map[common.Hash]*storedHeader{a.hash: a},
		canonical:     map[uint64]common.Hash{anchor.Number: a.hash},
		best:          a,
		finalized:     a,
	}
}

// ImportHeaders validates and imports a batch of headers. The batch is
// applied only if every header is valid.
func (c *HeaderChainClient) ImportHeaders(headers []*Header) error {
	staged := make(map[common.Hash]*storedHeader, len(headers))
	lookup := func(hash common.Hash) (*storedHeader, bool) {
		if s, ok := staged[hash]; ok {
			return s, true
		}
		s, ok := c.headers[hash]
		return s, ok
	}

	var (
		best     = c.best
		imported int
	)
	for _, h := range headers {
		hash := h.Hash()
		if _, ok := lookup(hash); ok {
			continue
		}
		parent, ok := lookup(h.ParentHash)
		if !ok {
			return fmt.Errorf("%w: unknown parent %s of header %d", channel.ErrInvalidProof, h.ParentHash, h.Number)
		}
		if h.Number != parent.header.Number+1 {
			return fmt.Errorf("%w: header %d follows parent %d", channel.ErrInvalidProof, h.Number, parent.header.Number)
		}
		if h.Difficulty < c.minDifficulty {
			return fmt.Errorf("%w: header %d difficulty %d below minimum %d", channel.ErrInvalidProof, h.Number, h.Difficulty, c.minDifficulty)
		}
		if !h.CheckWork() {
			return fmt.Errorf("%w: insufficient work in header %d", channel.ErrInvalidProof, h.Number)
		}
		if h.Number <= c.finalized.header.Number {
			return fmt.Errorf("%w: header %d is at or below finalized %d", channel.ErrStaleClaim, h.Number, c.finalized.header.Number)
		}
		if !c.descendsFromFinalized(parent, lookup) {
			return fmt.Errorf("%w: header %d forks below finalized %d", channel.ErrStaleClaim, h.Number, c.finalized.header.Number)
		}
		td, overflow := new(uint256.Int).AddOverflow(parent.td, uint256.NewInt(h.Difficulty))
		if overflow {
			return fmt.Errorf("%w: total difficulty", channel.ErrOverflow)
		}
		s := &storedHeader{header: h, hash: hash, td: td}
		staged[hash] = s
		imported++
		if td.Gt(best.td) {
			best = s
		}
	}
	if imported == 0 {
		return fmt.Errorf("%w: %d known headers", channel.ErrAlreadyImported, len(headers))
	}

	for hash, s := range staged {
		c.headers[hash] = s
	}
	if best != c.best {
		c.setBest(best)
	}
	return nil
}

// descendsFromFinalized walks back from s to the finalized height
func (c *HeaderChainClient) descendsFromFinalized(
	s *storedHeader,
	lookup func(common.Hash) (*storedHeader, bool),
) bool {
	for s.header.Number > c.finalized.header.Number {
		parent, ok := lookup(s.header.ParentHash)
		if !ok {
			return false
		}
		s = parent
	}
	return s.hash == c.finalized.hash
}

func (c *HeaderChainClient) setBest(best *storedHeader) {
	// Rewrite the canonical index from the new head down to the fork point.
	for n := best.header.Number + 1; ; n++ {
		if _, ok := c.canonical[n]; !ok {
			break
		}
		delete(c.canonical, n)
	}
	for s := best; ; {
		if hash, ok := c.canonical[s.header.Number]; ok && hash == s.hash {
			break
		}
		c.canonical[s.header.Number] = s.hash
		parent, ok := c.headers[s.header.ParentHash]
		if !ok {
			break
		}
		s = parent
	}
	reorg := c.canonical[c.best.header.Number] != c.best.hash
	c.best = best

	if best.header.Number >= c.finalityDepth {
		height := best.header.Number - c.finalityDepth
		if height > c.finalized.header.Number {
			c.finalized = c.headers[c.canonical[height]]
		}
	}
	log := c.log.Debug
	if reorg {
		log = c.log.Info
	}
	log(
		"New best header",
		zap.Uint64("number", best.header.Number),
		zap.Stringer("hash", best.hash),
		zap.Uint64("finalized", c.finalized.header.Number),
		zap.Bool("reorg", reorg),
	)
}

// VerifyInclusion checks that leaf is in the logs of a finalized canonical
// header
func (c *HeaderChainClient) VerifyInclusion(leaf *Leaf, proof *Proof) error {
	s, ok := c.headers[proof.BlockHash]
	if !ok {
		return fmt.Errorf("%w: unknown header %s", channel.ErrNotFinalized, proof.BlockHash)
	}
	if s.header.Number != proof.Block {
		return fmt.Errorf("%w: header %s is at %d, not %d", channel.ErrInvalidProof, proof.BlockHash, s.header.Number, proof.Block)
	}
	if s.header.Number > c.finalized.header.Number {
		return fmt.Errorf("%w: header %d, finalized %d", channel.ErrNotFinalized, s.header.Number, c.finalized.header.Number)
	}
	if c.canonical[s.header.Number] != s.hash {
		return fmt.Errorf("%w: header %d is not canonical", channel.ErrInvalidProof, s.header.Number)
	}
	if proof.Inclusion.LeafCount != s.header.LogsCount {
		return fmt.Errorf("%w: proof over %d leaves, header has %d", channel.ErrInvalidProof, proof.Inclusion.LeafCount, s.header.LogsCount)
	}
	if err := mmr.Verify(s.header.LogsRoot, leaf.Hash(), &proof.Inclusion); err != nil {
		return fmt.Errorf("%w: %v", channel.ErrInvalidProof, err)
	}
	return nil
}

// Best returns the head of the heaviest chain
func (c *HeaderChainClient) Best() *Header { return c.best.header }

// MinDifficulty returns the lowest difficulty an imported header may carry
func (c *HeaderChainClient) MinDifficulty() uint64 { return c.minDifficulty }

// Finalized returns the finalized anchor
func (c *HeaderChainClient) Finalized() *Header { return c.finalized.header }

// Canonical returns the canonical header hash at number
func (c *HeaderChainClient) Canonical(number uint64) (common.Hash, bool) {
	hash, ok := c.canonical[number]
	return hash, ok
}
