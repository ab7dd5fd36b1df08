// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package mmr implements an append-only Merkle Mountain Range over keccak256
// together with compact inclusion proofs.
//
// The leaves are split into perfect binary trees ("mountains") following the
// binary decomposition of the leaf count, largest first. The root bags the
// mountain peaks from right to left:
//
//	root = H(p0 || H(p1 || ... H(p(k-2) || p(k-1))))
//
// A proof is a flat list of sibling hashes plus an order bitfield. Bit i is
// set when item i is the left operand of the i-th hash.
package mmr

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"
)

var (
	ErrEmpty        = errors.New("empty accumulator")
	ErrOutOfRange   = errors.New("leaf index out of range")
	ErrInvalidProof = errors.New("invalid inclusion proof")
)

// Proof proves membership of one leaf in an MMR of LeafCount leaves
type Proof struct {
	LeafIndex uint64        `json:"leafIndex"`
	LeafCount uint64        `json:"leafCount"`
	Order     []byte        `json:"order"`
	Items     []common.Hash `json:"items"`
}

// MMR is an in-memory accumulator. Nodes are kept per level so proofs can
// be produced for any leaf.
type MMR struct {
	// levels[0] are the leaves, levels[h][i] = H(levels[h-1][2i] || levels[h-1][2i+1])
	levels [][]common.Hash
}

func New() *MMR {
	return &MMR{levels: [][]common.Hash{nil}}
}

// Hash is the node hash used throughout the accumulator
func Hash(left, right common.Hash) common.Hash {
	return common.Hash(crypto.Keccak256Hash(left.Bytes(), right.Bytes()))
}

// Append adds a leaf and returns its index
func (m *MMR) Append(leaf common.Hash) uint64 {
	index := uint64(len(m.levels[0]))
	m.levels[0] = append(m.levels[0], leaf)
	node := leaf
	for h, pos := 0, index; pos%2 == 1; h, pos = h+1, pos/2 {
		node = Hash(m.levels[h][pos-1], node)
		if len(m.levels) == h+1 {
			m.levels = append(m.levels, nil)
		}
		m.levels[h+1] = append(m.levels[h+1], node)
	}
	return index
}

// Truncate drops every leaf at index count or above
func (m *MMR) Truncate(count uint64) {
	if count >= m.Len() {
		return
	}
	for h := range m.levels {
		m.levels[h] = m.levels[h][:count>>uint(h)]
	}
}

// Len returns the number of leaves
func (m *MMR) Len() uint64 {
	return uint64(len(m.levels[0]))
}

// Leaf returns the leaf at index
func (m *MMR) Leaf(index uint64) (common.Hash, error) {
	if index >= m.Len() {
		return common.Hash{}, fmt.Errorf("%w: %d >= %d", ErrOutOfRange, index, m.Len())
	}
	return m.levels[0][index], nil
}

type mountain struct {
	height uint   // leaves = 1 << height
	start  uint64 // first leaf index
}

// mountains returns the mountains of an MMR with count leaves, left to right
func mountains(count uint64) []mountain {
	var out []mountain
	var start uint64
	for h := 63; h >= 0; h-- {
		if count&(1<<uint(h)) == 0 {
			continue
		}
		out = append(out, mountain{height: uint(h), start: start})
		start += 1 << uint(h)
	}
	return out
}

func locate(index, count uint64) (int, []mountain) {
	ms := mountains(count)
	for i, mt := range ms {
		if index < mt.start+(1<<mt.height) {
			return i, ms
		}
	}
	return -1, ms
}

func (m *MMR) peak(mt mountain) common.Hash {
	return m.levels[mt.height][mt.start>>mt.height]
}

func bag(peaks []common.Hash) common.Hash {
	acc := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		acc = Hash(peaks[i], acc)
	}
	return acc
}

// Root returns the bagged root of all leaves
func (m *MMR) Root() (common.Hash, error) {
	return m.RootAt(m.Len())
}

// RootAt returns the root the accumulator had when it held count leaves
func (m *MMR) RootAt(count uint64) (common.Hash, error) {
	if count == 0 {
		return common.Hash{}, ErrEmpty
	}
	if count > m.Len() {
		return common.Hash{}, fmt.Errorf("%w: size %d > %d", ErrOutOfRange, count, m.Len())
	}
	ms := mountains(count)
	peaks := make([]common.Hash, len(ms))
	for i, mt := range ms {
		peaks[i] = m.peak(mt)
	}
	return bag(peaks), nil
}

// Prove builds the inclusion proof of leaf index against the current root
func (m *MMR) Prove(index uint64) (*Proof, error) {
	return m.ProveAt(index, m.Len())
}

// ProveAt builds the inclusion proof of leaf index against the root the
// accumulator had with count leaves. Nodes are never rewritten, so older
// roots stay provable.
func (m *MMR) ProveAt(index, count uint64) (*Proof, error) {
	if count > m.Len() {
		return nil, fmt.Errorf("%w: size %d > %d", ErrOutOfRange, count, m.Len())
	}
	if index >= count {
		return nil, fmt.Errorf("%w: %d >= %d", ErrOutOfRange, index, count)
	}
	j, ms := locate(index, count)
	mt := ms[j]

	var items []common.Hash
	pos := index
	for h := uint(0); h < mt.height; h++ {
		items = append(items, m.levels[h][pos^1])
		pos >>= 1
	}
	if j < len(ms)-1 {
		right := make([]common.Hash, 0, len(ms)-j-1)
		for _, r := range ms[j+1:] {
			right = append(right, m.peak(r))
		}
		items = append(items, bag(right))
	}
	for i := j - 1; i >= 0; i-- {
		items = append(items, m.peak(ms[i]))
	}
	return &Proof{
		LeafIndex: index,
		LeafCount: count,
		Order:     ExpectedOrder(index, count).Bytes(),
		Items:     items,
	}, nil
}

// ExpectedOrder returns the order bitfield a valid proof of leaf index in an
// MMR of count leaves must carry
func ExpectedOrder(index, count uint64) set.Bits {
	order := set.NewBits()
	j, ms := locate(index, count)
	if j < 0 {
		return order
	}
	mt := ms[j]
	local := index - mt.start
	i := 0
	for h := uint(0); h < mt.height; h++ {
		if (local>>h)&1 == 1 {
			order.Add(i)
		}
		i++
	}
	if j < len(ms)-1 {
		i++
	}
	for k := 0; k < j; k++ {
		order.Add(i)
		i++
	}
	return order
}

// proofLen is the number of items a proof of index in count leaves carries
func proofLen(index, count uint64) int {
	j, ms := locate(index, count)
	n := int(ms[j].height) + j
	if j < len(ms)-1 {
		n++
	}
	return n
}

// Verify checks that leaf is included at proof.LeafIndex under root. The
// order bits must match the claimed position exactly, so a valid path can
// not be replayed for another index.
func Verify(root, leaf common.Hash, proof *Proof) error {
	if proof == nil {
		return fmt.Errorf("%w: missing proof", ErrInvalidProof)
	}
	if proof.LeafCount == 0 || proof.LeafIndex >= proof.LeafCount {
		return fmt.Errorf("%w: leaf %d of %d", ErrOutOfRange, proof.LeafIndex, proof.LeafCount)
	}
	if want := proofLen(proof.LeafIndex, proof.LeafCount); len(proof.Items) != want {
		return fmt.Errorf("%w: %d items, expected %d", ErrInvalidProof, len(proof.Items), want)
	}
	expected := ExpectedOrder(proof.LeafIndex, proof.LeafCount)
	if !bytes.Equal(expected.Bytes(), proof.Order) {
		return fmt.Errorf("%w: order bits do not match leaf position", ErrInvalidProof)
	}
	if got := Compute(leaf, proof.Items, set.BitsFromBytes(proof.Order)); got != root {
		return fmt.Errorf("%w: computed root %s, expected %s", ErrInvalidProof, got, root)
	}
	return nil
}

// Compute folds items into leaf following order
func Compute(leaf common.Hash, items []common.Hash, order set.Bits) common.Hash {
	acc := leaf
	for i, item := range items {
		if order.Contains(i) {
			acc = Hash(item, acc)
		} else {
			acc = Hash(acc, item)
		}
	}
	return acc
}
