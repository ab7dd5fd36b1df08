// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package lightclient

import (
	"errors"
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/mmr"
)

var (
	errEmptyValidatorSet     = errors.New("empty validator set")
	errDuplicateValidator    = errors.New("duplicate validator")
	errValidatorRootMismatch = errors.New("validator set root mismatch")
)

// ValidatorSet is a committee identified by a monotonically increasing id.
// Root commits to the ordered member list.
type ValidatorSet struct {
	ID      uint64           `json:"id"`
	Members []common.Address `json:"members"`
	Root    common.Hash      `json:"root"`
}

// NewValidatorSet creates a validator set and computes its root
func NewValidatorSet(id uint64, members []common.Address) (*ValidatorSet, error) {
	vs := &ValidatorSet{
		ID:      id,
		Members: append([]common.Address(nil), members...),
	}
	root, err := MembersRoot(vs.Members)
	if err != nil {
		return nil, err
	}
	vs.Root = root
	return vs, nil
}

// MembersRoot is the MMR root over the keccak hash of each member address
func MembersRoot(members []common.Address) (common.Hash, error) {
	if len(members) == 0 {
		return common.Hash{}, errEmptyValidatorSet
	}
	seen := set.NewSet[common.Address](len(members))
	acc := mmr.New()
	for _, m := range members {
		if seen.Contains(m) {
			return common.Hash{}, fmt.Errorf("%w: %s", errDuplicateValidator, m)
		}
		seen.Add(m)
		acc.Append(common.Hash(crypto.Keccak256Hash(m.Bytes())))
	}
	return acc.Root()
}

// Verify checks that Root commits to Members
func (v *ValidatorSet) Verify() error {
	root, err := MembersRoot(v.Members)
	if err != nil {
		return err
	}
	if root != v.Root {
		return fmt.Errorf("%w: set %d", errValidatorRootMismatch, v.ID)
	}
	return nil
}

// Len returns the committee size
func (v *ValidatorSet) Len() int {
	return len(v.Members)
}

// Threshold is the number of signers a statement needs
func (v *ValidatorSet) Threshold() int {
	return channel.Majority(len(v.Members))
}

// Clone returns a deep copy
func (v *ValidatorSet) Clone() *ValidatorSet {
	if v == nil {
		return nil
	}
	return &ValidatorSet{
		ID:      v.ID,
		Members: append([]common.Address(nil), v.Members...),
		Root:    v.Root,
	}
}
