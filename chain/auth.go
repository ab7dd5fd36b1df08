// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/approval"
)

// Authorization proves that Origin issued an admin call over RPC. Nonce
// must equal the chain admin nonce, so every authorization is accepted once.
type Authorization struct {
	Origin    common.Address `json:"origin"`
	Nonce     uint64         `json:"nonce"`
	Signature hexutil.Bytes  `json:"signature"`
}

// AuthDigest is the hash an admin signs for method called with payload at
// admin nonce nonce
func AuthDigest(method string, nonce uint64, payload interface{}) (common.Hash, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode %s payload: %w", method, err)
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return common.Hash(crypto.Keccak256Hash([]byte(method), n[:], b)), nil
}

// Authorize signs an admin call
func Authorize(signer approval.Signer, method string, nonce uint64, payload interface{}) (*Authorization, error) {
	digest, err := AuthDigest(method, nonce, payload)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(digest)
	if err != nil {
		return nil, err
	}
	return &Authorization{Origin: signer.Address(), Nonce: nonce, Signature: sig}, nil
}

// Verify returns the origin once the signature is checked
func (a *Authorization) Verify(method string, payload interface{}) (common.Address, error) {
	if a == nil {
		return common.Address{}, fmt.Errorf("%w: missing authorization", channel.ErrForbidden)
	}
	digest, err := AuthDigest(method, a.Nonce, payload)
	if err != nil {
		return common.Address{}, err
	}
	signer, err := approval.Recover(digest, a.Signature)
	if err != nil {
		return common.Address{}, err
	}
	if signer != a.Origin {
		return common.Address{}, fmt.Errorf("%w: authorization signed by %s, not %s", channel.ErrForbidden, signer, a.Origin)
	}
	return a.Origin, nil
}
