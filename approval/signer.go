// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package approval

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

var _ Signer = (*LocalSigner)(nil)

// Signer signs approval digests
type Signer interface {
	Sign(digest common.Hash) ([]byte, error)
	Address() common.Address
}

// LocalSigner signs with an in-memory secp256k1 key
type LocalSigner struct {
	sk      *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner creates a signer from a private key
func NewLocalSigner(sk *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		sk:      sk,
		address: common.Address(crypto.PubkeyToAddress(sk.PublicKey)),
	}
}

// NewLocalSignerFromHex parses a hex encoded private key
func NewLocalSignerFromHex(hexKey string) (*LocalSigner, error) {
	if len(hexKey) >= 2 && hexKey[0] == '0' && (hexKey[1] == 'x' || hexKey[1] == 'X') {
		hexKey = hexKey[2:]
	}
	sk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	return NewLocalSigner(sk), nil
}

func (s *LocalSigner) Sign(digest common.Hash) ([]byte, error) {
	return crypto.Sign(digest.Bytes(), s.sk)
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}
