// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/inbound"
)

var _ inbound.FeeSink = (*ledger)(nil)

// ledger credits delivery fees. Accounts only ever grow; fee debits on the
// source side belong to the application modules.
type ledger struct {
	balances map[common.Address]*uint256.Int
}

func newLedger() *ledger {
	return &ledger{balances: make(map[common.Address]*uint256.Int)}
}

func (l *ledger) Pay(to common.Address, amount *uint256.Int) error {
	b, ok := l.balances[to]
	if !ok {
		b = new(uint256.Int)
	}
	sum, overflow := new(uint256.Int).AddOverflow(b, amount)
	if overflow {
		return fmt.Errorf("%w: balance of %s", channel.ErrOverflow, to)
	}
	l.balances[to] = sum
	return nil
}

func (l *ledger) Balance(addr common.Address) *uint256.Int {
	b, ok := l.balances[addr]
	if !ok {
		return new(uint256.Int)
	}
	return b.Clone()
}
