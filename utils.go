// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package channel

import (
	"fmt"
	"math"
)

// KiB is 1024 bytes
const KiB = 1024

// CheckMulDoesNotOverflow checks if a * b would overflow uint64
func CheckMulDoesNotOverflow(a, b uint64) error {
	if a == 0 || b == 0 {
		return nil
	}
	if a > math.MaxUint64/b {
		return fmt.Errorf("%w: multiplication", ErrOverflow)
	}
	return nil
}

// AddUint64 adds two uint64 values and returns an error if overflow
func AddUint64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fmt.Errorf("%w: addition", ErrOverflow)
	}
	return a + b, nil
}

// Majority is the Byzantine quorum for n signers: n - floor((n-1)/3).
// It tolerates floor((n-1)/3) silent or faulty signers.
func Majority(n int) int {
	if n <= 0 {
		return 0
	}
	return n - (n-1)/3
}
