// Package policy holds the stateless withdrawal rules: fee split, timelock and
// per-operation limit.
package policy

import (
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// MaxFeeBasisPoints is 100%.
const MaxFeeBasisPoints uint16 = 10_000

// ErrInvalidFeeConfig is returned for fees above MaxFeeBasisPoints.
var ErrInvalidFeeConfig = errors.New("invalid fee configuration")

var basisPointsDenominator = uint256.NewInt(uint64(MaxFeeBasisPoints))

// ValidateFeeConfig checks that feeBps is within [0, MaxFeeBasisPoints].
func ValidateFeeConfig(feeBps uint16) error {
	if feeBps > MaxFeeBasisPoints {
		return fmt.Errorf("%w: fee %d bps exceeds %d", ErrInvalidFeeConfig, feeBps, MaxFeeBasisPoints)
	}
	return nil
}

// ComputeFee splits amount into fee and net. fee = floor(amount * feeBps / 10000),
// so truncation always favors the withdrawer. The product is computed in 256
// bits and cannot overflow. Fees above MaxFeeBasisPoints are treated as 100%.
func ComputeFee(amount uint64, feeBps uint16) (fee, net uint64) {
	if feeBps > MaxFeeBasisPoints {
		feeBps = MaxFeeBasisPoints
	}
	product := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(uint64(feeBps)))
	fee = product.Div(product, basisPointsDenominator).Uint64()
	return fee, amount - fee
}

// CheckTimelock reports whether at least timelock seconds have passed since
// creation. The boundary is inclusive.
func CheckTimelock(creation, now, timelock int64) bool {
	unlock, ok := addInt64(creation, timelock)
	if !ok {
		// Saturated: a positive overflow never unlocks, a negative one always has.
		return timelock < 0
	}
	return now >= unlock
}

// CheckLimit reports whether amount is within the per-operation limit (inclusive).
func CheckLimit(amount, limit uint64) bool {
	return amount <= limit
}

// UnlockTime returns the first instant at which withdrawals are permitted.
func UnlockTime(creation, timelock int64) int64 {
	unlock, ok := addInt64(creation, timelock)
	if !ok {
		if timelock < 0 {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return unlock
}

func addInt64(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}
