package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ratioUnit is the fixed-point base: a ratio of 10^18 means 100%.
var ratioUnit = uint256.NewInt(1_000_000_000_000_000_000)

// RatioUnit returns a fresh copy of the fixed-point unit (10^18).
func RatioUnit() *uint256.Int {
	return new(uint256.Int).Set(ratioUnit)
}

// IsValidRatio reports whether r is a ratio in [0, RatioUnit].
func IsValidRatio(r *uint256.Int) bool {
	return r != nil && r.Cmp(ratioUnit) <= 0
}

// MulRatioFloor computes floor(amount * ratio / RatioUnit) using a 512-bit
// intermediate product, so the multiplication itself can never overflow the
// final division.
func MulRatioFloor(amount, ratio *uint256.Int) (*uint256.Int, error) {
	res, overflow := new(uint256.Int).MulDivOverflow(amount, ratio, ratioUnit)
	if overflow {
		return nil, fmt.Errorf("ratio product overflows 256 bits (amount=%s ratio=%s)", amount.Dec(), ratio.Dec())
	}
	return res, nil
}

// ParseAmount parses a non-negative decimal integer amount.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}
