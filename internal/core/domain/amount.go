package domain

import (
	"fmt"
	"strconv"
)

// Amount is a monetary quantity in the smallest token denomination.
// All arithmetic and comparisons on amounts are integer only.
type Amount uint64

// TokenDecimals is the number of decimal places in the token's display unit.
const TokenDecimals = 8

// tokenUnit is 10^TokenDecimals.
const tokenUnit Amount = 100_000_000

// Tokens returns the whole-token part of the amount.
func (a Amount) Tokens() uint64 {
	return uint64(a / tokenUnit)
}

// Fraction returns the sub-token remainder of the amount.
func (a Amount) Fraction() uint64 {
	return uint64(a % tokenUnit)
}

// String formats the amount as a decimal token quantity, e.g. "10.00000000".
func (a Amount) String() string {
	frac := strconv.FormatUint(a.Fraction(), 10)
	for len(frac) < TokenDecimals {
		frac = "0" + frac
	}
	return fmt.Sprintf("%d.%s", a.Tokens(), frac)
}

// AddChecked returns a+b, or an error on overflow.
func (a Amount) AddChecked(b Amount) (Amount, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("amount overflow: %d + %d", a, b)
	}
	return sum, nil
}
