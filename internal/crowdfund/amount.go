package crowdfund

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Uint128 is an unsigned amount limited to 128 bits.
type Uint128 struct {
	v uint256.Int
}

// NewUint128 returns an amount holding n.
func NewUint128(n uint64) Uint128 {
	var a Uint128
	a.v.SetUint64(n)
	return a
}

// ParseUint128 parses a base-10 amount.
func ParseUint128(s string) (Uint128, error) {
	var a Uint128
	if err := a.v.SetFromDecimal(s); err != nil {
		return Uint128{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if a.v.BitLen() > 128 {
		return Uint128{}, fmt.Errorf("invalid amount %q: exceeds 128 bits", s)
	}
	return a, nil
}

// Add returns a+b and false if the sum does not fit in 128 bits.
func (a Uint128) Add(b Uint128) (Uint128, bool) {
	var sum Uint128
	if _, overflow := sum.v.AddOverflow(&a.v, &b.v); overflow || sum.v.BitLen() > 128 {
		return Uint128{}, false
	}
	return sum, true
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Uint128) Cmp(b Uint128) int {
	return a.v.Cmp(&b.v)
}

// IsZero reports whether the amount is zero.
func (a Uint128) IsZero() bool {
	return a.v.IsZero()
}

// Big returns a copy of the amount as a big.Int.
func (a Uint128) Big() *big.Int {
	return a.v.ToBig()
}

// String returns the base-10 form.
func (a Uint128) String() string {
	return a.v.Dec()
}

func (a Uint128) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.Dec())
}

func (a *Uint128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("amount must be a decimal string: %w", err)
	}
	parsed, err := ParseUint128(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
