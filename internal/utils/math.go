package utils

import (
	"fmt"
	"math/big"

	"crosschain-core/internal/types"

	"github.com/holiman/uint256"
)

// ValidateUint rejects negative values and values wider than 256 bits. A nil value is treated as zero.
func ValidateUint(name string, v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative (%s)", types.ErrInvalidNumeric, name, v.String())
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return fmt.Errorf("%w: %s exceeds 256 bits", types.ErrInvalidNumeric, name)
	}
	return nil
}

// OrZero returns v, or a fresh zero when v is nil
func OrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
