package ledger

import (
	"errors"
	"fmt"
	"math"
)

var ErrAmountOverflow = errors.New("amount out of range")

// MulCents multiplies a non-negative unit amount by a non-negative quantity.
func MulCents(unit int64, qty int64) (int64, error) {
	if unit < 0 || qty < 0 {
		return 0, fmt.Errorf("%w: negative factor", ErrAmountOverflow)
	}
	if qty != 0 && unit > math.MaxInt64/qty {
		return 0, fmt.Errorf("%w: %d x %d", ErrAmountOverflow, unit, qty)
	}
	return unit * qty, nil
}

// AddCents adds two amounts, failing instead of wrapping around.
func AddCents(a int64, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%w: %d + %d", ErrAmountOverflow, a, b)
	}
	return a + b, nil
}
