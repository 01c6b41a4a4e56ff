package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/shopspring/decimal"
)

// FormatAmount renders raw token units with the token's decimals.
func FormatAmount(amount *uint256.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -decimals).String()
}

// ParseAmount reads a human amount such as "0.5" into raw units.
func ParseAmount(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	raw := d.Shift(decimals)
	if raw.Sign() < 0 || !raw.Equal(raw.Truncate(0)) {
		return nil, fmt.Errorf("amount %q is not a whole number of base units", s)
	}
	v, overflow := uint256.FromBig(raw.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q overflows 256 bits", s)
	}
	return v, nil
}

// Price is how many paired tokens one base token buys at the pool's spot rate, fee excluded.
func Price(p amm.Pool, base common.Address, baseDecimals, pairedDecimals int32) (decimal.Decimal, error) {
	reserveBase, reservePaired, err := p.Oriented(base)
	if err != nil {
		return decimal.Zero, err
	}
	if reserveBase.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s has no %s reserve", amm.ErrInvalidPool, p.Address.Hex(), base.Hex())
	}
	b := decimal.NewFromBigInt(reserveBase.ToBig(), -baseDecimals)
	q := decimal.NewFromBigInt(reservePaired.ToBig(), -pairedDecimals)
	return q.Div(b), nil
}
