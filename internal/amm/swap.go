package amm

import (
	"fmt"

	"github.com/holiman/uint256"
)

// GetAmountOut calculates output amount for a constant product swap.
//
//	out = floor(in*num*reserveOut / (reserveIn*den + in*num))
//
// Every product is checked; nothing wraps.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, fee Fee) (*uint256.Int, error) {
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("%w: zero reserve", ErrInvalidPool)
	}
	if amountIn == nil || amountIn.IsZero() {
		return new(uint256.Int), nil
	}

	num := uint256.NewInt(fee.Numerator)
	den := uint256.NewInt(fee.Denominator)

	amountInWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, num)
	if overflow {
		return nil, fmt.Errorf("%w: amountIn*fee", ErrArithmeticOverflow)
	}
	numerator, overflow := new(uint256.Int).MulOverflow(amountInWithFee, reserveOut)
	if overflow {
		return nil, fmt.Errorf("%w: amountInWithFee*reserveOut", ErrArithmeticOverflow)
	}
	denominator, overflow := new(uint256.Int).MulOverflow(reserveIn, den)
	if overflow {
		return nil, fmt.Errorf("%w: reserveIn*den", ErrArithmeticOverflow)
	}
	if _, overflow = denominator.AddOverflow(denominator, amountInWithFee); overflow {
		return nil, fmt.Errorf("%w: swap denominator", ErrArithmeticOverflow)
	}

	return numerator.Div(numerator, denominator), nil
}

// GetAmountIn returns the smallest input that yields at least amountOut.
// Only used for sanity checks, never for plan amounts.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, fee Fee) (*uint256.Int, error) {
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("%w: zero reserve", ErrInvalidPool)
	}
	if amountOut == nil || amountOut.IsZero() {
		return new(uint256.Int), nil
	}
	if !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: want %s of %s", ErrInsufficientLiquidity, amountOut.Dec(), reserveOut.Dec())
	}

	numerator, overflow := new(uint256.Int).MulOverflow(reserveIn, amountOut)
	if overflow {
		return nil, fmt.Errorf("%w: reserveIn*amountOut", ErrArithmeticOverflow)
	}
	if _, overflow = numerator.MulOverflow(numerator, uint256.NewInt(fee.Denominator)); overflow {
		return nil, fmt.Errorf("%w: reserveIn*amountOut*den", ErrArithmeticOverflow)
	}
	denominator := new(uint256.Int).Sub(reserveOut, amountOut)
	if _, overflow = denominator.MulOverflow(denominator, uint256.NewInt(fee.Numerator)); overflow {
		return nil, fmt.Errorf("%w: (reserveOut-amountOut)*num", ErrArithmeticOverflow)
	}

	// ceil(numerator/denominator)
	quo, rem := new(uint256.Int), new(uint256.Int)
	quo.DivMod(numerator, denominator, rem)
	if !rem.IsZero() {
		quo.AddUint64(quo, 1)
	}
	return quo, nil
}
