package amm

import "errors"

var (
	// ErrInvalidPool is returned for pools with zero reserves, mismatched tokens or a bad fee.
	ErrInvalidPool = errors.New("invalid pool")

	// ErrArithmeticOverflow is returned when an intermediate product does not fit in 256 bits.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInsufficientLiquidity is returned when a requested output drains the pool.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)
