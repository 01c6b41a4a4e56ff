package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Reserves is an immutable view of a pool's balances at one block.
type Reserves struct {
	Reserve0 uint256.Int
	Reserve1 uint256.Int
	Block    uint64
}

func NewReserves(reserve0, reserve1 *uint256.Int, block uint64) Reserves {
	r := Reserves{Block: block}
	if reserve0 != nil {
		r.Reserve0 = *reserve0
	}
	if reserve1 != nil {
		r.Reserve1 = *reserve1
	}
	return r
}

// Pool is a two token constant product pool. Values are copied on read so a Pool
// handed out never changes under the caller.
type Pool struct {
	Address common.Address
	Token0  common.Address
	Token1  common.Address
	Reserves
	Fee Fee
	DEX string
}

func (p Pool) Validate() error {
	if p.Token0 == p.Token1 {
		return fmt.Errorf("%w: %s has identical tokens", ErrInvalidPool, p.Address.Hex())
	}
	if p.Reserve0.IsZero() || p.Reserve1.IsZero() {
		return fmt.Errorf("%w: %s has zero reserve", ErrInvalidPool, p.Address.Hex())
	}
	return p.EffectiveFee().Validate()
}

// EffectiveFee falls back to DefaultFee when the pool was built without one.
func (p Pool) EffectiveFee() Fee {
	if p.Fee.IsZero() {
		return DefaultFee
	}
	return p.Fee
}

func (p Pool) Has(token common.Address) bool {
	return p.Token0 == token || p.Token1 == token
}

// Other returns the token paired with the given one.
func (p Pool) Other(token common.Address) (common.Address, error) {
	switch token {
	case p.Token0:
		return p.Token1, nil
	case p.Token1:
		return p.Token0, nil
	}
	return common.Address{}, fmt.Errorf("%w: %s not in pool %s", ErrInvalidPool, token.Hex(), p.Address.Hex())
}

// Oriented returns (reserveIn, reserveOut) for a swap that sells tokenIn.
func (p Pool) Oriented(tokenIn common.Address) (reserveIn, reserveOut *uint256.Int, err error) {
	switch tokenIn {
	case p.Token0:
		return p.Reserve0.Clone(), p.Reserve1.Clone(), nil
	case p.Token1:
		return p.Reserve1.Clone(), p.Reserve0.Clone(), nil
	}
	return nil, nil, fmt.Errorf("%w: %s not in pool %s", ErrInvalidPool, tokenIn.Hex(), p.Address.Hex())
}

// Quote prices a swap of amountIn tokenIn against the pool's current reserves.
func (p Pool) Quote(tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	reserveIn, reserveOut, err := p.Oriented(tokenIn)
	if err != nil {
		return nil, err
	}
	return GetAmountOut(amountIn, reserveIn, reserveOut, p.EffectiveFee())
}

// WithSwap returns a copy of the pool after amountIn tokenIn went in and amountOut came out.
func (p Pool) WithSwap(tokenIn common.Address, amountIn, amountOut *uint256.Int) (Pool, error) {
	reserveIn, reserveOut, err := p.Oriented(tokenIn)
	if err != nil {
		return Pool{}, err
	}
	if !amountOut.Lt(reserveOut) {
		return Pool{}, fmt.Errorf("%w: pool %s", ErrInsufficientLiquidity, p.Address.Hex())
	}
	if _, overflow := reserveIn.AddOverflow(reserveIn, amountIn); overflow {
		return Pool{}, fmt.Errorf("%w: reserve update", ErrArithmeticOverflow)
	}
	reserveOut.Sub(reserveOut, amountOut)

	next := p
	if tokenIn == p.Token0 {
		next.Reserve0, next.Reserve1 = *reserveIn, *reserveOut
	} else {
		next.Reserve1, next.Reserve0 = *reserveIn, *reserveOut
	}
	return next, nil
}
