package arbitrage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
)

// ErrNoOpportunity means no borrow amount yields strictly positive profit.
// It is an expected outcome, not a failure.
var ErrNoOpportunity = errors.New("no arbitrage opportunity")

// ErrQuoteMismatch means a swap quote failed its inverse check.
var ErrQuoteMismatch = errors.New("swap quote inconsistent")

// Direction picks which pool sells the paired token for base first.
type Direction uint8

const (
	// AToB borrows base, swaps it for paired on pool A, swaps paired back on pool B.
	AToB Direction = iota
	// BToA is the reverse cycle.
	BToA
)

func (d Direction) String() string {
	if d == BToA {
		return "B->A"
	}
	return "A->B"
}

func (d Direction) Reverse() Direction {
	if d == BToA {
		return AToB
	}
	return BToA
}

// DirectionFromBool maps the contract's bool flag, true meaning pool A first.
func DirectionFromBool(aFirst bool) Direction {
	if aFirst {
		return AToB
	}
	return BToA
}

func (d Direction) Bool() bool { return d == AToB }

// PairPools groups every tracked pool for one base/paired pair.
type PairPools struct {
	Base   common.Address
	Paired common.Address
	Pools  []amm.Pool
}

// Route is one oriented borrow -> swap -> swap cycle over two pools.
type Route struct {
	PoolA     amm.Pool
	PoolB     amm.Pool
	Direction Direction
	Base      common.Address
	Paired    common.Address
}

func NewRoute(poolA, poolB amm.Pool, base common.Address, dir Direction) (*Route, error) {
	if poolA.Address == poolB.Address {
		return nil, fmt.Errorf("%w: route needs two distinct pools, got %s twice", amm.ErrInvalidPool, poolA.Address.Hex())
	}
	for _, p := range []amm.Pool{poolA, poolB} {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	paired, err := poolA.Other(base)
	if err != nil {
		return nil, err
	}
	pairedB, err := poolB.Other(base)
	if err != nil {
		return nil, err
	}
	if paired != pairedB {
		return nil, fmt.Errorf("%w: pools %s and %s do not share a pair", amm.ErrInvalidPool, poolA.Address.Hex(), poolB.Address.Hex())
	}

	return &Route{
		PoolA:     poolA,
		PoolB:     poolB,
		Direction: dir,
		Base:      base,
		Paired:    paired,
	}, nil
}

// First is the pool that takes the borrowed base token.
func (r *Route) First() amm.Pool {
	if r.Direction == BToA {
		return r.PoolB
	}
	return r.PoolA
}

// Second is the pool that returns base for the intermediate paired token.
func (r *Route) Second() amm.Pool {
	if r.Direction == BToA {
		return r.PoolA
	}
	return r.PoolB
}

func (r *Route) Reversed() *Route {
	rev := *r
	rev.Direction = r.Direction.Reverse()
	return &rev
}

// Plan is the output of the optimizer and the input of execution.
type Plan struct {
	PoolA     common.Address
	PoolB     common.Address
	Direction Direction
	Base      common.Address
	Paired    common.Address
	Block     uint64

	BorrowAmount            *uint256.Int
	ExpectedIntermediateOut *uint256.Int
	ExpectedFinalOut        *uint256.Int
	// zero when the final output doesn't cover the borrow
	ExpectedProfit *uint256.Int
}

func (p *Plan) FirstPool() common.Address {
	if p.Direction == BToA {
		return p.PoolB
	}
	return p.PoolA
}

func (p *Plan) SecondPool() common.Address {
	if p.Direction == BToA {
		return p.PoolA
	}
	return p.PoolB
}

// Profitable reports whether the plan may execute at all.
func (p *Plan) Profitable() bool {
	return p.ExpectedFinalOut != nil && p.BorrowAmount != nil && p.ExpectedFinalOut.Gt(p.BorrowAmount)
}

func (p *Plan) String() string {
	return fmt.Sprintf("plan{%s borrow=%s mid=%s final=%s profit=%s}",
		p.Direction, p.BorrowAmount.Dec(), p.ExpectedIntermediateOut.Dec(),
		p.ExpectedFinalOut.Dec(), p.ExpectedProfit.Dec())
}
