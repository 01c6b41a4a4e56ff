package arbitrage

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
)

// Simulate prices a fixed borrow amount along the route without searching.
func Simulate(r *Route, amount *uint256.Int) (*Plan, error) {
	ev, err := newEvaluator(r)
	if err != nil {
		return nil, err
	}
	c, err := ev.eval(amount)
	if err != nil {
		return nil, err
	}
	if err := ev.verify(c); err != nil {
		return nil, err
	}
	return ev.plan(c), nil
}

type candidate struct {
	amount *uint256.Int
	mid    *uint256.Int
	out    *uint256.Int
}

// evaluator runs the two chained swaps on fixed reserves.
type evaluator struct {
	route *Route

	reserveIn1, reserveOut1 *uint256.Int
	reserveIn2, reserveOut2 *uint256.Int
	fee1, fee2              amm.Fee
	block                   uint64
}

func newEvaluator(r *Route) (*evaluator, error) {
	first, second := r.First(), r.Second()

	in1, out1, err := first.Oriented(r.Base)
	if err != nil {
		return nil, err
	}
	in2, out2, err := second.Oriented(r.Paired)
	if err != nil {
		return nil, err
	}

	block := first.Block
	if second.Block > block {
		block = second.Block
	}

	return &evaluator{
		route:       r,
		reserveIn1:  in1,
		reserveOut1: out1,
		reserveIn2:  in2,
		reserveOut2: out2,
		fee1:        first.EffectiveFee(),
		fee2:        second.EffectiveFee(),
		block:       block,
	}, nil
}

func (e *evaluator) eval(amount *uint256.Int) (candidate, error) {
	mid, err := amm.GetAmountOut(amount, e.reserveIn1, e.reserveOut1, e.fee1)
	if err != nil {
		return candidate{}, fmt.Errorf("first swap: %w", err)
	}
	out, err := amm.GetAmountOut(mid, e.reserveIn2, e.reserveOut2, e.fee2)
	if err != nil {
		return candidate{}, fmt.Errorf("second swap: %w", err)
	}
	return candidate{amount: amount.Clone(), mid: mid, out: out}, nil
}

// better reports profit(a) > profit(b) without leaving unsigned arithmetic:
// out_a - x_a > out_b - x_b  <=>  out_a + x_b > out_b + x_a
func better(a, b candidate) (bool, error) {
	lhs, overflow := new(uint256.Int).AddOverflow(a.out, b.amount)
	if overflow {
		return false, fmt.Errorf("%w: profit comparison", amm.ErrArithmeticOverflow)
	}
	rhs, overflow := new(uint256.Int).AddOverflow(b.out, a.amount)
	if overflow {
		return false, fmt.Errorf("%w: profit comparison", amm.ErrArithmeticOverflow)
	}
	return lhs.Gt(rhs), nil
}

// verify runs the first swap backwards: buying the planned intermediate
// amount must not cost more than the borrow.
func (e *evaluator) verify(c candidate) error {
	if c.mid.IsZero() {
		return nil
	}
	in, err := amm.GetAmountIn(c.mid, e.reserveIn1, e.reserveOut1, e.fee1)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQuoteMismatch, err)
	}
	if in.Gt(c.amount) {
		return fmt.Errorf("%w: %s out needs %s in, borrowing %s",
			ErrQuoteMismatch, c.mid.Dec(), in.Dec(), c.amount.Dec())
	}
	return nil
}

func (e *evaluator) plan(c candidate) *Plan {
	r := e.route
	profit := new(uint256.Int)
	if c.out.Gt(c.amount) {
		profit.Sub(c.out, c.amount)
	}
	return &Plan{
		PoolA:                   r.PoolA.Address,
		PoolB:                   r.PoolB.Address,
		Direction:               r.Direction,
		Base:                    r.Base,
		Paired:                  r.Paired,
		Block:                   e.block,
		BorrowAmount:            c.amount,
		ExpectedIntermediateOut: c.mid,
		ExpectedFinalOut:        c.out,
		ExpectedProfit:          profit,
	}
}
