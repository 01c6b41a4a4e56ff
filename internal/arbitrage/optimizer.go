package arbitrage

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
)

type Strategy string

const (
	// StrategySearch is a bounded integer ternary search over the profitable range.
	StrategySearch Strategy = "search"
	// StrategyClosedForm seeds from the analytic optimum of the composed swap curve.
	StrategyClosedForm Strategy = "closed_form"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategySearch:
		return StrategySearch, nil
	case StrategyClosedForm:
		return StrategyClosedForm, nil
	}
	return "", fmt.Errorf("unknown optimizer strategy %q", s)
}

const (
	defaultMaxRefineSteps = 1 << 16

	// ranges up to exhaustiveLimit are priced point by point
	exhaustiveLimit = 4096
	// scanWindow is how far either side of the strategy result gets priced
	scanWindow = 16
)

// Optimizer finds the borrow amount that maximises integer profit on a route.
type Optimizer struct {
	Strategy Strategy
	// MaxBorrow caps the search, usually at lender liquidity. nil means uncapped.
	MaxBorrow *uint256.Int
	// MaxRefineSteps bounds the +/-1 hill climb after the main strategy.
	MaxRefineSteps int
}

func NewOptimizer(strategy Strategy) *Optimizer {
	return &Optimizer{Strategy: strategy, MaxRefineSteps: defaultMaxRefineSteps}
}

// WithMaxBorrow returns a copy capped at limit. An existing lower cap is kept.
func (o *Optimizer) WithMaxBorrow(limit *uint256.Int) *Optimizer {
	cp := *o
	if limit != nil && (cp.MaxBorrow == nil || limit.Lt(cp.MaxBorrow)) {
		cp.MaxBorrow = limit.Clone()
	}
	return &cp
}

// Optimize tries both directions over the two pools and returns the better plan.
func (o *Optimizer) Optimize(poolA, poolB amm.Pool, base common.Address) (*Plan, error) {
	route, err := NewRoute(poolA, poolB, base, AToB)
	if err != nil {
		return nil, err
	}

	var best *Plan
	for _, r := range []*Route{route, route.Reversed()} {
		plan, err := o.OptimizeRoute(r)
		if errors.Is(err, ErrNoOpportunity) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("optimize %s: %w", r.Direction, err)
		}
		if best == nil || plan.ExpectedProfit.Gt(best.ExpectedProfit) {
			best = plan
		}
	}

	if best == nil {
		return nil, ErrNoOpportunity
	}
	return best, nil
}

// OptimizeRoute searches one fixed direction.
func (o *Optimizer) OptimizeRoute(r *Route) (*Plan, error) {
	ev, err := newEvaluator(r)
	if err != nil {
		return nil, err
	}

	env, err := ev.envelope()
	if err != nil {
		return nil, err
	}
	limit := env.limit
	if o.MaxBorrow != nil && o.MaxBorrow.Lt(limit) {
		limit = o.MaxBorrow.Clone()
	}
	if limit.IsZero() {
		return nil, ErrNoOpportunity
	}

	var best candidate
	switch o.Strategy {
	case StrategyClosedForm:
		best, err = ev.closedForm(env, limit)
	default:
		best, err = ev.ternarySearch(limit)
	}
	if err != nil {
		return nil, err
	}

	best, err = ev.scanAround(best, limit)
	if err != nil {
		return nil, err
	}
	best, err = ev.refine(best, limit, o.maxRefineSteps())
	if err != nil {
		return nil, err
	}

	if !best.out.Gt(best.amount) {
		return nil, ErrNoOpportunity
	}
	if err := ev.verify(best); err != nil {
		return nil, err
	}
	return ev.plan(best), nil
}

func (o *Optimizer) maxRefineSteps() int {
	if o.MaxRefineSteps <= 0 {
		return defaultMaxRefineSteps
	}
	return o.MaxRefineSteps
}

// envelope of the composed curve out(x) = A*x / (B + C*x), scaled by d1*d2:
//
//	A = n1*n2*R1out*R2out
//	B = d1*d2*R1in*R2in
//	C = n1*(d2*R2in + n2*R1out)
//
// Profit can only be positive for x < (A-B)/C.
type envelope struct {
	a, b, c *big.Int
	limit   *uint256.Int
}

// products here reach ~2^490 for max reserves so they run in big.Int, not uint256
func (e *evaluator) envelope() (*envelope, error) {
	n1 := new(big.Int).SetUint64(e.fee1.Numerator)
	d1 := new(big.Int).SetUint64(e.fee1.Denominator)
	n2 := new(big.Int).SetUint64(e.fee2.Numerator)
	d2 := new(big.Int).SetUint64(e.fee2.Denominator)
	r1in, r1out := e.reserveIn1.ToBig(), e.reserveOut1.ToBig()
	r2in, r2out := e.reserveIn2.ToBig(), e.reserveOut2.ToBig()

	a := new(big.Int).Mul(n1, n2)
	a.Mul(a, r1out)
	a.Mul(a, r2out)

	b := new(big.Int).Mul(d1, d2)
	b.Mul(b, r1in)
	b.Mul(b, r2in)

	// cheap gate: marginal rate at x=0 is A/B
	if a.Cmp(b) <= 0 {
		return nil, ErrNoOpportunity
	}

	c := new(big.Int).Mul(d2, r2in)
	c.Add(c, new(big.Int).Mul(n2, r1out))
	c.Mul(c, n1)

	x0 := new(big.Int).Sub(a, b)
	x0.Quo(x0, c)
	limit, overflow := uint256.FromBig(x0)
	if overflow {
		return nil, fmt.Errorf("%w: search limit", amm.ErrArithmeticOverflow)
	}

	return &envelope{a: a, b: b, c: c, limit: limit}, nil
}

func (e *evaluator) ternarySearch(limit *uint256.Int) (candidate, error) {
	lo := uint256.NewInt(1)
	hi := limit.Clone()
	three := uint256.NewInt(3)

	for {
		width := new(uint256.Int).Sub(hi, lo)
		if width.CmpUint64(3) < 0 {
			break
		}
		third := width.Div(width, three)
		m1 := new(uint256.Int).Add(lo, third)
		m2 := new(uint256.Int).Sub(hi, third)

		c1, err := e.eval(m1)
		if err != nil {
			return candidate{}, err
		}
		c2, err := e.eval(m2)
		if err != nil {
			return candidate{}, err
		}

		up, err := better(c2, c1)
		if err != nil {
			return candidate{}, err
		}
		if up {
			lo = m1.AddUint64(m1, 1)
		} else {
			hi = m2
		}
	}

	// at most three points left
	best, err := e.eval(lo)
	if err != nil {
		return candidate{}, err
	}
	return e.scan(new(uint256.Int).AddUint64(lo, 1), hi, best)
}

// scanAround prices every amount within scanWindow of seed, or the whole
// range when it is no wider than exhaustiveLimit. Floor division makes the
// integer profit curve jagged, so a search can stop a few units off the peak.
func (e *evaluator) scanAround(seed candidate, limit *uint256.Int) (candidate, error) {
	lo, hi := uint256.NewInt(1), limit.Clone()
	if limit.CmpUint64(exhaustiveLimit) > 0 {
		if seed.amount.CmpUint64(scanWindow+1) > 0 {
			lo.SubUint64(seed.amount, scanWindow)
		}
		if end, overflow := new(uint256.Int).AddOverflow(seed.amount, uint256.NewInt(scanWindow)); !overflow && end.Lt(limit) {
			hi = end
		}
	}
	return e.scan(lo, hi, seed)
}

// scan returns the most profitable of best and every amount in [lo, hi].
// Ties keep the earlier candidate.
func (e *evaluator) scan(lo, hi *uint256.Int, best candidate) (candidate, error) {
	if lo.Gt(hi) {
		return best, nil
	}
	for x := lo.Clone(); ; x.AddUint64(x, 1) {
		if !x.Eq(best.amount) {
			c, err := e.eval(x)
			if err != nil {
				return candidate{}, err
			}
			ok, err := better(c, best)
			if err != nil {
				return candidate{}, err
			}
			if ok {
				best = c
			}
		}
		if !x.Lt(hi) {
			return best, nil
		}
	}
}

// closedForm evaluates x* = (isqrt(A*B) - B) / C, clamped to [1, limit].
func (e *evaluator) closedForm(env *envelope, limit *uint256.Int) (candidate, error) {
	root := new(big.Int).Mul(env.a, env.b)
	root.Sqrt(root)

	x := uint256.NewInt(1)
	if root.Cmp(env.b) > 0 {
		root.Sub(root, env.b)
		root.Quo(root, env.c)
		seed, overflow := uint256.FromBig(root)
		if overflow || seed.Gt(limit) {
			seed = limit.Clone()
		}
		if !seed.IsZero() {
			x = seed
		}
	}
	return e.eval(x)
}

// refine walks to a neighbour while that strictly improves profit, so the
// result is locally optimal under integer rounding.
func (e *evaluator) refine(best candidate, limit *uint256.Int, maxSteps int) (candidate, error) {
	one := uint256.NewInt(1)
	for step := 0; step < maxSteps; step++ {
		moved := false

		if best.amount.Gt(one) {
			down, err := e.eval(new(uint256.Int).SubUint64(best.amount, 1))
			if err != nil {
				return candidate{}, err
			}
			ok, err := better(down, best)
			if err != nil {
				return candidate{}, err
			}
			if ok {
				best, moved = down, true
			}
		}

		if !moved && best.amount.Lt(limit) {
			up, err := e.eval(new(uint256.Int).AddUint64(best.amount, 1))
			if err != nil {
				return candidate{}, err
			}
			ok, err := better(up, best)
			if err != nil {
				return candidate{}, err
			}
			if ok {
				best, moved = up, true
			}
		}

		if !moved {
			return best, nil
		}
	}
	return best, nil
}
