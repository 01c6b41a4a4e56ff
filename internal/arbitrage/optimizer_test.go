package arbitrage

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	baseToken   = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	pairedToken = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
)

func newPool(addr string, baseReserve, pairedReserve *uint256.Int) amm.Pool {
	return amm.Pool{
		Address:  common.HexToAddress(addr),
		Token0:   baseToken,
		Token1:   pairedToken,
		Reserves: amm.NewReserves(baseReserve, pairedReserve, 100),
		Fee:      amm.UniswapV2Fee,
	}
}

// same pool with token0/token1 swapped
func flipped(p amm.Pool) amm.Pool {
	p.Token0, p.Token1 = p.Token1, p.Token0
	p.Reserve0, p.Reserve1 = p.Reserve1, p.Reserve0
	return p
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func signedProfit(p *Plan) *big.Int {
	return new(big.Int).Sub(p.ExpectedFinalOut.ToBig(), p.BorrowAmount.ToBig())
}

// scenarioPools is the 1e6/2e6 vs 1e6/1.9e6 market at 0.3% fees
func scenarioPools() (amm.Pool, amm.Pool) {
	return newPool("0xa1", u(1_000_000), u(2_000_000)), newPool("0xb1", u(1_000_000), u(1_900_000))
}

func bruteForceBest(t *testing.T, r *Route, limit uint64) *big.Int {
	t.Helper()
	best := big.NewInt(0)
	for x := uint64(1); x <= limit; x++ {
		p, err := Simulate(r, u(x))
		require.NoError(t, err)
		if sp := signedProfit(p); sp.Cmp(best) > 0 {
			best = sp
		}
	}
	return best
}

func assertLocallyOptimal(t *testing.T, r *Route, plan *Plan) {
	t.Helper()
	got := signedProfit(plan)

	if plan.BorrowAmount.CmpUint64(1) > 0 {
		down, err := Simulate(r, new(uint256.Int).SubUint64(plan.BorrowAmount, 1))
		require.NoError(t, err)
		assert.LessOrEqual(t, signedProfit(down).Cmp(got), 0, "x-1 is more profitable")
	}
	up, err := Simulate(r, new(uint256.Int).AddUint64(plan.BorrowAmount, 1))
	require.NoError(t, err)
	assert.LessOrEqual(t, signedProfit(up).Cmp(got), 0, "x+1 is more profitable")
}

func TestOptimizeScenario(t *testing.T) {
	poolA, poolB := scenarioPools()

	route, err := NewRoute(poolA, poolB, baseToken, AToB)
	require.NoError(t, err)
	bruteMax := bruteForceBest(t, route, 30_000)
	require.Positive(t, bruteMax.Sign())

	for _, strategy := range []Strategy{StrategySearch, StrategyClosedForm} {
		t.Run(string(strategy), func(t *testing.T) {
			plan, err := NewOptimizer(strategy).Optimize(poolA, poolB, baseToken)
			require.NoError(t, err)

			assert.Equal(t, AToB, plan.Direction)
			assert.Equal(t, poolA.Address, plan.FirstPool())
			assert.Equal(t, pairedToken, plan.Paired)
			assert.True(t, plan.Profitable())
			assert.Equal(t, uint64(100), plan.Block)

			// plan amounts are exactly what the swap calculator produces
			resim, err := Simulate(route, plan.BorrowAmount)
			require.NoError(t, err)
			assert.Equal(t, resim.ExpectedIntermediateOut, plan.ExpectedIntermediateOut)
			assert.Equal(t, resim.ExpectedFinalOut, plan.ExpectedFinalOut)
			assert.Equal(t, new(uint256.Int).Sub(plan.ExpectedFinalOut, plan.BorrowAmount), plan.ExpectedProfit)

			assertLocallyOptimal(t, route, plan)

			// never beats exhaustive search, and lands within rounding noise of it
			assert.LessOrEqual(t, plan.ExpectedProfit.ToBig().Cmp(bruteMax), 0)
			gap := new(big.Int).Sub(bruteMax, plan.ExpectedProfit.ToBig())
			assert.LessOrEqual(t, gap.Int64(), int64(4), "profit %s vs best %s", plan.ExpectedProfit.Dec(), bruteMax)
		})
	}
}

func TestOptimizeReversedPools(t *testing.T) {
	poolA, poolB := scenarioPools()

	plan, err := NewOptimizer(StrategySearch).Optimize(poolB, poolA, baseToken)
	require.NoError(t, err)
	assert.Equal(t, BToA, plan.Direction)
	assert.Equal(t, poolA.Address, plan.FirstPool())
	assert.Equal(t, poolB.Address, plan.SecondPool())
}

func TestOptimizeTokenOrderIrrelevant(t *testing.T) {
	poolA, poolB := scenarioPools()

	straight, err := NewOptimizer(StrategySearch).Optimize(poolA, poolB, baseToken)
	require.NoError(t, err)
	crossed, err := NewOptimizer(StrategySearch).Optimize(flipped(poolA), flipped(poolB), baseToken)
	require.NoError(t, err)

	assert.Equal(t, straight.BorrowAmount, crossed.BorrowAmount)
	assert.Equal(t, straight.ExpectedProfit, crossed.ExpectedProfit)
}

func TestOptimizeEqualPricesHasNoOpportunity(t *testing.T) {
	poolA := newPool("0xa1", u(1_000_000), u(2_000_000))
	poolB := newPool("0xb1", u(1_000_000), u(2_000_000))

	for _, strategy := range []Strategy{StrategySearch, StrategyClosedForm} {
		_, err := NewOptimizer(strategy).Optimize(poolA, poolB, baseToken)
		assert.ErrorIs(t, err, ErrNoOpportunity)
	}

	// fees make every borrow amount a loss
	route, err := NewRoute(poolA, poolB, baseToken, AToB)
	require.NoError(t, err)
	for _, r := range []*Route{route, route.Reversed()} {
		for x := uint64(1); x <= 5_000; x++ {
			p, err := Simulate(r, u(x))
			require.NoError(t, err)
			require.False(t, p.Profitable(), "profitable at %d", x)
			require.True(t, p.ExpectedProfit.IsZero())
		}
	}
}

func TestOptimizeGapSmallerThanFees(t *testing.T) {
	// 0.25% price gap against 0.6% round trip fees
	poolA := newPool("0xa1", u(10_000), u(20_000))
	poolB := newPool("0xb1", u(10_000), u(20_050))

	_, err := NewOptimizer(StrategySearch).Optimize(poolA, poolB, baseToken)
	assert.ErrorIs(t, err, ErrNoOpportunity)

	route, err := NewRoute(poolA, poolB, baseToken, AToB)
	require.NoError(t, err)
	for _, r := range []*Route{route, route.Reversed()} {
		for x := uint64(1); x <= 20_000; x++ {
			p, err := Simulate(r, u(x))
			require.NoError(t, err)
			require.False(t, p.Profitable(), "profitable at %d via %s", x, r.Direction)
		}
	}
}

func TestOptimizeMaxBorrow(t *testing.T) {
	poolA, poolB := scenarioPools()

	opt := NewOptimizer(StrategySearch).WithMaxBorrow(u(100))
	plan, err := opt.Optimize(poolA, poolB, baseToken)
	require.NoError(t, err)
	assert.LessOrEqual(t, plan.BorrowAmount.Uint64(), uint64(100))
	assert.True(t, plan.Profitable())

	_, err = NewOptimizer(StrategySearch).WithMaxBorrow(u(0)).Optimize(poolA, poolB, baseToken)
	assert.ErrorIs(t, err, ErrNoOpportunity)
}

func TestWithMaxBorrowKeepsLowerCap(t *testing.T) {
	opt := NewOptimizer(StrategySearch).WithMaxBorrow(u(100))

	assert.Equal(t, u(100), opt.WithMaxBorrow(u(5_000)).MaxBorrow)
	assert.Equal(t, u(40), opt.WithMaxBorrow(u(40)).MaxBorrow)
	assert.Equal(t, u(100), opt.WithMaxBorrow(nil).MaxBorrow)
	assert.Equal(t, u(100), opt.MaxBorrow, "receiver unchanged")
	assert.Nil(t, NewOptimizer(StrategySearch).WithMaxBorrow(nil).MaxBorrow)
}

// small reserves make floor rounding dominate the profit curve
func TestOptimizeSmallReservesMatchesBruteForce(t *testing.T) {
	type market struct{ aBase, aPaired, bBase, bPaired uint64 }
	markets := []market{{696, 716, 866, 794}}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 60; i++ {
		markets = append(markets, market{
			aBase:   uint64(100 + rng.Intn(900)),
			aPaired: uint64(100 + rng.Intn(900)),
			bBase:   uint64(100 + rng.Intn(900)),
			bPaired: uint64(100 + rng.Intn(900)),
		})
	}

	for _, m := range markets {
		poolA := newPool("0xa1", u(m.aBase), u(m.aPaired))
		poolB := newPool("0xb1", u(m.bBase), u(m.bPaired))
		route, err := NewRoute(poolA, poolB, baseToken, AToB)
		require.NoError(t, err)

		for _, r := range []*Route{route, route.Reversed()} {
			want := bruteForceBest(t, r, 2*(m.aBase+m.bBase))
			for _, strategy := range []Strategy{StrategySearch, StrategyClosedForm} {
				plan, err := NewOptimizer(strategy).OptimizeRoute(r)
				if want.Sign() == 0 {
					assert.ErrorIs(t, err, ErrNoOpportunity, "%+v %s %s", m, r.Direction, strategy)
					continue
				}
				require.NoError(t, err, "%+v %s %s", m, r.Direction, strategy)
				assert.Equal(t, want.String(), plan.ExpectedProfit.Dec(), "%+v %s %s", m, r.Direction, strategy)
			}
		}
	}
}

func TestVerifyRejectsInconsistentQuote(t *testing.T) {
	poolA, poolB := scenarioPools()
	route, err := NewRoute(poolA, poolB, baseToken, AToB)
	require.NoError(t, err)
	ev, err := newEvaluator(route)
	require.NoError(t, err)

	c, err := ev.eval(u(1_000))
	require.NoError(t, err)
	require.NoError(t, ev.verify(c))

	inflated := c
	inflated.mid = new(uint256.Int).AddUint64(c.mid, 50)
	assert.ErrorIs(t, ev.verify(inflated), ErrQuoteMismatch)

	drained := c
	drained.mid = poolA.Reserve1.Clone()
	assert.ErrorIs(t, ev.verify(drained), ErrQuoteMismatch)
}

func TestOptimizeLargeReserves(t *testing.T) {
	e18 := uint256.MustFromDecimal("1000000000000000000")
	mul := func(v uint64) *uint256.Int { return new(uint256.Int).Mul(u(v), e18) }

	poolA := newPool("0xa1", mul(1_000_000), mul(2_000_000))
	poolB := newPool("0xb1", mul(1_000_000), mul(1_900_000))
	route, err := NewRoute(poolA, poolB, baseToken, AToB)
	require.NoError(t, err)

	search, err := NewOptimizer(StrategySearch).OptimizeRoute(route)
	require.NoError(t, err)
	closed, err := NewOptimizer(StrategyClosedForm).OptimizeRoute(route)
	require.NoError(t, err)

	assertLocallyOptimal(t, route, search)
	assertLocallyOptimal(t, route, closed)

	// both land on the same peak up to rounding noise
	diff := new(big.Int).Sub(search.ExpectedProfit.ToBig(), closed.ExpectedProfit.ToBig())
	diff.Abs(diff)
	tolerance := new(big.Int).Div(search.ExpectedProfit.ToBig(), big.NewInt(1_000_000))
	assert.LessOrEqual(t, diff.Cmp(tolerance), 0)
}

func TestOptimizeOriginalReserves(t *testing.T) {
	poolA := newPool("0xa1",
		uint256.MustFromDecimal("7125266306543071511642537"),
		uint256.MustFromDecimal("340028120360655633872965"))
	poolB := newPool("0xb1",
		uint256.MustFromDecimal("6401037538803577859483"),
		uint256.MustFromDecimal("305373934829391083109"))

	plan, err := NewOptimizer(StrategySearch).Optimize(poolA, poolB, baseToken)
	if err != nil {
		assert.ErrorIs(t, err, ErrNoOpportunity)
		return
	}
	assert.True(t, plan.Profitable())
}

func TestOptimizeOverflow(t *testing.T) {
	huge := new(uint256.Int).Lsh(u(1), 200)
	poolA := newPool("0xa1", huge, new(uint256.Int).Lsh(u(2), 200))
	poolB := newPool("0xb1", huge, new(uint256.Int).Lsh(u(1), 200))

	_, err := NewOptimizer(StrategySearch).Optimize(poolA, poolB, baseToken)
	assert.ErrorIs(t, err, amm.ErrArithmeticOverflow)
}

func TestNewRouteRejectsBadPools(t *testing.T) {
	poolA, poolB := scenarioPools()

	_, err := NewRoute(poolA, poolA, baseToken, AToB)
	assert.ErrorIs(t, err, amm.ErrInvalidPool)

	empty := newPool("0xc1", u(0), u(10))
	_, err = NewRoute(poolA, empty, baseToken, AToB)
	assert.ErrorIs(t, err, amm.ErrInvalidPool)

	other := poolB
	other.Token1 = common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56")
	_, err = NewRoute(poolA, other, baseToken, AToB)
	assert.ErrorIs(t, err, amm.ErrInvalidPool)

	_, err = NewRoute(poolA, poolB, common.HexToAddress("0x01"), AToB)
	assert.ErrorIs(t, err, amm.ErrInvalidPool)
}

func TestDetectOpportunities(t *testing.T) {
	pair := &PairPools{
		Base:   baseToken,
		Paired: pairedToken,
		Pools: []amm.Pool{
			newPool("0xa1", u(1_000_000), u(2_000_000)),
			newPool("0xa2", u(1_000_000), u(2_000_000)),
			newPool("0xa3", u(1_000_000), u(1_800_000)),
		},
	}

	plans, err := DetectOpportunities(pair, NewOptimizer(StrategySearch))
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.False(t, plans[0].ExpectedProfit.Lt(plans[1].ExpectedProfit))
	for _, p := range plans {
		assert.Equal(t, common.HexToAddress("0xa3"), p.SecondPool())
	}

	_, err = DetectOpportunities(&PairPools{Pools: pair.Pools[:1]}, NewOptimizer(StrategySearch))
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategySearch, s)

	s, err = ParseStrategy("closed_form")
	require.NoError(t, err)
	assert.Equal(t, StrategyClosedForm, s)

	_, err = ParseStrategy("newton")
	assert.Error(t, err)
}
