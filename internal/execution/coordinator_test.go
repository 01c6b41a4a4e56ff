package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/pulkyeet/flasharb/internal/arbitrage"
	"github.com/pulkyeet/flasharb/internal/flashloan"
	"github.com/pulkyeet/flasharb/internal/metrics"
	"github.com/pulkyeet/flasharb/internal/simulator"
	"github.com/pulkyeet/flasharb/internal/whitelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	usdt      = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	wbnb      = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	busd      = common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56")
	admin     = common.HexToAddress("0xad")
	executor  = common.HexToAddress("0xe0")
	initiator = common.HexToAddress("0x1e")
	vault     = common.HexToAddress("0xaa")
	poolA     = common.HexToAddress("0xa1")
	poolB     = common.HexToAddress("0xb1")
)

var errInjected = errors.New("injected failure")

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func pool(addr common.Address, baseReserve, pairedReserve uint64) amm.Pool {
	return amm.Pool{
		Address:  addr,
		Token0:   usdt,
		Token1:   wbnb,
		Reserves: amm.NewReserves(u(baseReserve), u(pairedReserve), 1),
		Fee:      amm.UniswapV2Fee,
	}
}

// faultyEnv fails one named environment call
type faultyEnv struct {
	*simulator.StateFork
	failOn string
	swaps  int
	slow   bool
}

func (f *faultyEnv) Pool(ctx context.Context, addr common.Address) (amm.Pool, error) {
	if f.failOn == "pool" {
		return amm.Pool{}, errInjected
	}
	return f.StateFork.Pool(ctx, addr)
}

func (f *faultyEnv) Swap(ctx context.Context, p simulator.SwapParams) (*uint256.Int, error) {
	f.swaps++
	if f.slow {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if (f.failOn == "swap1" && f.swaps == 1) || (f.failOn == "swap2" && f.swaps == 2) {
		return nil, errInjected
	}
	return f.StateFork.Swap(ctx, p)
}

func (f *faultyEnv) Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	if f.failOn == "transfer" {
		return errInjected
	}
	return f.StateFork.Transfer(ctx, token, from, to, amount)
}

type countingLender struct {
	*flashloan.VaultLender
	borrows int
	failOn  string
}

func (l *countingLender) Borrow(ctx context.Context, token common.Address, amount *uint256.Int, receiver common.Address) (*flashloan.Loan, error) {
	l.borrows++
	if l.failOn == "borrow" {
		return nil, errInjected
	}
	return l.VaultLender.Borrow(ctx, token, amount, receiver)
}

func (l *countingLender) Repay(ctx context.Context, loan *flashloan.Loan) error {
	if l.failOn == "repay" {
		return errInjected
	}
	return l.VaultLender.Repay(ctx, loan)
}

type fixture struct {
	fork     *simulator.StateFork
	env      *faultyEnv
	lender   *countingLender
	registry *whitelist.Registry
	metrics  *metrics.Metrics
	cfg      Config
	plan     *arbitrage.Plan
}

func newFixture(t *testing.T, feeBps uint64) *fixture {
	t.Helper()
	a, b := pool(poolA, 1_000_000, 2_000_000), pool(poolB, 1_000_000, 1_900_000)

	fork := simulator.NewStateFork(1)
	require.NoError(t, fork.AddPool(a))
	require.NoError(t, fork.AddPool(b))
	fork.SetBalance(usdt, vault, u(1_000_000_000))

	registry, err := whitelist.NewRegistry(admin, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, registry.AddBaseToken(admin, usdt, u(10)))

	plan, err := arbitrage.NewOptimizer(arbitrage.StrategySearch).Optimize(a, b, usdt)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Executor = executor

	return &fixture{
		fork:     fork,
		env:      &faultyEnv{StateFork: fork},
		lender:   &countingLender{VaultLender: flashloan.NewVaultLender("aave", vault, feeBps, fork, nil)},
		registry: registry,
		metrics:  metrics.New(prometheus.NewRegistry()),
		cfg:      cfg,
		plan:     plan,
	}
}

func (f *fixture) coordinator(t *testing.T) *Coordinator {
	return NewCoordinator(f.env, f.lender, f.registry, f.cfg, zaptest.NewLogger(t), f.metrics)
}

type worldState struct {
	pools    []amm.Pool
	balances []uint64
}

func (f *fixture) capture(t *testing.T) worldState {
	t.Helper()
	ctx := context.Background()
	var s worldState
	for _, addr := range []common.Address{poolA, poolB} {
		p, err := f.fork.Pool(ctx, addr)
		require.NoError(t, err)
		s.pools = append(s.pools, p)
	}
	for _, token := range []common.Address{usdt, wbnb} {
		for _, holder := range []common.Address{vault, executor, initiator} {
			b, err := f.fork.Balance(ctx, token, holder)
			require.NoError(t, err)
			s.balances = append(s.balances, b.Uint64())
		}
	}
	return s
}

func balance(t *testing.T, fork *simulator.StateFork, token, holder common.Address) uint64 {
	t.Helper()
	b, err := fork.Balance(context.Background(), token, holder)
	require.NoError(t, err)
	return b.Uint64()
}

func TestExecuteSettles(t *testing.T) {
	f := newFixture(t, 9)
	res, err := f.coordinator(t).Execute(context.Background(), f.plan, initiator)
	require.NoError(t, err)

	assert.True(t, res.Success())
	assert.Equal(t, []State{Planned, Borrowed, Swapped1, Swapped2, Repaid, Settled}, res.Transitions)
	assert.Equal(t, f.plan.ExpectedIntermediateOut, res.IntermediateOut)
	assert.Equal(t, f.plan.ExpectedFinalOut, res.FinalOut)

	fee, err := flashloan.FeeFor(f.plan.BorrowAmount, 9)
	require.NoError(t, err)
	wantProfit := new(uint256.Int).Sub(f.plan.ExpectedProfit, fee)
	assert.Equal(t, wantProfit, res.RealizedProfit)
	assert.False(t, res.RealizedProfit.Lt(u(10)))

	assert.Equal(t, wantProfit.Uint64(), balance(t, f.fork, usdt, initiator))
	assert.Equal(t, 1_000_000_000+fee.Uint64(), balance(t, f.fork, usdt, vault))
	assert.Zero(t, balance(t, f.fork, usdt, executor))
	assert.Zero(t, balance(t, f.fork, wbnb, executor))
	assert.Equal(t, 6, res.Steps)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Attempts.WithLabelValues("settled")))
}

func TestExecuteRejectsUnlistedTokenBeforeBorrowing(t *testing.T) {
	f := newFixture(t, 9)
	before := f.capture(t)

	plan := *f.plan
	plan.Base, plan.Paired = busd, wbnb
	res, err := f.coordinator(t).Execute(context.Background(), &plan, initiator)

	assert.ErrorIs(t, err, whitelist.ErrTokenNotWhitelisted)
	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, Planned, res.FailedAt)
	assert.Equal(t, []State{Planned, Aborted}, res.Transitions)
	assert.Zero(t, f.lender.borrows, "lender must never be called")
	assert.Equal(t, before, f.capture(t))
}

func TestExecuteRejectsUnprofitablePlan(t *testing.T) {
	f := newFixture(t, 9)

	plan := *f.plan
	plan.ExpectedFinalOut = plan.BorrowAmount.Clone()
	_, err := f.coordinator(t).Execute(context.Background(), &plan, initiator)
	assert.ErrorIs(t, err, arbitrage.ErrNoOpportunity)

	_, err = f.coordinator(t).Execute(context.Background(), nil, initiator)
	assert.ErrorIs(t, err, arbitrage.ErrNoOpportunity)
	assert.Zero(t, f.lender.borrows)
}

func TestExecuteAbortsAtomically(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		feeBps   uint64
		wantErr  error
		failedAt State
	}{
		{
			name:     "loan unavailable",
			setup:    func(f *fixture) { f.fork.SetBalance(usdt, vault, u(10)) },
			wantErr:  ErrLoanUnavailable,
			failedAt: Planned,
		},
		{
			name:     "borrow fails",
			setup:    func(f *fixture) { f.lender.failOn = "borrow" },
			wantErr:  errInjected,
			failedAt: Planned,
		},
		{
			name: "reserves drifted",
			setup: func(f *fixture) {
				f.fork.AddPool(pool(poolA, 1_000_000, 1_980_000))
			},
			wantErr:  ErrStaleReservesDrift,
			failedAt: Borrowed,
		},
		{
			name:     "pool read fails",
			setup:    func(f *fixture) { f.env.failOn = "pool" },
			wantErr:  errInjected,
			failedAt: Borrowed,
		},
		{
			name:     "first swap fails",
			setup:    func(f *fixture) { f.env.failOn = "swap1" },
			wantErr:  errInjected,
			failedAt: Borrowed,
		},
		{
			name:     "second swap fails",
			setup:    func(f *fixture) { f.env.failOn = "swap2" },
			wantErr:  errInjected,
			failedAt: Swapped1,
		},
		{
			name:     "proceeds below repayment",
			feeBps:   500,
			wantErr:  ErrInsufficientRepayment,
			failedAt: Swapped2,
		},
		{
			name:     "repay fails",
			setup:    func(f *fixture) { f.lender.failOn = "repay" },
			wantErr:  errInjected,
			failedAt: Swapped2,
		},
		{
			name: "below minimum profit",
			setup: func(f *fixture) {
				f.registry.AddBaseToken(admin, usdt, u(1_000_000))
			},
			wantErr:  ErrBelowMinimumProfit,
			failedAt: Repaid,
		},
		{
			name:     "payout fails",
			setup:    func(f *fixture) { f.env.failOn = "transfer" },
			wantErr:  errInjected,
			failedAt: Repaid,
		},
		{
			name:     "step budget",
			setup:    func(f *fixture) { f.cfg.StepBudget = 2 },
			wantErr:  ErrResourceBudgetExceeded,
			failedAt: Borrowed,
		},
		{
			name: "deadline",
			setup: func(f *fixture) {
				f.env.slow = true
				f.cfg.AttemptTimeout = 10 * time.Millisecond
			},
			wantErr:  ErrResourceBudgetExceeded,
			failedAt: Borrowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feeBps := tt.feeBps
			if feeBps == 0 {
				feeBps = 9
			}
			f := newFixture(t, feeBps)
			if tt.setup != nil {
				tt.setup(f)
			}
			before := f.capture(t)

			res, err := f.coordinator(t).Execute(context.Background(), f.plan, initiator)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, Aborted, res.State)
			assert.Equal(t, tt.failedAt, res.FailedAt)
			assert.Equal(t, err, res.Err)
			assert.Nil(t, res.RealizedProfit)

			// no partial effects survive an abort
			assert.Equal(t, before, f.capture(t))

			// states are never skipped
			for i, s := range res.Transitions[:len(res.Transitions)-1] {
				assert.Equal(t, State(i), s)
			}

			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Aborts.WithLabelValues(tt.failedAt.String(), Reason(err))))
		})
	}
}

func TestExecuteToleratesSmallDrift(t *testing.T) {
	f := newFixture(t, 9)
	// 0.05% worse than planned, inside the 50 bps tolerance
	require.NoError(t, f.fork.AddPool(pool(poolA, 1_000_000, 1_999_000)))

	res, err := f.coordinator(t).Execute(context.Background(), f.plan, initiator)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.True(t, res.IntermediateOut.Lt(f.plan.ExpectedIntermediateOut))
}

func TestExecuteCancelledContext(t *testing.T) {
	f := newFixture(t, 9)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.coordinator(t).Execute(ctx, f.plan, initiator)
	assert.ErrorIs(t, err, ErrResourceBudgetExceeded)
	assert.Equal(t, Planned, res.FailedAt)
	assert.Zero(t, f.lender.borrows)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "none", Reason(nil))
	assert.Equal(t, "stale_reserves", Reason(ErrStaleReservesDrift))
	assert.Equal(t, "loan_unavailable", Reason(flashloan.ErrLoanUnavailable))
	assert.Equal(t, "overflow", Reason(amm.ErrArithmeticOverflow))
	assert.Equal(t, "quote_mismatch", Reason(arbitrage.ErrQuoteMismatch))
	assert.Equal(t, "error", Reason(errInjected))
	assert.Equal(t, "Swapped2", Swapped2.String())
	assert.True(t, Settled.Terminal())
	assert.False(t, Repaid.Terminal())
}
