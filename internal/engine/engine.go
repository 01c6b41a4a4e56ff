package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/pulkyeet/flasharb/internal/arbitrage"
	"github.com/pulkyeet/flasharb/internal/execution"
	"github.com/pulkyeet/flasharb/internal/flashloan"
	"github.com/pulkyeet/flasharb/internal/metrics"
	"github.com/pulkyeet/flasharb/internal/whitelist"
	"go.uber.org/zap"
)

// placeholders for the pools of a raw reserve quote
var (
	quotePoolA  = common.HexToAddress("0x000000000000000000000000000000000000000a")
	quotePoolB  = common.HexToAddress("0x000000000000000000000000000000000000000b")
	quotePaired = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

// ExecuteRequest is the normalised form of every executeArbitrage call shape.
type ExecuteRequest struct {
	PoolA     common.Address
	PoolB     common.Address
	Direction arbitrage.Direction
	Initiator common.Address
	BaseToken common.Address
	// nil or zero lets the optimizer choose
	BorrowAmount *uint256.Int
}

type ProfitQuote struct {
	BorrowAmount *uint256.Int
	Profit       *uint256.Int
	Direction    arbitrage.Direction
	Plan         *arbitrage.Plan
}

type Engine struct {
	registry    *whitelist.Registry
	optimizer   *arbitrage.Optimizer
	coordinator *execution.Coordinator
	env         execution.Environment
	lender      flashloan.Lender
	// fee applied to both pools of a raw reserve quote
	quoteFee amm.Fee

	logger  *zap.Logger
	metrics *metrics.Metrics
}

type Options struct {
	Registry    *whitelist.Registry
	Optimizer   *arbitrage.Optimizer
	Coordinator *execution.Coordinator
	Env         execution.Environment
	Lender      flashloan.Lender
	QuoteFee    amm.Fee
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("engine needs a whitelist registry")
	}
	if opts.Optimizer == nil {
		opts.Optimizer = arbitrage.NewOptimizer(arbitrage.StrategySearch)
	}
	if opts.QuoteFee.IsZero() {
		opts.QuoteFee = amm.DefaultFee
	}
	if err := opts.QuoteFee.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	return &Engine{
		registry:    opts.Registry,
		optimizer:   opts.Optimizer,
		coordinator: opts.Coordinator,
		env:         opts.Env,
		lender:      opts.Lender,
		quoteFee:    opts.QuoteFee,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}, nil
}

// IsExpected separates "nothing to do here" outcomes from real failures.
func IsExpected(err error) bool {
	return errors.Is(err, arbitrage.ErrNoOpportunity) || errors.Is(err, whitelist.ErrTokenNotWhitelisted)
}

func (e *Engine) Registry() *whitelist.Registry {
	return e.registry
}

// AddBaseToken is the admin operation that whitelists token with a minimum profit.
func (e *Engine) AddBaseToken(caller, token common.Address, minProfit *uint256.Int) error {
	return e.registry.AddBaseToken(caller, token, minProfit)
}

// GetProfit plans against explicit reserves. For each pool "in" is the base
// token reserve and "out" the paired token reserve. It has no side effects.
func (e *Engine) GetProfit(reserveAIn, reserveAOut, reserveBIn, reserveBOut *uint256.Int, baseToken common.Address) (*ProfitQuote, error) {
	return e.GetProfitWithFees(reserveAIn, reserveAOut, reserveBIn, reserveBOut, e.quoteFee, e.quoteFee, baseToken)
}

// GetProfitWithFees is GetProfit with a fee per pool. A zero fee means the
// engine's quote fee.
func (e *Engine) GetProfitWithFees(reserveAIn, reserveAOut, reserveBIn, reserveBOut *uint256.Int, feeA, feeB amm.Fee, baseToken common.Address) (*ProfitQuote, error) {
	if err := whitelist.Check(e.registry, baseToken); err != nil {
		e.metrics.Plans.WithLabelValues("not_whitelisted").Inc()
		return nil, err
	}
	if feeA.IsZero() {
		feeA = e.quoteFee
	}
	if feeB.IsZero() {
		feeB = e.quoteFee
	}
	if err := feeA.Validate(); err != nil {
		return nil, fmt.Errorf("pool A: %w", err)
	}
	if err := feeB.Validate(); err != nil {
		return nil, fmt.Errorf("pool B: %w", err)
	}

	poolA := amm.Pool{
		Address:  quotePoolA,
		Token0:   baseToken,
		Token1:   quotePaired,
		Reserves: amm.NewReserves(reserveAIn, reserveAOut, 0),
		Fee:      feeA,
	}
	poolB := poolA
	poolB.Address = quotePoolB
	poolB.Reserves = amm.NewReserves(reserveBIn, reserveBOut, 0)
	poolB.Fee = feeB

	plan, err := e.optimizer.Optimize(poolA, poolB, baseToken)
	if err != nil {
		e.metrics.Plans.WithLabelValues(execution.Reason(err)).Inc()
		return nil, err
	}
	e.metrics.Plans.WithLabelValues("profitable").Inc()

	return &ProfitQuote{
		BorrowAmount: plan.BorrowAmount,
		Profit:       plan.ExpectedProfit,
		Direction:    plan.Direction,
		Plan:         plan,
	}, nil
}

// Plan builds the plan for req from the environment's live reserves.
func (e *Engine) Plan(ctx context.Context, req ExecuteRequest) (*arbitrage.Plan, error) {
	if err := whitelist.Check(e.registry, req.BaseToken); err != nil {
		return nil, err
	}
	if e.env == nil {
		return nil, fmt.Errorf("engine has no execution environment")
	}

	poolA, err := e.env.Pool(ctx, req.PoolA)
	if err != nil {
		return nil, fmt.Errorf("load pool A: %w", err)
	}
	poolB, err := e.env.Pool(ctx, req.PoolB)
	if err != nil {
		return nil, fmt.Errorf("load pool B: %w", err)
	}
	route, err := arbitrage.NewRoute(poolA, poolB, req.BaseToken, req.Direction)
	if err != nil {
		return nil, err
	}

	if req.BorrowAmount == nil || req.BorrowAmount.IsZero() {
		opt := e.optimizer
		if e.lender != nil {
			if liquidity, err := e.lender.Liquidity(ctx, req.BaseToken); err == nil {
				opt = opt.WithMaxBorrow(liquidity)
			}
		}
		return opt.OptimizeRoute(route)
	}

	plan, err := arbitrage.Simulate(route, req.BorrowAmount)
	if err != nil {
		return nil, err
	}
	if !plan.Profitable() {
		return nil, fmt.Errorf("%w: borrowing %s returns %s", arbitrage.ErrNoOpportunity, plan.BorrowAmount.Dec(), plan.ExpectedFinalOut.Dec())
	}
	return plan, nil
}

// ExecuteArbitrage plans req on live reserves and runs one attempt.
func (e *Engine) ExecuteArbitrage(ctx context.Context, req ExecuteRequest) (*execution.Result, error) {
	if e.coordinator == nil {
		return nil, fmt.Errorf("engine has no execution coordinator")
	}

	plan, err := e.Plan(ctx, req)
	if err != nil {
		e.metrics.Plans.WithLabelValues(execution.Reason(err)).Inc()
		e.logger.Debug("no plan", zap.String("pool_a", req.PoolA.Hex()), zap.String("pool_b", req.PoolB.Hex()), zap.Error(err))
		return nil, err
	}
	e.metrics.Plans.WithLabelValues("profitable").Inc()

	return e.coordinator.Execute(ctx, plan, req.Initiator)
}
