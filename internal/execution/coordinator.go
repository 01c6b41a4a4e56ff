package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/pulkyeet/flasharb/internal/arbitrage"
	"github.com/pulkyeet/flasharb/internal/flashloan"
	"github.com/pulkyeet/flasharb/internal/metrics"
	"github.com/pulkyeet/flasharb/internal/simulator"
	"github.com/pulkyeet/flasharb/internal/whitelist"
	"go.uber.org/zap"
)

// Environment is the state an attempt runs against. Everything done between
// Snapshot and RevertToSnapshot is undone as a unit.
type Environment interface {
	Pool(ctx context.Context, addr common.Address) (amm.Pool, error)
	Swap(ctx context.Context, params simulator.SwapParams) (*uint256.Int, error)
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error

	Snapshot() int
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int) error
}

type Config struct {
	// Executor holds borrowed funds during the attempt.
	Executor common.Address
	// DriftToleranceBps is the allowed shortfall of the first swap against the plan.
	DriftToleranceBps uint64
	// StepBudget caps external calls per attempt; 0 disables the cap.
	StepBudget int
	// AttemptTimeout bounds one attempt's wall time; 0 disables it.
	AttemptTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		DriftToleranceBps: 50,
		StepBudget:        8,
		AttemptTimeout:    2 * time.Second,
	}
}

// Result of one attempt. On abort State is Aborted and FailedAt is the last
// state reached.
type Result struct {
	Plan        *arbitrage.Plan
	Initiator   common.Address
	State       State
	FailedAt    State
	Transitions []State
	Err         error

	Loan            *flashloan.Loan
	IntermediateOut *uint256.Int
	FinalOut        *uint256.Int
	RealizedProfit  *uint256.Int
	Steps           int
}

func (r *Result) Success() bool {
	return r.State == Settled
}

func (r *Result) advance(s State) {
	r.State = s
	r.Transitions = append(r.Transitions, s)
}

// Coordinator drives plans through borrow, two swaps, repay and payout. It
// never retries; a failed attempt leaves the environment as it found it.
type Coordinator struct {
	env     Environment
	lender  flashloan.Lender
	guard   whitelist.Guard
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	// the environment has one snapshot stack, so attempts run one at a time
	mu sync.Mutex
}

func NewCoordinator(env Environment, lender flashloan.Lender, guard whitelist.Guard, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Coordinator{
		env:     env,
		lender:  lender,
		guard:   guard,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

func (c *Coordinator) Config() Config {
	return c.cfg
}

// Execute runs one attempt. The returned Result is always non-nil; err is
// set exactly when the attempt aborted.
func (c *Coordinator) Execute(ctx context.Context, plan *arbitrage.Plan, initiator common.Address) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	defer c.metrics.ObserveAttempt(start)

	res := &Result{Plan: plan, Initiator: initiator}
	res.advance(Planned)

	if err := validatePlan(plan); err != nil {
		return c.abort(res, err), err
	}
	log := c.logger.With(
		zap.String("base", plan.Base.Hex()),
		zap.String("first_pool", plan.FirstPool().Hex()),
		zap.String("second_pool", plan.SecondPool().Hex()),
		zap.String("borrow", plan.BorrowAmount.Dec()),
	)

	// never borrow a token that isn't whitelisted
	if err := whitelist.Check(c.guard, plan.Base); err != nil {
		return c.abort(res, err), err
	}

	if c.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
	}

	b := &budget{limit: c.cfg.StepBudget}
	snap := c.env.Snapshot()
	err := c.run(ctx, b, plan, res)
	res.Steps = b.used
	if err != nil {
		if rerr := c.env.RevertToSnapshot(snap); rerr != nil {
			log.Error("failed to revert attempt", zap.Error(rerr))
			err = fmt.Errorf("%w (revert failed: %v)", err, rerr)
		}
		log.Info("attempt aborted", zap.Stringer("state", res.State), zap.Error(err))
		return c.abort(res, err), err
	}
	if err := c.env.DiscardSnapshot(snap); err != nil {
		log.Warn("failed to discard snapshot", zap.Error(err))
	}

	c.metrics.Attempts.WithLabelValues("settled").Inc()
	c.metrics.AddProfit(plan.Base.Hex(), res.RealizedProfit)
	log.Info("attempt settled",
		zap.String("profit", res.RealizedProfit.Dec()),
		zap.Int("steps", res.Steps),
	)
	return res, nil
}

func validatePlan(plan *arbitrage.Plan) error {
	if plan == nil || plan.BorrowAmount == nil || plan.BorrowAmount.IsZero() {
		return fmt.Errorf("%w: empty plan", arbitrage.ErrNoOpportunity)
	}
	if plan.ExpectedIntermediateOut == nil || !plan.Profitable() {
		return fmt.Errorf("%w: plan does not cover its borrow", arbitrage.ErrNoOpportunity)
	}
	return nil
}

func (c *Coordinator) abort(res *Result, err error) *Result {
	res.FailedAt = res.State
	res.Err = err
	res.advance(Aborted)

	c.metrics.Attempts.WithLabelValues("aborted").Inc()
	c.metrics.Aborts.WithLabelValues(res.FailedAt.String(), Reason(err)).Inc()
	return res
}

func (c *Coordinator) run(ctx context.Context, b *budget, plan *arbitrage.Plan, res *Result) error {
	executor := c.cfg.Executor

	// Planned -> Borrowed
	if err := b.spend(ctx, "borrow"); err != nil {
		return err
	}
	loan, err := c.lender.Borrow(ctx, plan.Base, plan.BorrowAmount, executor)
	if err != nil {
		return external(ctx, "borrow", err)
	}
	res.Loan = loan
	res.advance(Borrowed)

	// Borrowed -> Swapped1, against live reserves
	if err := b.spend(ctx, "read first pool"); err != nil {
		return err
	}
	first, err := c.env.Pool(ctx, plan.FirstPool())
	if err != nil {
		return external(ctx, "read first pool", err)
	}
	live, err := first.Quote(plan.Base, plan.BorrowAmount)
	if err != nil {
		return fmt.Errorf("quote first swap: %w", err)
	}
	minOut, err := c.minIntermediate(plan.ExpectedIntermediateOut)
	if err != nil {
		return err
	}
	if live.Lt(minOut) {
		return fmt.Errorf("%w: first swap yields %s, planned %s", ErrStaleReservesDrift, live.Dec(), plan.ExpectedIntermediateOut.Dec())
	}

	if err := b.spend(ctx, "first swap"); err != nil {
		return err
	}
	mid, err := c.env.Swap(ctx, simulator.SwapParams{
		Pool:     plan.FirstPool(),
		TokenIn:  plan.Base,
		AmountIn: plan.BorrowAmount,
		MinOut:   minOut,
		From:     executor,
		To:       executor,
	})
	if err != nil {
		return external(ctx, "first swap", err)
	}
	res.IntermediateOut = mid
	res.advance(Swapped1)

	// Swapped1 -> Swapped2
	if err := b.spend(ctx, "second swap"); err != nil {
		return err
	}
	final, err := c.env.Swap(ctx, simulator.SwapParams{
		Pool:     plan.SecondPool(),
		TokenIn:  plan.Paired,
		AmountIn: mid,
		From:     executor,
		To:       executor,
	})
	if err != nil {
		return external(ctx, "second swap", err)
	}
	res.FinalOut = final
	res.advance(Swapped2)

	// Swapped2 -> Repaid
	owed, err := loan.Owed()
	if err != nil {
		return fmt.Errorf("%w: %v", amm.ErrArithmeticOverflow, err)
	}
	if final.Lt(owed) {
		return fmt.Errorf("%w: got %s, owe %s", ErrInsufficientRepayment, final.Dec(), owed.Dec())
	}
	if err := b.spend(ctx, "repay"); err != nil {
		return err
	}
	if err := c.lender.Repay(ctx, loan); err != nil {
		return external(ctx, "repay", err)
	}
	res.advance(Repaid)

	// Repaid -> Settled
	profit := new(uint256.Int).Sub(final, owed)
	threshold := c.guard.MinimumProfit(plan.Base)
	if threshold == nil {
		return fmt.Errorf("%w: %s has no threshold", whitelist.ErrTokenNotWhitelisted, plan.Base.Hex())
	}
	if profit.Lt(threshold) {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinimumProfit, profit.Dec(), threshold.Dec())
	}
	if !profit.IsZero() {
		if err := b.spend(ctx, "payout"); err != nil {
			return err
		}
		if err := c.env.Transfer(ctx, plan.Base, executor, res.Initiator, profit); err != nil {
			return external(ctx, "payout", err)
		}
	}
	res.RealizedProfit = profit
	res.advance(Settled)
	return nil
}

// minIntermediate is the planned first swap output less the drift tolerance.
func (c *Coordinator) minIntermediate(expected *uint256.Int) (*uint256.Int, error) {
	slack, overflow := new(uint256.Int).MulOverflow(expected, uint256.NewInt(c.cfg.DriftToleranceBps))
	if overflow {
		return nil, fmt.Errorf("%w: drift tolerance", amm.ErrArithmeticOverflow)
	}
	slack.Div(slack, uint256.NewInt(10_000))
	if slack.Gt(expected) {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(expected, slack), nil
}
