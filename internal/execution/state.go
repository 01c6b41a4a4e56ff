package execution

import (
	"errors"

	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/pulkyeet/flasharb/internal/arbitrage"
	"github.com/pulkyeet/flasharb/internal/flashloan"
	"github.com/pulkyeet/flasharb/internal/whitelist"
)

// State of one execution attempt. Attempts only move forward through
// Planned, Borrowed, Swapped1, Swapped2, Repaid, Settled; any of them may
// drop to Aborted.
type State uint8

const (
	Planned State = iota
	Borrowed
	Swapped1
	Swapped2
	Repaid
	Settled
	Aborted
)

var stateNames = [...]string{"Planned", "Borrowed", "Swapped1", "Swapped2", "Repaid", "Settled", "Aborted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

func (s State) Terminal() bool {
	return s == Settled || s == Aborted
}

var (
	ErrStaleReservesDrift     = errors.New("reserves drifted beyond tolerance")
	ErrInsufficientRepayment  = errors.New("proceeds do not cover loan repayment")
	ErrBelowMinimumProfit     = errors.New("realized profit below minimum")
	ErrResourceBudgetExceeded = errors.New("resource budget exceeded")

	ErrLoanUnavailable = flashloan.ErrLoanUnavailable
)

// Reason is a short metric label for err.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, whitelist.ErrTokenNotWhitelisted):
		return "token_not_whitelisted"
	case errors.Is(err, arbitrage.ErrNoOpportunity):
		return "no_opportunity"
	case errors.Is(err, ErrStaleReservesDrift):
		return "stale_reserves"
	case errors.Is(err, ErrInsufficientRepayment):
		return "insufficient_repayment"
	case errors.Is(err, ErrBelowMinimumProfit):
		return "below_minimum_profit"
	case errors.Is(err, ErrResourceBudgetExceeded):
		return "budget_exceeded"
	case errors.Is(err, ErrLoanUnavailable):
		return "loan_unavailable"
	case errors.Is(err, arbitrage.ErrQuoteMismatch):
		return "quote_mismatch"
	case errors.Is(err, amm.ErrArithmeticOverflow):
		return "overflow"
	case errors.Is(err, amm.ErrInvalidPool):
		return "invalid_pool"
	}
	return "error"
}
