package flashloan

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrLoanUnavailable means no provider could lend the requested amount.
var ErrLoanUnavailable = errors.New("flash loan unavailable")

// Lender provides same-transaction loans.
type Lender interface {
	// Borrow sends amount of token to receiver; the loan must be repaid before the attempt ends.
	Borrow(ctx context.Context, token common.Address, amount *uint256.Int, receiver common.Address) (*Loan, error)
	// Repay pulls principal plus fee back from the loan's receiver.
	Repay(ctx context.Context, loan *Loan) error
	// Quote returns the fee charged for borrowing amount.
	Quote(ctx context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error)
	Liquidity(ctx context.Context, token common.Address) (*uint256.Int, error)
	String() string
}

// Ledger is the token accounting a lender moves funds on.
type Ledger interface {
	Balance(ctx context.Context, token, holder common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
}

type Loan struct {
	Provider  string
	Token     common.Address
	Receiver  common.Address
	Principal *uint256.Int
	Fee       *uint256.Int
}

// Owed is principal plus fee.
func (l *Loan) Owed() (*uint256.Int, error) {
	owed, overflow := new(uint256.Int).AddOverflow(l.Principal, l.Fee)
	if overflow {
		return nil, fmt.Errorf("loan repayment overflows")
	}
	return owed, nil
}

// FeeFor charges bps basis points of amount, rounded up in the lender's favour.
func FeeFor(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	if bps == 0 || amount.IsZero() {
		return new(uint256.Int), nil
	}
	scaled, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(bps))
	if overflow {
		return nil, fmt.Errorf("loan fee overflows")
	}
	fee, rem := new(uint256.Int), new(uint256.Int)
	fee.DivMod(scaled, uint256.NewInt(10_000), rem)
	if !rem.IsZero() {
		fee.AddUint64(fee, 1)
	}
	return fee, nil
}
