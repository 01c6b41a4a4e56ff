package flashloan

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// VaultLender lends out of a single vault account on a ledger and charges a
// flat fee in basis points. Aave charges 9 bps, Balancer charges nothing.
type VaultLender struct {
	name   string
	vault  common.Address
	feeBps uint64
	ledger Ledger
	logger *zap.Logger
}

func NewVaultLender(name string, vault common.Address, feeBps uint64, ledger Ledger, logger *zap.Logger) *VaultLender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VaultLender{
		name:   name,
		vault:  vault,
		feeBps: feeBps,
		ledger: ledger,
		logger: logger.With(zap.String("lender", name)),
	}
}

func (v *VaultLender) String() string { return v.name }

func (v *VaultLender) Vault() common.Address { return v.vault }

func (v *VaultLender) FeeBps() uint64 { return v.feeBps }

func (v *VaultLender) Quote(_ context.Context, _ common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return FeeFor(amount, v.feeBps)
}

func (v *VaultLender) Liquidity(ctx context.Context, token common.Address) (*uint256.Int, error) {
	return v.ledger.Balance(ctx, token, v.vault)
}

func (v *VaultLender) Borrow(ctx context.Context, token common.Address, amount *uint256.Int, receiver common.Address) (*Loan, error) {
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("%w: zero amount", ErrLoanUnavailable)
	}
	available, err := v.Liquidity(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s liquidity: %v", ErrLoanUnavailable, v.name, err)
	}
	if available.Lt(amount) {
		return nil, fmt.Errorf("%w: %s has %s, want %s", ErrLoanUnavailable, v.name, available.Dec(), amount.Dec())
	}

	fee, err := FeeFor(amount, v.feeBps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoanUnavailable, err)
	}
	if err := v.ledger.Transfer(ctx, token, v.vault, receiver, amount); err != nil {
		return nil, fmt.Errorf("%w: %s transfer: %v", ErrLoanUnavailable, v.name, err)
	}

	v.logger.Debug("loan issued",
		zap.String("token", token.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("fee", fee.Dec()),
	)
	return &Loan{
		Provider:  v.name,
		Token:     token,
		Receiver:  receiver,
		Principal: amount.Clone(),
		Fee:       fee,
	}, nil
}

func (v *VaultLender) Repay(ctx context.Context, loan *Loan) error {
	owed, err := loan.Owed()
	if err != nil {
		return err
	}
	if err := v.ledger.Transfer(ctx, loan.Token, loan.Receiver, v.vault, owed); err != nil {
		return fmt.Errorf("repay %s: %w", v.name, err)
	}
	return nil
}
