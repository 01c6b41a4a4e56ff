package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Remote queries a deployed FlashBot contract.
type Remote struct {
	caller  ethereum.ContractCaller
	address common.Address
}

func NewRemote(caller ethereum.ContractCaller, address common.Address) *Remote {
	return &Remote{caller: caller, address: address}
}

// GetProfit runs the contract's getProfit view at block (nil for latest).
func (r *Remote) GetProfit(ctx context.Context, block *big.Int, reserveAIn, reserveAOut, reserveBIn, reserveBOut *uint256.Int, baseToken common.Address) (borrowAmount, profit *uint256.Int, err error) {
	data, err := PackGetProfit(reserveAIn, reserveAOut, reserveBIn, reserveBOut, baseToken)
	if err != nil {
		return nil, nil, fmt.Errorf("pack getProfit: %w", err)
	}

	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, block)
	if err != nil {
		return nil, nil, fmt.Errorf("call getProfit: %w", err)
	}
	return UnpackGetProfit(result)
}
