package contract

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/pulkyeet/flasharb/internal/arbitrage"
	"github.com/pulkyeet/flasharb/internal/engine"
)

// DecodeExecuteCall turns calldata for any executeArbitrage shape into a request.
func DecodeExecuteCall(calldata []byte) (*engine.ExecuteRequest, error) {
	if len(calldata) < 4 {
		return nil, fmt.Errorf("calldata too short: %d bytes", len(calldata))
	}
	method, err := flashBot.MethodById(calldata[:4])
	if err != nil {
		return nil, fmt.Errorf("unknown selector %x: %w", calldata[:4], err)
	}

	switch method.Name {
	case MethodExecute, MethodLegacyExecute, MethodLegacyExecuteAuto:
	default:
		return nil, fmt.Errorf("%s is not an execute call", method.Name)
	}

	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method.Name, err)
	}

	req := &engine.ExecuteRequest{}
	var ok bool
	if req.PoolA, ok = args[0].(common.Address); !ok {
		return nil, fmt.Errorf("poolA type assertion failed")
	}
	if req.PoolB, ok = args[1].(common.Address); !ok {
		return nil, fmt.Errorf("poolB type assertion failed")
	}
	aFirst, ok := args[2].(bool)
	if !ok {
		return nil, fmt.Errorf("direction type assertion failed")
	}
	req.Direction = arbitrage.DirectionFromBool(aFirst)
	if req.Initiator, ok = args[3].(common.Address); !ok {
		return nil, fmt.Errorf("initiator type assertion failed")
	}
	if req.BaseToken, ok = args[4].(common.Address); !ok {
		return nil, fmt.Errorf("baseToken type assertion failed")
	}

	if len(args) > 5 {
		amount, ok := args[5].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("borrowAmount type assertion failed")
		}
		req.BorrowAmount, err = toUint256(amount)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}

// PackExecuteCall always emits the current call shape.
func PackExecuteCall(req *engine.ExecuteRequest) ([]byte, error) {
	amount := new(big.Int)
	if req.BorrowAmount != nil {
		amount = req.BorrowAmount.ToBig()
	}
	return flashBot.Pack(MethodExecute, req.PoolA, req.PoolB, req.Direction.Bool(), req.Initiator, req.BaseToken, amount)
}

func PackAddBaseToken(token common.Address, minProfit *uint256.Int) ([]byte, error) {
	return flashBot.Pack(MethodAddBaseToken, token, minProfit.ToBig())
}

func PackGetProfit(reserveAIn, reserveAOut, reserveBIn, reserveBOut *uint256.Int, baseToken common.Address) ([]byte, error) {
	return flashBot.Pack(MethodGetProfit, reserveAIn.ToBig(), reserveAOut.ToBig(), reserveBIn.ToBig(), reserveBOut.ToBig(), baseToken)
}

// UnpackGetProfit decodes getProfit's (borrowAmount, profit).
func UnpackGetProfit(data []byte) (borrowAmount, profit *uint256.Int, err error) {
	out, err := flashBot.Unpack(MethodGetProfit, data)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack getProfit: %w", err)
	}
	if len(out) != 2 {
		return nil, nil, fmt.Errorf("unexpected unpack result length: %d", len(out))
	}
	b, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("borrowAmount type assertion failed")
	}
	p, ok := out[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("profit type assertion failed")
	}
	if borrowAmount, err = toUint256(b); err != nil {
		return nil, nil, err
	}
	if profit, err = toUint256(p); err != nil {
		return nil, nil, err
	}
	return borrowAmount, profit, nil
}

// IsExecuteCall reports whether calldata targets one of the execute shapes.
func IsExecuteCall(calldata []byte) bool {
	if len(calldata) < 4 {
		return false
	}
	for _, name := range []string{MethodExecute, MethodLegacyExecute, MethodLegacyExecuteAuto} {
		if bytes.Equal(flashBot.Methods[name].ID, calldata[:4]) {
			return true
		}
	}
	return false
}

func toUint256(b *big.Int) (*uint256.Int, error) {
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %s does not fit 256 bits", amm.ErrArithmeticOverflow, b)
	}
	return v, nil
}
