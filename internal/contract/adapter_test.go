package contract

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/arbitrage"
	"github.com/pulkyeet/flasharb/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	poolA = common.HexToAddress("0x16b9a82891338f9bA80E2D6970FddA79D1eb0daE")
	poolB = common.HexToAddress("0x58F876857a02D6762E0101bb5C46A8c1ED44Dc16")
	wbnb  = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	usdt  = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
)

func TestDecodeExecuteCallShapes(t *testing.T) {
	amount := uint256.MustFromDecimal("5000000000000000000")

	stable, err := flashBot.Pack(MethodExecute, poolA, poolB, true, wbnb, usdt, amount.ToBig())
	require.NoError(t, err)
	legacy, err := flashBot.Pack(MethodLegacyExecute, poolA, poolB, true, wbnb, usdt, amount.ToBig())
	require.NoError(t, err)
	auto, err := flashBot.Pack(MethodLegacyExecuteAuto, poolA, poolB, false, wbnb, usdt)
	require.NoError(t, err)

	want := &engine.ExecuteRequest{
		PoolA:        poolA,
		PoolB:        poolB,
		Direction:    arbitrage.AToB,
		Initiator:    wbnb,
		BaseToken:    usdt,
		BorrowAmount: amount,
	}

	got, err := DecodeExecuteCall(stable)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = DecodeExecuteCall(legacy)
	require.NoError(t, err)
	assert.Equal(t, want, got, "legacy shape decodes to the same request")

	got, err = DecodeExecuteCall(auto)
	require.NoError(t, err)
	assert.Equal(t, arbitrage.BToA, got.Direction)
	assert.Nil(t, got.BorrowAmount)

	for _, data := range [][]byte{stable, legacy, auto} {
		assert.True(t, IsExecuteCall(data))
	}
}

func TestPackExecuteCallUsesStableShape(t *testing.T) {
	req := &engine.ExecuteRequest{PoolA: poolA, PoolB: poolB, Direction: arbitrage.BToA, Initiator: wbnb, BaseToken: usdt}
	data, err := PackExecuteCall(req)
	require.NoError(t, err)
	assert.Equal(t, flashBot.Methods[MethodExecute].ID, data[:4])

	back, err := DecodeExecuteCall(data)
	require.NoError(t, err)
	assert.Equal(t, arbitrage.BToA, back.Direction)
	assert.True(t, back.BorrowAmount.IsZero())
}

func TestDecodeRejectsOtherCalls(t *testing.T) {
	data, err := PackAddBaseToken(usdt, uint256.NewInt(5))
	require.NoError(t, err)
	_, err = DecodeExecuteCall(data)
	assert.Error(t, err)
	assert.False(t, IsExecuteCall(data))

	_, err = DecodeExecuteCall([]byte{0x01})
	assert.Error(t, err)

	_, err = DecodeExecuteCall([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err)
}

type stubCaller struct {
	gotData []byte
	gotTo   common.Address
	reply   []byte
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.gotData = msg.Data
	s.gotTo = *msg.To
	return s.reply, nil
}

func TestRemoteGetProfit(t *testing.T) {
	reply, err := flashBot.Methods[MethodGetProfit].Outputs.Pack(big.NewInt(11_208), big.NewInt(256))
	require.NoError(t, err)

	contractAddr := common.HexToAddress("0xf1a5")
	caller := &stubCaller{reply: reply}
	remote := NewRemote(caller, contractAddr)

	borrow, profit, err := remote.GetProfit(context.Background(), nil,
		uint256.MustFromDecimal("7125266306543071511642537"),
		uint256.MustFromDecimal("340028120360655633872965"),
		uint256.MustFromDecimal("6401037538803577859483"),
		uint256.MustFromDecimal("305373934829391083109"),
		usdt,
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(11_208), borrow.Uint64())
	assert.Equal(t, uint64(256), profit.Uint64())
	assert.Equal(t, contractAddr, caller.gotTo)
	assert.Equal(t, flashBot.Methods[MethodGetProfit].ID, caller.gotData[:4])
}
