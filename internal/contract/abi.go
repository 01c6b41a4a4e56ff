package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// FlashBotABI covers the admin, quote and execute entry points. The two
// *ForYulin / *forYulin methods are older call shapes kept for existing callers.
const FlashBotABI = `[
	{"type":"constructor","inputs":[{"name":"wrappedNative","type":"address"},{"name":"nativeMinProfit","type":"uint256"}]},
	{"type":"function","name":"addBaseToken","stateMutability":"nonpayable",
	 "inputs":[{"name":"token","type":"address"},{"name":"minProfit","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getProfit","stateMutability":"view",
	 "inputs":[
		{"name":"reserveAIn","type":"uint256"},{"name":"reserveAOut","type":"uint256"},
		{"name":"reserveBIn","type":"uint256"},{"name":"reserveBOut","type":"uint256"},
		{"name":"baseToken","type":"address"}],
	 "outputs":[{"name":"borrowAmount","type":"uint256"},{"name":"profit","type":"uint256"}]},
	{"type":"function","name":"flashArbitrage","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"poolA","type":"address"},{"name":"poolB","type":"address"},{"name":"aFirst","type":"bool"},
		{"name":"initiator","type":"address"},{"name":"baseToken","type":"address"},{"name":"borrowAmount","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"flashArbitrageForYulin","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"poolA","type":"address"},{"name":"poolB","type":"address"},{"name":"aFirst","type":"bool"},
		{"name":"initiator","type":"address"},{"name":"baseToken","type":"address"},{"name":"borrowAmount","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"flashArbitrageforYulin","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"poolA","type":"address"},{"name":"poolB","type":"address"},{"name":"aFirst","type":"bool"},
		{"name":"initiator","type":"address"},{"name":"baseToken","type":"address"}],
	 "outputs":[]}
]`

const (
	MethodAddBaseToken  = "addBaseToken"
	MethodGetProfit     = "getProfit"
	MethodExecute       = "flashArbitrage"
	MethodLegacyExecute = "flashArbitrageForYulin"
	// same as MethodLegacyExecute without borrowAmount; the amount is optimised
	MethodLegacyExecuteAuto = "flashArbitrageforYulin"
)

var flashBot = mustParse(FlashBotABI)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

func FlashBot() abi.ABI { return flashBot }
