package eth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pulkyeet/flasharb/internal/amm"
)

// Token addresses, BNB Smart Chain
var (
	WBNBAddress = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	USDTAddress = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	BUSDAddress = common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56")
	USDCAddress = common.HexToAddress("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d")
	ETHAddress  = common.HexToAddress("0x2170Ed0880ac9A755fd29B2688956BD959F933F8")
)

// every BSC token above uses 18 decimals, unlike their mainnet versions
const (
	WBNBDecimals = 18
	USDTDecimals = 18
	BUSDDecimals = 18
	USDCDecimals = 18
	ETHDecimals  = 18
)

// TokenInfo bundles address + decimals for easy lookup
type TokenInfo struct {
	Address  common.Address
	Decimals int32
	Symbol   string
}

// KnownTokens by symbol
var KnownTokens = map[string]TokenInfo{
	"WBNB": {WBNBAddress, WBNBDecimals, "WBNB"},
	"USDT": {USDTAddress, USDTDecimals, "USDT"},
	"BUSD": {BUSDAddress, BUSDDecimals, "BUSD"},
	"USDC": {USDCAddress, USDCDecimals, "USDC"},
	"ETH":  {ETHAddress, ETHDecimals, "ETH"},
}

// ResolveToken accepts a symbol from KnownTokens or a hex address.
func ResolveToken(s string) (TokenInfo, error) {
	if info, ok := KnownTokens[strings.ToUpper(s)]; ok {
		return info, nil
	}
	if !common.IsHexAddress(s) {
		return TokenInfo{}, fmt.Errorf("unknown token %q", s)
	}
	addr := common.HexToAddress(s)
	for _, info := range KnownTokens {
		if info.Address == addr {
			return info, nil
		}
	}
	return TokenInfo{Address: addr, Decimals: 18, Symbol: addr.Hex()}, nil
}

// DEXConfig: factory + init code hash is all you need to derive ANY pair address
type DEXConfig struct {
	Name         string
	Factory      common.Address
	InitCodeHash [32]byte
	Fee          amm.Fee
}

// KnownDEXes are the tracked Uniswap V2 forks on BSC
var KnownDEXes = []DEXConfig{
	{
		Name:         "pancakeswap",
		Factory:      common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73"),
		InitCodeHash: hexToBytes32("00fb7f630766e6a796048ea87d01acd3068e8ff67d078148a3fa3f4a84f69bd5"),
		Fee:          amm.PancakeV2Fee,
	},
	{
		Name:         "apeswap",
		Factory:      common.HexToAddress("0x0841BD0B734E4F5853f0dD8d7Ea041c241fb0Da6"),
		InitCodeHash: hexToBytes32("f4ccce374816856d11f00e4069e7cada164065686fbef53c6167a63ec2fd8c5b"),
		Fee:          amm.ApeSwapFee,
	},
}

func DEXByName(name string) (DEXConfig, bool) {
	for _, d := range KnownDEXes {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return DEXConfig{}, false
}

func hexToBytes32(s string) [32]byte {
	var b [32]byte
	copy(b[:], common.FromHex(s))
	return b
}

// Uniswap V2 Pair ABI: getReserves, token0, token1
const UniswapV2PairABI = `[
	{
		"constant": true,
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "reserve1", "type": "uint112"},
			{"internalType": "uint32",  "name": "blockTimestampLast", "type": "uint32"}
		],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	},
	{"constant": true, "inputs": [], "name": "token0", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "token1", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"}
]`
