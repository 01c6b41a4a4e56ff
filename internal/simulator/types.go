package simulator

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
)

var (
	ErrUnknownPool         = errors.New("unknown pool")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSlippage            = errors.New("output below minimum")
)

// SwapParams describes one swap against a pool on the fork.
type SwapParams struct {
	Pool     common.Address
	TokenIn  common.Address
	AmountIn *uint256.Int
	// MinOut makes the swap fail rather than return less.
	MinOut *uint256.Int
	From   common.Address
	To     common.Address
}

// StateCache is everything a snapshot must restore.
type StateCache struct {
	pools    map[common.Address]amm.Pool
	balances map[common.Address]map[common.Address]uint256.Int // token -> holder -> amount
}

func NewStateCache() *StateCache {
	return &StateCache{
		pools:    make(map[common.Address]amm.Pool),
		balances: make(map[common.Address]map[common.Address]uint256.Int),
	}
}

func (c *StateCache) clone() *StateCache {
	snap := NewStateCache()
	// amm.Pool and uint256.Int are values, copying the maps is a deep copy
	for addr, p := range c.pools {
		snap.pools[addr] = p
	}
	for token, holders := range c.balances {
		snap.balances[token] = make(map[common.Address]uint256.Int, len(holders))
		for holder, bal := range holders {
			snap.balances[token][holder] = bal
		}
	}
	return snap
}
