package eth

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/pulkyeet/flasharb/internal/arbitrage"
	"go.uber.org/zap"
)

// ReserveCache stores reserves of past blocks, which never change.
type ReserveCache interface {
	GetReserves(blockNumber uint64, pool common.Address) (amm.Reserves, bool, error)
	SetReserves(pool common.Address, r amm.Reserves) error
}

// PoolSpec names a pool and the dex it belongs to.
type PoolSpec struct {
	Address common.Address
	DEX     string
	// zero means the dex's default fee
	Fee amm.Fee
}

// PoolLoader reads V2 pair state over RPC. Pair tokens are immutable and
// cached in memory; reserves of a fixed block go to the optional ReserveCache.
type PoolLoader struct {
	caller ethereum.ContractCaller
	abi    abi.ABI
	tokens *lru.Cache[common.Address, [2]common.Address]
	cache  ReserveCache
	logger *zap.Logger
}

func NewPoolLoader(caller ethereum.ContractCaller, tokenCacheSize int, cache ReserveCache, logger *zap.Logger) (*PoolLoader, error) {
	contractABI, err := abi.JSON(strings.NewReader(UniswapV2PairABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	if tokenCacheSize <= 0 {
		tokenCacheSize = 1024
	}
	tokens, err := lru.New[common.Address, [2]common.Address](tokenCacheSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolLoader{caller: caller, abi: contractABI, tokens: tokens, cache: cache, logger: logger}, nil
}

func (l *PoolLoader) call(ctx context.Context, pool common.Address, method string, blockNum *big.Int) ([]interface{}, error) {
	data, err := l.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	result, err := l.caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, blockNum)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := l.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// FetchReserves gets reserves for a pool at a specific block
func (l *PoolLoader) FetchReserves(ctx context.Context, pool common.Address, blockNum uint64) (amm.Reserves, error) {
	if l.cache != nil {
		r, ok, err := l.cache.GetReserves(blockNum, pool)
		if err != nil {
			l.logger.Warn("reserve cache read failed", zap.String("pool", pool.Hex()), zap.Uint64("block", blockNum), zap.Error(err))
		} else if ok {
			return r, nil
		}
	}

	unpacked, err := l.call(ctx, pool, "getReserves", new(big.Int).SetUint64(blockNum))
	if err != nil {
		return amm.Reserves{}, err
	}
	if len(unpacked) < 2 {
		return amm.Reserves{}, fmt.Errorf("unexpected unpack result length: %d", len(unpacked))
	}
	reserve0, ok := unpacked[0].(*big.Int)
	if !ok {
		return amm.Reserves{}, fmt.Errorf("reserve0 type assertion failed")
	}
	reserve1, ok := unpacked[1].(*big.Int)
	if !ok {
		return amm.Reserves{}, fmt.Errorf("reserve1 type assertion failed")
	}

	// uint112 always fits
	r := amm.NewReserves(uint256.MustFromBig(reserve0), uint256.MustFromBig(reserve1), blockNum)
	if l.cache != nil {
		if err := l.cache.SetReserves(pool, r); err != nil {
			l.logger.Warn("reserve cache write failed", zap.String("pool", pool.Hex()), zap.Uint64("block", blockNum), zap.Error(err))
		}
	}
	return r, nil
}

// FetchTokens returns a pool's token0 and token1, cached after the first call.
func (l *PoolLoader) FetchTokens(ctx context.Context, pool common.Address) (token0, token1 common.Address, err error) {
	if pair, ok := l.tokens.Get(pool); ok {
		return pair[0], pair[1], nil
	}

	var pair [2]common.Address
	for i, method := range []string{"token0", "token1"} {
		out, err := l.call(ctx, pool, method, nil)
		if err != nil {
			return common.Address{}, common.Address{}, err
		}
		addr, ok := out[0].(common.Address)
		if !ok {
			return common.Address{}, common.Address{}, fmt.Errorf("%s type assertion failed", method)
		}
		pair[i] = addr
	}

	l.tokens.Add(pool, pair)
	return pair[0], pair[1], nil
}

// LoadPool fetches a pool's tokens and reserves at blockNum.
func (l *PoolLoader) LoadPool(ctx context.Context, spec PoolSpec, blockNum uint64) (amm.Pool, error) {
	token0, token1, err := l.FetchTokens(ctx, spec.Address)
	if err != nil {
		return amm.Pool{}, fmt.Errorf("fetch tokens: %w", err)
	}
	reserves, err := l.FetchReserves(ctx, spec.Address, blockNum)
	if err != nil {
		return amm.Pool{}, fmt.Errorf("fetch reserves: %w", err)
	}

	fee := spec.Fee
	if fee.IsZero() {
		if dex, ok := DEXByName(spec.DEX); ok {
			fee = dex.Fee
		}
	}

	return amm.Pool{
		Address:  spec.Address,
		Token0:   token0,
		Token1:   token1,
		Reserves: reserves,
		Fee:      fee,
		DEX:      spec.DEX,
	}, nil
}

// LoadPair loads every pool of a base/paired pair at one block.
func (l *PoolLoader) LoadPair(ctx context.Context, base common.Address, specs []PoolSpec, blockNum uint64) (*arbitrage.PairPools, error) {
	pair := &arbitrage.PairPools{Base: base, Pools: make([]amm.Pool, 0, len(specs))}
	for _, spec := range specs {
		p, err := l.LoadPool(ctx, spec, blockNum)
		if err != nil {
			return nil, fmt.Errorf("load %s pool %s: %w", spec.DEX, spec.Address.Hex(), err)
		}
		paired, err := p.Other(base)
		if err != nil {
			return nil, err
		}
		if pair.Paired == (common.Address{}) {
			pair.Paired = paired
		} else if pair.Paired != paired {
			return nil, fmt.Errorf("%w: pool %s trades %s, want %s", amm.ErrInvalidPool, spec.Address.Hex(), paired.Hex(), pair.Paired.Hex())
		}
		pair.Pools = append(pair.Pools, p)
	}
	return pair, nil
}
