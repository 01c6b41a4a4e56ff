package simulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
)

// StateFork is an in-memory copy of the pools and token balances an attempt
// touches, pinned at one block, with revertible snapshots.
//
// Pool reserves are tracked on the pool itself; token balances of the pool
// address are not kept separately.
type StateFork struct {
	blockNumber uint64

	cache *StateCache
	mu    sync.RWMutex

	// snapshot for revert
	snapshots []*StateCache
}

func NewStateFork(blockNumber uint64) *StateFork {
	return &StateFork{
		blockNumber: blockNumber,
		cache:       NewStateCache(),
		snapshots:   make([]*StateCache, 0),
	}
}

func (f *StateFork) BlockNumber() uint64 {
	return f.blockNumber
}

// AddPool installs or replaces a pool.
func (f *StateFork) AddPool(p amm.Pool) error {
	if err := p.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache.pools[p.Address] = p
	return nil
}

// Pool returns the live reserves of a pool.
func (f *StateFork) Pool(ctx context.Context, addr common.Address) (amm.Pool, error) {
	if err := ctx.Err(); err != nil {
		return amm.Pool{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.cache.pools[addr]
	if !ok {
		return amm.Pool{}, fmt.Errorf("%w: %s", ErrUnknownPool, addr.Hex())
	}
	return p, nil
}

// modify balance for simulation
func (f *StateFork) SetBalance(token, holder common.Address, amount *uint256.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setBalance(token, holder, *amount)
}

func (f *StateFork) setBalance(token, holder common.Address, amount uint256.Int) {
	holders, ok := f.cache.balances[token]
	if !ok {
		holders = make(map[common.Address]uint256.Int)
		f.cache.balances[token] = holders
	}
	holders[holder] = amount
}

func (f *StateFork) balance(token, holder common.Address) uint256.Int {
	return f.cache.balances[token][holder]
}

func (f *StateFork) Balance(ctx context.Context, token, holder common.Address) (*uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	bal := f.balance(token, holder)
	return &bal, nil
}

func (f *StateFork) Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transfer(token, from, to, amount)
}

func (f *StateFork) transfer(token, from, to common.Address, amount *uint256.Int) error {
	src := f.balance(token, from)
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, from.Hex(), src.Dec(), token.Hex(), amount.Dec())
	}
	if from == to {
		return nil
	}
	dst := f.balance(token, to)
	if _, overflow := dst.AddOverflow(&dst, amount); overflow {
		return fmt.Errorf("%w: balance of %s", amm.ErrArithmeticOverflow, to.Hex())
	}
	src.Sub(&src, amount)
	f.setBalance(token, from, src)
	f.setBalance(token, to, dst)
	return nil
}

// Swap sells AmountIn of TokenIn held by From into the pool and credits the
// output to To. Reserves move by exactly the swapped amounts.
func (f *StateFork) Swap(ctx context.Context, params SwapParams) (*uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	pool, ok := f.cache.pools[params.Pool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, params.Pool.Hex())
	}
	tokenOut, err := pool.Other(params.TokenIn)
	if err != nil {
		return nil, err
	}

	out, err := pool.Quote(params.TokenIn, params.AmountIn)
	if err != nil {
		return nil, err
	}
	if params.MinOut != nil && out.Lt(params.MinOut) {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrSlippage, out.Dec(), params.MinOut.Dec())
	}

	src := f.balance(params.TokenIn, params.From)
	if src.Lt(params.AmountIn) {
		return nil, fmt.Errorf("%w: %s holds %s, swap needs %s", ErrInsufficientBalance, params.From.Hex(), src.Dec(), params.AmountIn.Dec())
	}

	next, err := pool.WithSwap(params.TokenIn, params.AmountIn, out)
	if err != nil {
		return nil, err
	}
	dst := f.balance(tokenOut, params.To)
	if _, overflow := dst.AddOverflow(&dst, out); overflow {
		return nil, fmt.Errorf("%w: balance of %s", amm.ErrArithmeticOverflow, params.To.Hex())
	}

	src.Sub(&src, params.AmountIn)
	f.setBalance(params.TokenIn, params.From, src)
	f.setBalance(tokenOut, params.To, dst)
	f.cache.pools[params.Pool] = next

	return out, nil
}

// snapshot creates a revert point
func (f *StateFork) Snapshot() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.snapshots = append(f.snapshots, f.cache.clone())
	return len(f.snapshots) - 1
}

func (f *StateFork) RevertToSnapshot(snapID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if snapID < 0 || snapID >= len(f.snapshots) {
		return fmt.Errorf("invalid snapshot id: %d", snapID)
	}

	f.cache = f.snapshots[snapID]
	f.snapshots = f.snapshots[:snapID]

	return nil
}

// DiscardSnapshot drops snapID and every later snapshot, keeping current state.
func (f *StateFork) DiscardSnapshot(snapID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if snapID < 0 || snapID >= len(f.snapshots) {
		return fmt.Errorf("invalid snapshot id: %d", snapID)
	}
	f.snapshots = f.snapshots[:snapID]
	return nil
}
