package whitelist

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	// ErrTokenNotWhitelisted is an expected outcome: the token may not be borrowed.
	ErrTokenNotWhitelisted = errors.New("token not whitelisted")

	// ErrUnauthorized is returned when someone other than the admin edits the whitelist.
	ErrUnauthorized = errors.New("caller is not the whitelist admin")
)

// Guard is what execution consults before borrowing and at settlement.
type Guard interface {
	IsApproved(token common.Address) bool
	// MinimumProfit returns the threshold for an approved token; nil otherwise.
	MinimumProfit(token common.Address) *uint256.Int
}

type Entry struct {
	Token         common.Address
	MinimumProfit *uint256.Int
	UpdatedAt     time.Time
}

// Store persists entries across restarts.
type Store interface {
	Save(entry Entry) error
	Load() ([]Entry, error)
}

// Registry is the single owner of the base token whitelist. Entries are added or
// updated, never removed.
type Registry struct {
	admin  common.Address
	store  Store
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[common.Address]Entry
}

// NewRegistry restores persisted entries from store, which may be nil.
func NewRegistry(admin common.Address, store Store, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		admin:   admin,
		store:   store,
		logger:  logger,
		entries: make(map[common.Address]Entry),
	}

	if store != nil {
		entries, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("load whitelist: %w", err)
		}
		for _, e := range entries {
			r.entries[e.Token] = e
		}
		logger.Debug("restored whitelist", zap.Int("entries", len(entries)))
	}
	return r, nil
}

func (r *Registry) Admin() common.Address {
	return r.admin
}

// AddBaseToken sets the minimum profit for token. Repeating a call with the
// same arguments leaves the registry unchanged.
func (r *Registry) AddBaseToken(caller, token common.Address, minProfit *uint256.Int) error {
	if caller != r.admin {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	if token == (common.Address{}) {
		return fmt.Errorf("base token is the zero address")
	}
	if minProfit == nil {
		minProfit = new(uint256.Int)
	}
	return r.put(token, minProfit, true)
}

// Seed installs an entry without the admin check; used for deploy time defaults
// such as the wrapped native token.
// An existing entry, persisted or admin set, wins over the default.
func (r *Registry) Seed(token common.Address, minProfit *uint256.Int) error {
	return r.put(token, minProfit, false)
}

// put stores the entry; with overwrite unset an existing entry is kept.
func (r *Registry) put(token common.Address, minProfit *uint256.Int, overwrite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[token]; ok && (!overwrite || cur.MinimumProfit.Eq(minProfit)) {
		return nil
	}

	entry := Entry{Token: token, MinimumProfit: minProfit.Clone(), UpdatedAt: time.Now().UTC()}
	if r.store != nil {
		if err := r.store.Save(entry); err != nil {
			return fmt.Errorf("persist %s: %w", token.Hex(), err)
		}
	}
	r.entries[token] = entry

	r.logger.Info("base token whitelisted",
		zap.String("token", token.Hex()),
		zap.String("min_profit", minProfit.Dec()),
	)
	return nil
}

func (r *Registry) IsApproved(token common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[token]
	return ok
}

func (r *Registry) MinimumProfit(token common.Address) *uint256.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[token]
	if !ok {
		return nil
	}
	return e.MinimumProfit.Clone()
}

// Check returns ErrTokenNotWhitelisted for unknown tokens.
func Check(g Guard, token common.Address) error {
	if !g.IsApproved(token) {
		return fmt.Errorf("%w: %s", ErrTokenNotWhitelisted, token.Hex())
	}
	return nil
}

// Entries returns a copy sorted by token address.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		e.MinimumProfit = e.MinimumProfit.Clone()
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Token.Cmp(out[j].Token) < 0
	})
	return out
}
