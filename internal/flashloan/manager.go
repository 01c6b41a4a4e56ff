package flashloan

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Manager routes loans to the cheapest provider that has enough liquidity.
// It is itself a Lender.
type Manager struct {
	mu        sync.RWMutex
	providers []Lender
	logger    *zap.Logger

	metrics struct {
		providerSelections *prometheus.CounterVec
		errors             *prometheus.CounterVec
	}
}

// NewManager registers its metrics on reg; a nil reg leaves them unregistered.
func NewManager(logger *zap.Logger, reg prometheus.Registerer) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{logger: logger}

	m.metrics.providerSelections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashloan_provider_selections_total",
		Help: "Number of times each provider was selected",
	}, []string{"provider"})

	m.metrics.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashloan_errors_total",
		Help: "Number of flash loan errors by type",
	}, []string{"error_type"})

	if reg != nil {
		reg.MustRegister(m.metrics.providerSelections, m.metrics.errors)
	}
	return m
}

func (m *Manager) AddProvider(p Lender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, p)
}

func (m *Manager) String() string { return "manager" }

// selectProvider picks the lowest quote among providers that can cover amount.
func (m *Manager) selectProvider(ctx context.Context, token common.Address, amount *uint256.Int) (Lender, *uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.providers) == 0 {
		return nil, nil, fmt.Errorf("%w: no providers available", ErrLoanUnavailable)
	}

	var (
		best    Lender
		bestFee *uint256.Int
	)
	for _, p := range m.providers {
		liquidity, err := p.Liquidity(ctx, token)
		if err != nil {
			m.logger.Warn("failed to get liquidity", zap.Stringer("provider", p), zap.Error(err))
			continue
		}
		if liquidity.Lt(amount) {
			continue
		}
		fee, err := p.Quote(ctx, token, amount)
		if err != nil {
			m.logger.Warn("failed to get fee", zap.Stringer("provider", p), zap.Error(err))
			continue
		}
		if best == nil || fee.Lt(bestFee) {
			best, bestFee = p, fee
		}
	}

	if best == nil {
		return nil, nil, fmt.Errorf("%w: no provider can lend %s of %s", ErrLoanUnavailable, amount.Dec(), token.Hex())
	}
	return best, bestFee, nil
}

func (m *Manager) Quote(ctx context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	_, fee, err := m.selectProvider(ctx, token, amount)
	return fee, err
}

// Liquidity is the largest single loan any provider can make.
func (m *Manager) Liquidity(ctx context.Context, token common.Address) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	best := new(uint256.Int)
	for _, p := range m.providers {
		l, err := p.Liquidity(ctx, token)
		if err != nil {
			continue
		}
		if l.Gt(best) {
			best = l
		}
	}
	return best, nil
}

func (m *Manager) Borrow(ctx context.Context, token common.Address, amount *uint256.Int, receiver common.Address) (*Loan, error) {
	p, _, err := m.selectProvider(ctx, token, amount)
	if err != nil {
		m.metrics.errors.WithLabelValues("provider_selection").Inc()
		return nil, err
	}

	loan, err := p.Borrow(ctx, token, amount, receiver)
	if err != nil {
		m.metrics.errors.WithLabelValues("borrow").Inc()
		return nil, err
	}
	m.metrics.providerSelections.WithLabelValues(p.String()).Inc()
	return loan, nil
}

func (m *Manager) Repay(ctx context.Context, loan *Loan) error {
	m.mu.RLock()
	var provider Lender
	for _, p := range m.providers {
		if p.String() == loan.Provider {
			provider = p
			break
		}
	}
	m.mu.RUnlock()

	if provider == nil {
		m.metrics.errors.WithLabelValues("unknown_provider").Inc()
		return fmt.Errorf("loan from unknown provider %q", loan.Provider)
	}
	if err := provider.Repay(ctx, loan); err != nil {
		m.metrics.errors.WithLabelValues("repay").Inc()
		return err
	}
	return nil
}
