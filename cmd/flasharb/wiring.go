package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/pulkyeet/flasharb/internal/config"
	"github.com/pulkyeet/flasharb/internal/engine"
	"github.com/pulkyeet/flasharb/internal/eth"
	"github.com/pulkyeet/flasharb/internal/execution"
	"github.com/pulkyeet/flasharb/internal/flashloan"
	"github.com/pulkyeet/flasharb/internal/metrics"
	"github.com/pulkyeet/flasharb/internal/simulator"
	"github.com/pulkyeet/flasharb/internal/storage"
	"github.com/pulkyeet/flasharb/internal/whitelist"
)

// openDB opens the sqlite file; an empty path means no persistence and a nil DB.
func (a *app) openDB() (*storage.DB, error) {
	if a.cfg.Whitelist.DBPath == "" {
		return nil, nil
	}
	db, err := storage.Open(a.cfg.Whitelist.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.cfg.Whitelist.DBPath, err)
	}
	return db, nil
}

// newRegistry restores the persisted whitelist and seeds configured defaults.
func (a *app) newRegistry(db *storage.DB) (*whitelist.Registry, error) {
	var store whitelist.Store
	if db != nil {
		store = db.Whitelist()
	}
	reg, err := whitelist.NewRegistry(common.HexToAddress(a.cfg.Admin), store, a.logger)
	if err != nil {
		return nil, err
	}

	for _, t := range a.cfg.Thresholds() {
		threshold := new(uint256.Int)
		if t.MinProfit != "" {
			if threshold, err = config.ParseAmount(t.MinProfit); err != nil {
				return nil, err
			}
		}
		if err := reg.Seed(common.HexToAddress(t.Token), threshold); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// newEngine builds a planning engine; env and lender may be nil for quote only use.
func (a *app) newEngine(reg *whitelist.Registry, env execution.Environment, lender flashloan.Lender, m *metrics.Metrics) (*engine.Engine, error) {
	opt, err := a.cfg.NewOptimizer()
	if err != nil {
		return nil, err
	}

	opts := engine.Options{
		Registry:  reg,
		Optimizer: opt,
		Env:       env,
		Lender:    lender,
		QuoteFee:  a.cfg.QuoteFee(),
		Logger:    a.logger,
		Metrics:   m,
	}
	if env != nil && lender != nil {
		execCfg := a.cfg.CoordinatorConfig()
		if execCfg.Executor == (common.Address{}) {
			if a.cfg.Contract == "" {
				return nil, fmt.Errorf("executor or contract address must be configured to execute")
			}
			execCfg.Executor = common.HexToAddress(a.cfg.Contract)
		}
		opts.Coordinator = execution.NewCoordinator(env, lender, reg, execCfg, a.logger, m)
	}
	return engine.New(opts)
}

func (a *app) dial() (*eth.Client, error) {
	return eth.Dial(a.cfg.RPC.URL, a.cfg.RPC.RequestsPerSecond, a.cfg.RPC.Burst)
}

// newLenders funds each configured vault on fork and registers it with a manager.
func (a *app) newLenders(fork *simulator.StateFork, reg prometheus.Registerer) (*flashloan.Manager, error) {
	manager := flashloan.NewManager(a.logger, reg)
	for _, l := range a.cfg.Lenders {
		vault := common.HexToAddress(l.Vault)
		for token, amount := range l.Liquidity {
			v, err := config.ParseAmount(amount)
			if err != nil {
				return nil, err
			}
			fork.SetBalance(common.HexToAddress(token), vault, v)
		}
		manager.AddProvider(flashloan.NewVaultLender(l.Name, vault, l.FeeBps, fork, a.logger))
	}
	return manager, nil
}

func poolSpecs(pair config.PairConfig) []eth.PoolSpec {
	specs := make([]eth.PoolSpec, 0, len(pair.Pools))
	for _, p := range pair.Pools {
		specs = append(specs, eth.PoolSpec{
			Address: common.HexToAddress(p.Address),
			DEX:     p.DEX,
			Fee:     amm.Fee{Numerator: p.FeeNumerator, Denominator: p.FeeDenominator},
		})
	}
	return specs
}

// latestBlock returns block unless it is zero, then asks the node.
func latestBlock(ctx context.Context, client *eth.Client, block uint64) (uint64, error) {
	if block != 0 {
		return block, nil
	}
	return client.BlockNumber(ctx)
}
