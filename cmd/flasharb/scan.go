package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pulkyeet/flasharb/internal/arbitrage"
	"github.com/pulkyeet/flasharb/internal/eth"
	"github.com/pulkyeet/flasharb/internal/metrics"
	"github.com/pulkyeet/flasharb/internal/scenario"
	"github.com/pulkyeet/flasharb/internal/storage"
	"github.com/pulkyeet/flasharb/internal/whitelist"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type scanner struct {
	a      *app
	loader *eth.PoolLoader
	opt    *arbitrage.Optimizer
	reg    *whitelist.Registry
	db     *storage.DB
	m      *metrics.Metrics
	record bool

	// reserve snapshots for --export
	rows []scenario.Row
}

func newScanCmd(a *app) *cobra.Command {
	var (
		interval time.Duration
		once     bool
		record   bool
		export   string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Poll configured pairs every block interval and report opportunities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(a.cfg.Pairs) == 0 {
				return fmt.Errorf("no pairs configured")
			}

			client, err := a.dial()
			if err != nil {
				return err
			}
			defer client.Close()

			db, err := a.openDB()
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
				if stats, err := db.GetStats(); err == nil {
					a.logger.Debug("database opened", zap.String("path", a.cfg.Whitelist.DBPath),
						zap.Int64("base_tokens", stats["base_tokens"]), zap.Int64("reserve_entries", stats["reserve_entries"]))
				} else {
					a.logger.Warn("failed to read database stats", zap.Error(err))
				}
			}

			// reserves of the newest block are read once per tick, no cache needed
			loader, err := eth.NewPoolLoader(client, a.cfg.RPC.TokenCacheSize, nil, a.logger)
			if err != nil {
				return err
			}
			reg, err := a.newRegistry(db)
			if err != nil {
				return err
			}
			opt, err := a.cfg.NewOptimizer()
			if err != nil {
				return err
			}

			promReg := prometheus.NewRegistry()
			s := &scanner{a: a, loader: loader, opt: opt, reg: reg, db: db, m: metrics.New(promReg), record: record}

			if a.cfg.Metrics.Enabled {
				go func() {
					if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, promReg, a.logger); err != nil {
						a.logger.Error("metrics server stopped", zap.Error(err))
					}
				}()
			}

			err = s.run(ctx, client, interval, once)
			if export != "" {
				if werr := scenario.WriteFile(export, s.rows); werr != nil {
					return werr
				}
				a.logger.Info("exported snapshots", zap.String("file", export), zap.Int("rows", len(s.rows)))
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "poll interval")
	cmd.Flags().BoolVar(&once, "once", false, "scan a single block and exit")
	cmd.Flags().BoolVar(&record, "record", false, "store every reserve snapshot in the database")
	cmd.Flags().StringVar(&export, "export", "", "write reserve snapshots to this parquet file on exit")
	return cmd
}

func (s *scanner) run(ctx context.Context, client *eth.Client, interval time.Duration, once bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last uint64
	for {
		block, err := client.BlockNumber(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.a.logger.Warn("failed to read block number", zap.Error(err))
		} else if block != last {
			last = block
			s.scanBlock(ctx, block)
		}

		if once {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *scanner) scanBlock(ctx context.Context, block uint64) {
	for _, pc := range s.a.cfg.Pairs {
		base := common.HexToAddress(pc.Base)
		log := s.a.logger.With(zap.Uint64("block", block), zap.String("base", base.Hex()))

		if !s.reg.IsApproved(base) {
			s.m.Plans.WithLabelValues("not_whitelisted").Inc()
			log.Debug("skipping pair with unlisted base")
			continue
		}

		pair, err := s.loader.LoadPair(ctx, base, poolSpecs(pc), block)
		if err != nil {
			log.Warn("failed to load pair", zap.Error(err))
			continue
		}
		s.snapshot(pair, block, log)
		if baseInfo, err := eth.ResolveToken(base.Hex()); err == nil {
			for _, p := range pair.Pools {
				log.Debug("pool", zap.String("dex", p.DEX), zap.String("state", describePool(p, baseInfo)))
			}
		}

		plans, err := arbitrage.DetectOpportunities(pair, s.opt)
		if err != nil {
			s.m.Plans.WithLabelValues("error").Inc()
			log.Warn("detection failed", zap.Error(err))
			continue
		}
		if len(plans) == 0 {
			s.m.Plans.WithLabelValues("no_opportunity").Inc()
			continue
		}

		threshold := s.reg.MinimumProfit(base)
		for _, plan := range plans {
			if threshold != nil && plan.ExpectedProfit.Lt(threshold) {
				s.m.Plans.WithLabelValues("below_minimum_profit").Inc()
				log.Debug("opportunity below minimum profit", zap.Stringer("plan", plan))
				continue
			}
			s.m.Plans.WithLabelValues("profitable").Inc()
			log.Info("opportunity",
				zap.String("pool_a", plan.PoolA.Hex()),
				zap.String("pool_b", plan.PoolB.Hex()),
				zap.Bool("a_first", plan.Direction.Bool()),
				zap.String("borrow", plan.BorrowAmount.Dec()),
				zap.String("profit", plan.ExpectedProfit.Dec()),
			)
		}
	}
}

// snapshot keeps the pair's reserves for --record and --export.
func (s *scanner) snapshot(pair *arbitrage.PairPools, block uint64, log *zap.Logger) {
	if s.record && s.db != nil {
		if err := s.db.BatchSetReserves(pair.Pools); err != nil {
			log.Warn("failed to record reserves", zap.Error(err))
		}
	}
	for i := 0; i < len(pair.Pools); i++ {
		for j := i + 1; j < len(pair.Pools); j++ {
			row, err := scenario.RowFromPools(pair.Pools[i], pair.Pools[j], pair.Base, block)
			if err != nil {
				continue
			}
			s.rows = append(s.rows, row)
		}
	}
}
