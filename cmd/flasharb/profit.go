package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/config"
	"github.com/pulkyeet/flasharb/internal/contract"
	"github.com/pulkyeet/flasharb/internal/engine"
	"github.com/pulkyeet/flasharb/internal/eth"
	"github.com/pulkyeet/flasharb/internal/execution"
	"github.com/pulkyeet/flasharb/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newProfitCmd(a *app) *cobra.Command {
	var (
		remote bool
		block  uint64
	)

	cmd := &cobra.Command{
		Use:   "profit <reserveA-in> <reserveA-out> <reserveB-in> <reserveB-out> <base>",
		Short: "Best borrow amount and profit for two pools' reserves",
		Long: `Reserves are raw units; for each pool "in" is the base token reserve and
"out" the paired token reserve. Direction true means pool A is traded first.`,
		Args: cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reserves [4]*uint256.Int
			for i := range reserves {
				v, err := config.ParseAmount(args[i])
				if err != nil {
					return err
				}
				reserves[i] = v
			}
			base, err := eth.ResolveToken(args[4])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if remote {
				if !common.IsHexAddress(a.cfg.Contract) {
					return fmt.Errorf("--remote needs a contract address in the config")
				}
				client, err := a.dial()
				if err != nil {
					return err
				}
				defer client.Close()

				var blockNum *big.Int
				if block != 0 {
					blockNum = new(big.Int).SetUint64(block)
				}
				r := contract.NewRemote(client, common.HexToAddress(a.cfg.Contract))
				borrow, profit, err := r.GetProfit(cmd.Context(), blockNum, reserves[0], reserves[1], reserves[2], reserves[3], base.Address)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "borrow: %s %s\nprofit: %s %s\n",
					eth.FormatAmount(borrow, base.Decimals), base.Symbol,
					eth.FormatAmount(profit, base.Decimals), base.Symbol)
				return nil
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}
			reg, err := a.newRegistry(db)
			if err != nil {
				return err
			}
			e, err := a.newEngine(reg, nil, nil, metrics.Nop())
			if err != nil {
				return err
			}
			quote, err := e.GetProfit(reserves[0], reserves[1], reserves[2], reserves[3], base.Address)
			if engine.IsExpected(err) {
				a.logger.Debug("no profit", zap.Error(err))
				fmt.Fprintf(out, "borrow: 0\nprofit: 0\nreason: %s\n", execution.Reason(err))
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "borrow: %s %s\nprofit: %s %s\ndirection: %t (%s)\n",
				eth.FormatAmount(quote.BorrowAmount, base.Decimals), base.Symbol,
				eth.FormatAmount(quote.Profit, base.Decimals), base.Symbol,
				quote.Direction.Bool(), quote.Direction)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "ask the deployed contract instead of planning locally")
	cmd.Flags().Uint64Var(&block, "block", 0, "block for --remote (default: latest)")
	return cmd
}
