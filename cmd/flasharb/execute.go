package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pulkyeet/flasharb/internal/arbitrage"
	"github.com/pulkyeet/flasharb/internal/config"
	"github.com/pulkyeet/flasharb/internal/contract"
	"github.com/pulkyeet/flasharb/internal/engine"
	"github.com/pulkyeet/flasharb/internal/eth"
	"github.com/pulkyeet/flasharb/internal/metrics"
	"github.com/pulkyeet/flasharb/internal/simulator"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// parseDirection accepts the contract's bool or a readable form.
func parseDirection(s string) (arbitrage.Direction, error) {
	switch strings.ToLower(s) {
	case "a-to-b", "a->b", "ab":
		return arbitrage.AToB, nil
	case "b-to-a", "b->a", "ba":
		return arbitrage.BToA, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return 0, fmt.Errorf("direction %q: want a-to-b, b-to-a or a bool", s)
	}
	return arbitrage.DirectionFromBool(b), nil
}

// parseTokenAmount reads raw units, or whole tokens when human is set.
func parseTokenAmount(s string, token eth.TokenInfo, human bool) (*uint256.Int, error) {
	if human {
		return eth.ParseAmount(s, token.Decimals)
	}
	return config.ParseAmount(s)
}

type executeFlags struct {
	calldata     string
	poolA, poolB string
	dexA, dexB   string
	paired       string
	direction    string
	initiator    string
	base         string
	amount       string
	human        bool
}

// request builds the call either from raw executeArbitrage calldata or from
// the individual flags. Pools left out are derived from the dex factories.
func (f *executeFlags) request() (*engine.ExecuteRequest, error) {
	if f.calldata != "" {
		raw := f.calldata
		if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
			raw = "0x" + raw
		}
		data, err := hexutil.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("calldata: %w", err)
		}
		if !contract.IsExecuteCall(data) {
			return nil, fmt.Errorf("calldata is not an executeArbitrage call")
		}
		return contract.DecodeExecuteCall(data)
	}

	dir, err := parseDirection(f.direction)
	if err != nil {
		return nil, err
	}
	base, err := eth.ResolveToken(f.base)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(f.initiator) {
		return nil, fmt.Errorf("initiator %q is not an address", f.initiator)
	}

	req := &engine.ExecuteRequest{
		Direction: dir,
		Initiator: common.HexToAddress(f.initiator),
		BaseToken: base.Address,
	}
	if req.PoolA, err = f.pool(f.poolA, f.dexA, base); err != nil {
		return nil, err
	}
	if req.PoolB, err = f.pool(f.poolB, f.dexB, base); err != nil {
		return nil, err
	}
	if req.PoolA == req.PoolB {
		return nil, fmt.Errorf("pool A and pool B are both %s", req.PoolA.Hex())
	}
	if f.amount != "" {
		if req.BorrowAmount, err = parseTokenAmount(f.amount, base, f.human); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (f *executeFlags) pool(addr, dexName string, base eth.TokenInfo) (common.Address, error) {
	if addr != "" {
		if !common.IsHexAddress(addr) {
			return common.Address{}, fmt.Errorf("pool %q is not an address", addr)
		}
		return common.HexToAddress(addr), nil
	}
	if f.paired == "" {
		return common.Address{}, fmt.Errorf("give --pool-a and --pool-b, or --paired to derive them")
	}
	paired, err := eth.ResolveToken(f.paired)
	if err != nil {
		return common.Address{}, err
	}
	dex, ok := eth.DEXByName(dexName)
	if !ok {
		return common.Address{}, fmt.Errorf("unknown dex %q", dexName)
	}
	return eth.ComputePairAddress(dex, base.Address, paired.Address), nil
}

func newExecuteCmd(a *app) *cobra.Command {
	var (
		f             executeFlags
		block         uint64
		printCalldata bool
	)

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Dry run one arbitrage against live reserves on an in-memory fork",
		Long: `The call is given either as raw executeArbitrage calldata (--calldata, any
of the contract's call shapes) or as flags. Calldata without a borrow amount
lets the optimizer choose one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			req, err := f.request()
			if err != nil {
				return err
			}
			if printCalldata {
				data, err := contract.PackExecuteCall(req)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "0x%s\n", hex.EncodeToString(data))
				return nil
			}
			baseToken, err := eth.ResolveToken(req.BaseToken.Hex())
			if err != nil {
				return err
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
			var cache eth.ReserveCache
			if db != nil {
				defer db.Close()
				cache = db
			}
			loader, err := eth.NewPoolLoader(client, a.cfg.RPC.TokenCacheSize, cache, a.logger)
			if err != nil {
				return err
			}

			blockNum, err := latestBlock(ctx, client, block)
			if err != nil {
				return err
			}

			fork := simulator.NewStateFork(blockNum)
			for _, spec := range []eth.PoolSpec{
				{Address: req.PoolA, DEX: f.dexA},
				{Address: req.PoolB, DEX: f.dexB},
			} {
				p, err := loader.LoadPool(ctx, spec, blockNum)
				if err != nil {
					return err
				}
				if err := fork.AddPool(p); err != nil {
					return err
				}
				fmt.Fprintf(out, "pool %s\n", describePool(p, baseToken))
			}

			promReg := prometheus.NewRegistry()
			m := metrics.New(promReg)
			lenders, err := a.newLenders(fork, promReg)
			if err != nil {
				return err
			}
			reg, err := a.newRegistry(db)
			if err != nil {
				return err
			}
			e, err := a.newEngine(reg, fork, lenders, m)
			if err != nil {
				return err
			}

			res, err := e.ExecuteArbitrage(ctx, *req)
			if res == nil {
				if engine.IsExpected(err) {
					fmt.Fprintf(out, "no trade: %v\n", err)
					return nil
				}
				return err
			}

			fmt.Fprintf(out, "block %d: %s\n", blockNum, res.Plan)
			fmt.Fprintf(out, "states: %v\n", res.Transitions)
			if !res.Success() {
				a.logger.Info("dry run aborted", zap.Stringer("failed_at", res.FailedAt), zap.Error(res.Err))
				fmt.Fprintf(out, "aborted at %s: %v\n", res.FailedAt, res.Err)
				return nil
			}
			fmt.Fprintf(out, "lender: %s fee %s\nprofit: %s %s\n",
				res.Loan.Provider, eth.FormatAmount(res.Loan.Fee, baseToken.Decimals),
				eth.FormatAmount(res.RealizedProfit, baseToken.Decimals), baseToken.Symbol)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.calldata, "calldata", "", "hex executeArbitrage calldata, replaces the call flags")
	fl.StringVar(&f.poolA, "pool-a", "", "first pool address (default: derived from --paired and --dex-a)")
	fl.StringVar(&f.poolB, "pool-b", "", "second pool address (default: derived from --paired and --dex-b)")
	fl.StringVar(&f.dexA, "dex-a", "pancakeswap", "dex of pool A, sets its fee")
	fl.StringVar(&f.dexB, "dex-b", "pancakeswap", "dex of pool B, sets its fee")
	fl.StringVar(&f.paired, "paired", "", "paired token symbol or address, used to derive pool addresses")
	fl.StringVar(&f.direction, "direction", "true", "true or a-to-b trades pool A first")
	fl.StringVar(&f.initiator, "initiator", "", "address that receives the profit")
	fl.StringVar(&f.base, "base", "WBNB", "base token symbol or address")
	fl.StringVar(&f.amount, "amount", "", "borrow amount in raw units (default: optimize)")
	fl.BoolVar(&f.human, "human", false, "--amount is in whole tokens, e.g. 1.5")
	fl.Uint64Var(&block, "block", 0, "block to read reserves at (default: latest)")
	fl.BoolVar(&printCalldata, "print-calldata", false, "print the call as executeArbitrage calldata and exit")
	return cmd
}
