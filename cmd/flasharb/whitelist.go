package main

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pulkyeet/flasharb/internal/contract"
	"github.com/pulkyeet/flasharb/internal/eth"
	"github.com/spf13/cobra"
)

func newWhitelistCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage base tokens that arbitrage may borrow and profit in",
	}

	var (
		caller        string
		human         bool
		printCalldata bool
		stats         bool
	)
	add := &cobra.Command{
		Use:   "add <token> <min-profit>",
		Short: "Whitelist a base token with a minimum profit in raw units",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := eth.ResolveToken(args[0])
			if err != nil {
				return err
			}
			minProfit, err := parseTokenAmount(args[1], token, human)
			if err != nil {
				return err
			}
			if caller == "" {
				caller = a.cfg.Admin
			}
			if !common.IsHexAddress(caller) {
				return fmt.Errorf("caller %q is not an address", caller)
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
			if err := reg.AddBaseToken(common.HexToAddress(caller), token.Address, minProfit); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "whitelisted %s (%s) min profit %s\n",
				token.Symbol, token.Address.Hex(), eth.FormatAmount(minProfit, token.Decimals))
			if printCalldata {
				data, err := contract.PackAddBaseToken(token.Address, minProfit)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "calldata: 0x%s\n", hex.EncodeToString(data))
			}
			return nil
		},
	}
	add.Flags().StringVar(&caller, "caller", "", "address sending the call (default: configured admin)")
	add.Flags().BoolVar(&human, "human", false, "min-profit is in whole tokens, e.g. 0.5")
	add.Flags().BoolVar(&printCalldata, "print-calldata", false, "also print the matching addBaseToken calldata")

	list := &cobra.Command{
		Use:   "list",
		Short: "Show whitelisted base tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			out := cmd.OutOrStdout()
			for _, e := range reg.Entries() {
				info, _ := eth.ResolveToken(e.Token.Hex())
				fmt.Fprintf(out, "%-6s %s min profit %s\n",
					info.Symbol, e.Token.Hex(), eth.FormatAmount(e.MinimumProfit, info.Decimals))
			}
			if stats && db != nil {
				counts, err := db.GetStats()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "stored: %d base tokens, %d reserve entries\n",
					counts["base_tokens"], counts["reserve_entries"])
			}
			return nil
		},
	}
	list.Flags().BoolVar(&stats, "stats", false, "also print database row counts")

	cmd.AddCommand(add, list)
	return cmd
}
