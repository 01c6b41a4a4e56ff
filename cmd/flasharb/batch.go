package main

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pulkyeet/flasharb/internal/metrics"
	"github.com/pulkyeet/flasharb/internal/scenario"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBatchCmd(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "batch <file.parquet>",
		Short: "Quote every reserve snapshot in a parquet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := scenario.ReadFile(args[0])
			if err != nil {
				return err
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
			e, err := a.newEngine(reg, nil, nil, metrics.New(prometheus.NewRegistry()))
			if err != nil {
				return err
			}

			outcomes, err := scenario.Evaluate(e, rows)
			if err != nil {
				return err
			}
			a.logger.Info("evaluated scenarios", zap.String("file", args[0]), zap.Int("rows", len(outcomes)))

			out := cmd.OutOrStdout()
			if verbose {
				for _, o := range outcomes {
					if o.Quote == nil {
						fmt.Fprintf(out, "block %d: %s\n", o.Row.Block, o.Reason)
						continue
					}
					fmt.Fprintf(out, "block %d: borrow %s profit %s direction %t\n",
						o.Row.Block, o.Quote.BorrowAmount.Dec(), o.Quote.Profit.Dec(), o.Quote.Direction.Bool())
				}
			}

			summary := scenario.Summary(outcomes)
			reasons := make([]string, 0, len(summary))
			for r := range summary {
				reasons = append(reasons, r)
			}
			sort.Strings(reasons)
			for _, r := range reasons {
				fmt.Fprintf(out, "%s: %d\n", r, summary[r])
			}
			return scenario.Unexpected(outcomes)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every row")
	return cmd
}
