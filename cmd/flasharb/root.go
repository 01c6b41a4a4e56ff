package main

import (
	"github.com/pulkyeet/flasharb/internal/config"
	"github.com/pulkyeet/flasharb/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgFile string
	debug   bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "flasharb",
		Short: "Flash loan arbitrage between two constant product pools",
		Long: `flasharb plans and simulates flash loan funded arbitrage between two
Uniswap V2 style pools that trade the same pair. Profits are only ever taken
in whitelisted base tokens.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: defaults plus environment)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newWhitelistCmd(a),
		newProfitCmd(a),
		newExecuteCmd(a),
		newScanCmd(a),
		newBatchCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.InitLogger(a.debug || cfg.Log.Debug, cfg.Log.Outputs...)
	return nil
}
