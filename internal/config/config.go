package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/pulkyeet/flasharb/internal/arbitrage"
	"github.com/pulkyeet/flasharb/internal/execution"
	"gopkg.in/yaml.v2"
)

// Config is the flasharb.yaml layout. Addresses and amounts stay strings until
// Validate has seen them so one pass can report every problem.
type Config struct {
	RPC      RPCConfig `yaml:"rpc"`
	Contract string    `yaml:"contract"`
	Admin    string    `yaml:"admin"`
	Executor string    `yaml:"executor"`

	// deploy time whitelist entry, WBNB with 0.004 on BSC
	WrappedNative   string `yaml:"wrapped_native"`
	NativeMinProfit string `yaml:"native_min_profit"`

	Whitelist WhitelistConfig `yaml:"whitelist"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Execution ExecutionConfig `yaml:"execution"`
	Lenders   []LenderConfig  `yaml:"lenders"`
	Pairs     []PairConfig    `yaml:"pairs"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type RPCConfig struct {
	URL               string  `yaml:"url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	TokenCacheSize    int     `yaml:"token_cache_size"`
}

type WhitelistConfig struct {
	DBPath string           `yaml:"db_path"`
	Seed   []ThresholdEntry `yaml:"seed"`
}

type ThresholdEntry struct {
	Token     string `yaml:"token"`
	MinProfit string `yaml:"min_profit"`
}

type OptimizerConfig struct {
	Strategy  string `yaml:"strategy"`
	MaxBorrow string `yaml:"max_borrow"`
	// fee used for raw reserve quotes, e.g. 997/1000
	QuoteFeeNumerator   uint64 `yaml:"quote_fee_numerator"`
	QuoteFeeDenominator uint64 `yaml:"quote_fee_denominator"`
}

type ExecutionConfig struct {
	DriftToleranceBps uint64        `yaml:"drift_tolerance_bps"`
	StepBudget        int           `yaml:"step_budget"`
	AttemptTimeout    time.Duration `yaml:"attempt_timeout"`
}

type LenderConfig struct {
	Name   string `yaml:"name"`
	FeeBps uint64 `yaml:"fee_bps"`
	Vault  string `yaml:"vault"`
	// balances given to the vault on a simulated fork, token -> amount
	Liquidity map[string]string `yaml:"liquidity"`
}

type PairConfig struct {
	Base  string       `yaml:"base"`
	Pools []PoolConfig `yaml:"pools"`
}

type PoolConfig struct {
	Address string `yaml:"address"`
	DEX     string `yaml:"dex"`
	// optional override of the dex fee
	FeeNumerator   uint64 `yaml:"fee_numerator"`
	FeeDenominator uint64 `yaml:"fee_denominator"`
}

type LogConfig struct {
	Debug   bool     `yaml:"debug"`
	Outputs []string `yaml:"outputs"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Default() *Config {
	exec := execution.DefaultConfig()
	return &Config{
		RPC:             RPCConfig{RequestsPerSecond: 10, Burst: 5, TokenCacheSize: 1024},
		WrappedNative:   "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c",
		NativeMinProfit: "4000000000000000",
		Whitelist:       WhitelistConfig{DBPath: "flasharb.db"},
		Optimizer: OptimizerConfig{
			Strategy:            string(arbitrage.StrategySearch),
			QuoteFeeNumerator:   amm.DefaultFee.Numerator,
			QuoteFeeDenominator: amm.DefaultFee.Denominator,
		},
		Execution: ExecutionConfig{
			DriftToleranceBps: exec.DriftToleranceBps,
			StepBudget:        exec.StepBudget,
			AttemptTimeout:    exec.AttemptTimeout,
		},
		Log:     LogConfig{Outputs: []string{"stdout"}},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// Load reads path over the defaults, then applies .env and the environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("RPC_URL"); v != "" {
		c.RPC.URL = v
	}
	if v := os.Getenv("ADMIN_ADDRESS"); v != "" {
		c.Admin = v
	}
	if v := os.Getenv("EXECUTOR_ADDRESS"); v != "" {
		c.Executor = v
	}
}

func (c *Config) Validate() error {
	var errors []string

	checkAddr := func(field, v string, required bool) {
		if v == "" {
			if required {
				errors = append(errors, field+" must be specified")
			}
			return
		}
		if !common.IsHexAddress(v) {
			errors = append(errors, fmt.Sprintf("%s %q is not an address", field, v))
		}
	}
	checkAmount := func(field, v string) {
		if v == "" {
			return
		}
		if _, err := ParseAmount(v); err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", field, err))
		}
	}

	checkAddr("admin", c.Admin, true)
	checkAddr("executor", c.Executor, false)
	checkAddr("contract", c.Contract, false)
	checkAddr("wrapped_native", c.WrappedNative, false)
	checkAmount("native_min_profit", c.NativeMinProfit)

	if c.RPC.RequestsPerSecond < 0 {
		errors = append(errors, "rpc.requests_per_second must not be negative")
	}

	for i, e := range c.Whitelist.Seed {
		checkAddr(fmt.Sprintf("whitelist.seed[%d].token", i), e.Token, true)
		checkAmount(fmt.Sprintf("whitelist.seed[%d].min_profit", i), e.MinProfit)
	}

	if _, err := arbitrage.ParseStrategy(c.Optimizer.Strategy); err != nil {
		errors = append(errors, fmt.Sprintf("optimizer.strategy: %v", err))
	}
	checkAmount("optimizer.max_borrow", c.Optimizer.MaxBorrow)
	if err := c.QuoteFee().Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("optimizer quote fee: %v", err))
	}

	if c.Execution.DriftToleranceBps > 10000 {
		errors = append(errors, "execution.drift_tolerance_bps must be at most 10000")
	}
	if c.Execution.StepBudget < 0 {
		errors = append(errors, "execution.step_budget must not be negative")
	}
	if c.Execution.AttemptTimeout < 0 {
		errors = append(errors, "execution.attempt_timeout must not be negative")
	}

	names := make(map[string]bool)
	for i, l := range c.Lenders {
		if l.Name == "" {
			errors = append(errors, fmt.Sprintf("lenders[%d].name must be specified", i))
		} else if names[l.Name] {
			errors = append(errors, fmt.Sprintf("lenders[%d].name %q is duplicated", i, l.Name))
		}
		names[l.Name] = true
		if l.FeeBps > 10000 {
			errors = append(errors, fmt.Sprintf("lenders[%d].fee_bps must be at most 10000", i))
		}
		checkAddr(fmt.Sprintf("lenders[%d].vault", i), l.Vault, true)
		for token, amount := range l.Liquidity {
			checkAddr(fmt.Sprintf("lenders[%d].liquidity token", i), token, true)
			checkAmount(fmt.Sprintf("lenders[%d].liquidity[%s]", i, token), amount)
		}
	}

	for i, p := range c.Pairs {
		checkAddr(fmt.Sprintf("pairs[%d].base", i), p.Base, true)
		if len(p.Pools) < 2 {
			errors = append(errors, fmt.Sprintf("pairs[%d] needs at least two pools", i))
		}
		for j, pool := range p.Pools {
			checkAddr(fmt.Sprintf("pairs[%d].pools[%d].address", i, j), pool.Address, true)
			if pool.DEX == "" {
				errors = append(errors, fmt.Sprintf("pairs[%d].pools[%d].dex must be specified", i, j))
			}
			if pool.FeeNumerator != 0 || pool.FeeDenominator != 0 {
				fee := amm.Fee{Numerator: pool.FeeNumerator, Denominator: pool.FeeDenominator}
				if err := fee.Validate(); err != nil {
					errors = append(errors, fmt.Sprintf("pairs[%d].pools[%d] fee: %v", i, j, err))
				}
			}
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errors = append(errors, "metrics.addr must be specified when metrics are enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// ParseAmount reads a raw token amount in decimal.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

func (c *Config) QuoteFee() amm.Fee {
	return amm.Fee{Numerator: c.Optimizer.QuoteFeeNumerator, Denominator: c.Optimizer.QuoteFeeDenominator}
}

// CoordinatorConfig converts the execution section, Executor included.
func (c *Config) CoordinatorConfig() execution.Config {
	return execution.Config{
		Executor:          common.HexToAddress(c.Executor),
		DriftToleranceBps: c.Execution.DriftToleranceBps,
		StepBudget:        c.Execution.StepBudget,
		AttemptTimeout:    c.Execution.AttemptTimeout,
	}
}

// NewOptimizer builds the optimizer described by the optimizer section.
func (c *Config) NewOptimizer() (*arbitrage.Optimizer, error) {
	strategy, err := arbitrage.ParseStrategy(c.Optimizer.Strategy)
	if err != nil {
		return nil, err
	}
	opt := arbitrage.NewOptimizer(strategy)
	if c.Optimizer.MaxBorrow != "" {
		limit, err := ParseAmount(c.Optimizer.MaxBorrow)
		if err != nil {
			return nil, err
		}
		opt = opt.WithMaxBorrow(limit)
	}
	return opt, nil
}

// Thresholds lists whitelist defaults: the wrapped native token then the seed list.
func (c *Config) Thresholds() []ThresholdEntry {
	var out []ThresholdEntry
	if c.WrappedNative != "" {
		out = append(out, ThresholdEntry{Token: c.WrappedNative, MinProfit: c.NativeMinProfit})
	}
	return append(out, c.Whitelist.Seed...)
}
