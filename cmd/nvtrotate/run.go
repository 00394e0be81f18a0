package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/newthinker/nvtrotate/internal/backtest"
	"github.com/newthinker/nvtrotate/internal/cache"
	"github.com/newthinker/nvtrotate/internal/collector/coingecko"
	"github.com/newthinker/nvtrotate/internal/collector/cryptocompare"
	"github.com/newthinker/nvtrotate/internal/config"
	"github.com/newthinker/nvtrotate/internal/metrics"
	"github.com/newthinker/nvtrotate/internal/pipeline"
	"github.com/newthinker/nvtrotate/internal/storage/archive"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runEnd      string
	runLookback int
	runTop      int
	runSymbols  []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch data for the universe and run the backtest",
	Long: `Fetch market and chain data for every symbol in the universe (served from
the cache when present), merge it, simulate the rotation strategy and write
the merged table, the balance trajectory and a summary to results storage.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runEnd, "end", "", "Backtest end date YYYY-MM-DD")
	runCmd.Flags().IntVar(&runLookback, "lookback", 0, "Days of history before the end date")
	runCmd.Flags().IntVar(&runTop, "top", 0, "Number of assets held after each rebalance")
	runCmd.Flags().StringSliceVar(&runSymbols, "symbols", nil, "Comma-separated universe, e.g. BTC,ETH")

	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overlays explicitly set flags onto cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("end") {
		cfg.Backtest.EndDate = runEnd
	}
	if flags.Changed("lookback") {
		cfg.Backtest.LookbackDays = runLookback
	}
	if flags.Changed("top") {
		cfg.Backtest.TopN = runTop
	}
	if flags.Changed("symbols") {
		cfg.Universe = runSymbols
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	start, end, err := cfg.Range()
	if err != nil {
		return err
	}

	cacheStorage, err := archive.Open(cfg.Cache)
	if err != nil {
		return fmt.Errorf("opening cache storage: %w", err)
	}
	results, err := archive.Open(cfg.Results)
	if err != nil {
		return fmt.Errorf("opening results storage: %w", err)
	}

	var (
		reg         *metrics.Registry
		metricsFile string
	)
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
		metricsFile = cfg.Metrics.File
	}

	store := cache.NewStore(cacheStorage, reg)
	gecko := coingecko.New(coingecko.Config{
		BaseURL:    cfg.Providers.CoinGecko.BaseURL,
		APIKey:     cfg.Providers.CoinGecko.APIKey,
		VsCurrency: cfg.Providers.CoinGecko.VsCurrency,
		Precision:  cfg.Providers.CoinGecko.Precision,
		Timeout:    cfg.Fetch.Timeout,
		Throttle:   cfg.Fetch.Throttle,
		MaxRetries: cfg.Fetch.MaxRetries,
	}, store, reg, log)
	chain := cryptocompare.New(cryptocompare.Config{
		BaseURL:    cfg.Providers.CryptoCompare.BaseURL,
		APIKey:     cfg.Providers.CryptoCompare.APIKey,
		Limit:      cfg.Providers.CryptoCompare.Limit,
		Timeout:    cfg.Fetch.Timeout,
		Throttle:   cfg.Fetch.Throttle,
		MaxRetries: cfg.Fetch.MaxRetries,
	}, store, reg, log)

	runner := pipeline.New(pipeline.Sources{
		Resolver: gecko,
		Market:   gecko,
		Chain:    chain,
	}, pipeline.Options{
		Universe: cfg.Universe,
		Start:    start,
		End:      end,
		Backtest: backtest.Config{
			SeedBalance: decimal.NewFromFloat(cfg.Backtest.SeedBalance),
			TopN:        cfg.Backtest.TopN,
		},
		Results:     results,
		Metrics:     reg,
		MetricsFile: metricsFile,
		Logger:      log,
		Out:         cmd.OutOrStdout(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := runner.Run(ctx)
	if err != nil {
		log.Error("run failed", zap.Error(err))
		return err
	}

	if len(outcome.Skipped) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Skipped %d of %d assets:", len(outcome.Skipped), len(cfg.Universe))
		for _, s := range outcome.Skipped {
			fmt.Fprintf(cmd.OutOrStdout(), " %s(%s)", s.Symbol, s.Stage)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}
