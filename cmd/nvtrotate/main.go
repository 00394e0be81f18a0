package main

import (
	"fmt"
	"os"

	"github.com/newthinker/nvtrotate/internal/config"
	"github.com/newthinker/nvtrotate/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "nvtrotate",
	Short: "NVT rotation backtester",
	Long: `nvtrotate backtests a daily-rebalanced crypto rotation strategy that holds
the top-K assets ranked by NVT (market cap over on-chain transaction count).
Market data comes from CoinGecko, chain activity from CryptoCompare.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command shares.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(logger.Options{Development: debug, Level: cfg.Log.Level})
	if err != nil {
		return nil, nil, err
	}
	if cfgFile == "" {
		log.Debug("no config file specified, using defaults")
	}
	return cfg, log, nil
}
