package main

import (
	"fmt"
	"os"

	"CryptoSentinel/internal/collector"
	"CryptoSentinel/internal/config"
	"CryptoSentinel/internal/logger"
	"CryptoSentinel/internal/model"
	"CryptoSentinel/internal/recorder"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Simulated crypto trading bot with exit-plan enforcement",
	Long: `Sentinel polls multi-resolution candles, builds indicator snapshots,
asks an external decision service what to do, and simulates leveraged
long positions on a paper ledger. Exit plans committed at entry are
enforced every cycle before any new decision is requested.

Commands:
  run       start the trading loop
  snapshot  backfill once and print market snapshots as JSON
  stats     print performance stats from the SQLite journal
  plans     print active exit plans`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	def := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		def = v
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", def, "path to YAML config")
}

// loadConfig loads and validates the config and builds the root logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("config validation: %w", err)
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Pretty), nil
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	if cfg.MarketData.Mock {
		return &collector.MockFetcher{Price: 100}
	}
	return collector.NewBinanceFetcher(cfg.MarketData.BaseURL, cfg.MarketData.QuoteAsset, cfg.Proxy, cfg.FetchTimeout())
}

func newPollers(cfg *config.Config, fetcher collector.Fetcher, store *collector.CandleStore, log zerolog.Logger) []*collector.Poller {
	pollers := make([]*collector.Poller, 0, len(model.AllResolutions))
	for _, res := range model.AllResolutions {
		p := collector.NewPoller(res, cfg.Trading.Symbols, fetcher, store, log)
		p.Timeout = cfg.FetchTimeout()
		pollers = append(pollers, p)
	}
	return pollers
}

func openRecorder(cfg *config.Config, log zerolog.Logger) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return sr
}
