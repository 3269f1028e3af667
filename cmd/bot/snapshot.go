package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"CryptoSentinel/internal/collector"
	"CryptoSentinel/internal/model"

	"github.com/spf13/cobra"
)

var snapshotSymbols []string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Backfill candles once and print market snapshots as JSON",
	Long: `Snapshot fetches the readiness window for every resolution, builds one
snapshot per symbol and writes them to stdout. Symbols that are not ready
are reported on stderr and omitted.

Example:
  sentinel snapshot --symbols BTC,ETH`,
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().StringSliceVarP(&snapshotSymbols, "symbols", "s", nil, "symbols to snapshot (default from config)")
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if len(snapshotSymbols) > 0 {
		cfg.Trading.Symbols = cfg.Trading.Symbols[:0]
		for _, s := range snapshotSymbols {
			cfg.Trading.Symbols = append(cfg.Trading.Symbols, strings.ToUpper(strings.TrimSpace(s)))
		}
	}

	ctx := cmd.Context()
	fetcher := newFetcher(cfg)
	store := collector.NewCandleStore()
	for _, p := range newPollers(cfg, fetcher, store, log) {
		if p.Poll(ctx) {
			return fmt.Errorf("%s backfill: %w", p.Resolution, collector.ErrRateLimited)
		}
	}

	col := collector.NewCollector(fetcher, store, collector.NewPriceCache(), cfg.Trading.Symbols, log)
	col.PriceMaxAge = cfg.PriceMaxAge()
	snaps, err := buildSnapshots(ctx, col)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snaps)
}

func buildSnapshots(ctx context.Context, col *collector.Collector) (map[string]model.MarketSnapshot, error) {
	prices := col.LatestPrices(ctx)
	if len(prices) == 0 {
		return nil, collector.ErrDataUnavailable
	}
	out := make(map[string]model.MarketSnapshot, len(prices))
	for _, sym := range col.Symbols {
		price, ok := prices[sym]
		if !ok {
			fmt.Fprintf(os.Stderr, "%s: no price\n", sym)
			continue
		}
		snap, err := col.BuildSnapshot(sym, price)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", sym, err)
			continue
		}
		out[sym] = snap
	}
	return out, nil
}
