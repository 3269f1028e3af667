package main

import (
	"encoding/json"
	"fmt"
	"os"

	"CryptoSentinel/internal/recorder"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print performance stats from the SQLite journal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer rec.Close()

		stats, err := rec.PerformanceStats()
		if err != nil {
			return fmt.Errorf("performance stats: %w", err)
		}
		if statsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		fmt.Printf("Closed trades: %d\n", stats.TotalTrades)
		fmt.Printf("  Wins / losses: %d / %d\n", stats.WinningTrades, stats.LosingTrades)
		fmt.Printf("  Win rate: %.1f%%\n", stats.WinRate)
		fmt.Printf("  Total PnL: $%.2f\n", stats.TotalPnL)
		fmt.Printf("  Avg PnL: $%.2f\n", stats.AvgPnL)
		fmt.Printf("  Best / worst: $%.2f / $%.2f\n", stats.MaxProfit, stats.MaxLoss)
		fmt.Printf("Portfolio: $%.2f (cash $%.2f, ROI %.2f%%)\n", stats.CurrentValue, stats.CurrentCash, stats.CurrentROI)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print as JSON")
}
