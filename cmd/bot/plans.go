package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"CryptoSentinel/internal/model"
	"CryptoSentinel/internal/recorder"

	"github.com/spf13/cobra"
)

var plansHistory int

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Print active exit plans",
	Long: `Plans lists the active exit plan for every open position. With
--history N it lists the N most recent plan versions of any status instead.`,
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

		var plans []model.ExitPlan
		if plansHistory > 0 {
			plans, err = rec.ExitPlanHistory(plansHistory)
		} else {
			plans, err = rec.ActiveExitPlans()
		}
		if err != nil {
			return fmt.Errorf("load exit plans: %w", err)
		}
		if len(plans) == 0 {
			fmt.Println("No exit plans.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tSTATUS\tENTRY\tTARGET\tSTOP\tINVALIDATION\tTRIGGER\tCREATED")
		for _, p := range plans {
			fmt.Fprintf(w, "%s\t%s\t%.4f\t%s\t%s\t%s\t%s\t%s\n",
				p.Symbol, p.Status, p.EntryPrice,
				level(p.ProfitTarget), level(p.StopLoss), level(p.InvalidationPrice),
				orDash(string(p.TriggerType)), p.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(plansCmd)
	plansCmd.Flags().IntVar(&plansHistory, "history", 0, "show the N most recent plan versions")
}

func level(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *p)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
