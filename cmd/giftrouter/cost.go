package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/giftrouter/pkg/tracker"
)

func newCostCmd(configPath *string) *cobra.Command {
	var (
		daily   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Project the monthly cost of the tier routing against a single-provider baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			est := cfg.Estimate
			if daily > 0 {
				est.DailyRequests = daily
			}

			e := tracker.EstimateMonthly(est, cfg.Router.Tiers, cfg.Pricing())
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(e)
			}

			fmt.Printf("%s requests/day, %s requests/month\n\n",
				humanize.Comma(int64(e.DailyRequests)), humanize.Comma(int64(e.MonthlyRequests)))

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIER\tPROVIDER\tREQUESTS\tCOST")
			for _, t := range e.Tiers {
				fmt.Fprintf(w, "%s\t%s\t%s\t$%.4f\n", t.Tier, t.Provider, humanize.Commaf(t.Requests), t.Cost)
			}
			fmt.Fprintf(w, "TOTAL\t\t\t$%.4f\n", e.Total)
			fmt.Fprintf(w, "BASELINE\t%s\t\t$%.4f\n", e.BaselineName, e.Baseline)
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("\nSavings: $%.4f/month (%.1f%%)\n", e.Savings, e.SavingsPercent)
			return nil
		},
	}

	cmd.Flags().IntVar(&daily, "daily", 0, "override the daily request volume")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the estimate as JSON")
	return cmd
}
