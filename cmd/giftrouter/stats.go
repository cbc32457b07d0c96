package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pario-ai/giftrouter/pkg/ledger"
)

func newStatsCmd(configPath *string) *cobra.Command {
	var (
		since  string
		recent int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show provider usage recorded in the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !cfg.Ledger.Enabled {
				return errNoLedger
			}

			l, err := ledger.New(cfg.Ledger.DBPath, zerolog.Nop())
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			ctx := cmd.Context()

			if recent > 0 {
				attempts, err := l.Recent(ctx, recent)
				if err != nil {
					return err
				}
				if len(attempts) == 0 {
					fmt.Println("No attempts recorded.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "WHEN\tPROVIDER\tTIER\tOK\tERROR\tFALLBACK\tLATENCY\tCOST")
				for _, a := range attempts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%t\t%s\t$%.6f\n",
						humanize.Time(a.CreatedAt), a.Provider, a.Tier, a.Success, a.ErrorKind, a.Fallback, a.Latency, a.CostUSD)
				}
				return w.Flush()
			}

			var sinceTime time.Time
			if since != "" {
				sinceTime, err = time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
			}

			summaries, err := l.Summary(ctx, sinceTime)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			var total float64
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tATTEMPTS\tSUCCESSES\tINPUT\tOUTPUT\tCOST")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t$%.6f\n",
					s.Provider, s.Attempts, s.Successes, humanize.Comma(s.InputTokens), humanize.Comma(s.OutputTokens), s.Cost)
				total += s.Cost
			}
			fmt.Fprintf(w, "TOTAL\t\t\t\t\t$%.6f\n", total)
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only count attempts on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&recent, "recent", 0, "list the N most recent attempts instead of the summary")
	return cmd
}
