package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/giftrouter/pkg/mcp"
	"github.com/pario-ai/giftrouter/pkg/tracker"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the recommendation tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			// stdout carries the protocol; logs go to stderr.
			log := newLogger(cfg.Log, os.Stderr)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := newStack(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			opts := mcp.Options{
				Classifier: st.classifier,
				Estimate: func() tracker.Estimate {
					return tracker.EstimateMonthly(cfg.Estimate, cfg.Router.Tiers, cfg.Pricing())
				},
				Logger:  log,
				Version: version,
			}
			if st.ledger != nil {
				opts.Ledger = st.ledger
			}

			return mcp.New(st.svc, opts).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
