package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/giftrouter/pkg/classifier"
	"github.com/pario-ai/giftrouter/pkg/models"
)

func newClassifyCmd(configPath *string) *cobra.Command {
	var attrs map[string]string

	cmd := &cobra.Command{
		Use:   "classify <query>",
		Short: "Score a query and show the tier and provider it would route to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			req := models.Request{Query: strings.Join(args, " ")}
			if len(attrs) > 0 {
				req.Context = make(map[string]any, len(attrs))
				for k, v := range attrs {
					req.Context[k] = v
				}
			}

			c := classifier.New(cfg.Classifier)
			b := c.Explain(req)
			tier := c.Classify(req)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SIGNAL\tPOINTS")
			fmt.Fprintf(w, "words\t%d\n", b.Words)
			fmt.Fprintf(w, "cues\t%d\n", b.Cues)
			fmt.Fprintf(w, "questions\t%d\n", b.Questions)
			fmt.Fprintf(w, "context\t%d\n", b.Context)
			fmt.Fprintf(w, "comparison\t%d\n", b.Comparison)
			fmt.Fprintf(w, "total\t%d\n", b.Total)
			if err := w.Flush(); err != nil {
				return err
			}

			target := cfg.Router.Tiers[tier]
			if target == "" {
				target = cfg.Router.Primary
			}
			fmt.Printf("\nTier: %s -> %s\n", tier, target)
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&attrs, "context", nil, "context attributes (key=value,...)")
	return cmd
}
