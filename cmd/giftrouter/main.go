package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pario-ai/giftrouter/pkg/config"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "giftrouter",
		Short:         "giftrouter: cost-aware LLM routing for gift recommendations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults plus environment when empty)")

	root.AddCommand(
		newServeCmd(&configPath),
		newClassifyCmd(&configPath),
		newCacheCmd(&configPath),
		newStatsCmd(&configPath),
		newCostCmd(&configPath),
		newConfigCmd(&configPath),
		newMCPCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads path when set, otherwise starts from the defaults. In
// both cases environment overrides are applied. The result is not validated.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg := config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "giftrouter").Logger()
}

var errNoLedger = errors.New("ledger is disabled; set ledger.enabled in the config")
