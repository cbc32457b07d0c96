package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	sqlitestore "github.com/pario-ai/giftrouter/pkg/cache/sqlite"
)

func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry counts (sqlite backend)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Cache.Backend != "sqlite" {
				return fmt.Errorf("cache stats reads the sqlite backend; configured backend is %q", cfg.Cache.Backend)
			}
			c, err := sqlitestore.New(cfg.Cache.SQLite.Path)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			n, err := c.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Entries: %s\nTTL:     %s\n", humanize.Comma(n), cfg.Cache.TTL)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached recommendation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, cfg.Cache, zerolog.Nop())
			if err != nil {
				return err
			}
			if store == nil {
				fmt.Println("Cache is disabled.")
				return nil
			}
			defer func() { _ = store.Close() }()

			if err := store.Clear(ctx); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Println("All cache entries cleared.")
			return nil
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired entries (sqlite backend)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			c, err := sqlitestore.New(cfg.Cache.SQLite.Path)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			n, err := c.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Purged %s expired entries.\n", humanize.Comma(n))
			return nil
		},
	}

	cmd.AddCommand(statsCmd, clearCmd, purgeCmd)
	return cmd
}
