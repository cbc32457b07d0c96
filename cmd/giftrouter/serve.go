package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pario-ai/giftrouter/pkg/cache"
	"github.com/pario-ai/giftrouter/pkg/cache/memory"
	redisstore "github.com/pario-ai/giftrouter/pkg/cache/redis"
	sqlitestore "github.com/pario-ai/giftrouter/pkg/cache/sqlite"
	"github.com/pario-ai/giftrouter/pkg/classifier"
	"github.com/pario-ai/giftrouter/pkg/config"
	"github.com/pario-ai/giftrouter/pkg/ledger"
	"github.com/pario-ai/giftrouter/pkg/metrics"
	"github.com/pario-ai/giftrouter/pkg/provider"
	"github.com/pario-ai/giftrouter/pkg/recommend"
	"github.com/pario-ai/giftrouter/pkg/router"
	"github.com/pario-ai/giftrouter/pkg/server"
	"github.com/pario-ai/giftrouter/pkg/tracker"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the recommendation API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			log := newLogger(cfg.Log, os.Stderr)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			rec := metrics.New(reg)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := newStack(ctx, cfg, log, rec)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := server.New(cfg, st.svc, server.Options{
				Logger:   log,
				Metrics:  rec,
				Gatherer: reg,
				Version:  version,
			})

			log.Info().
				Strs("providers", cfg.AvailableProviders()).
				Bool("cache", st.cache.Enabled()).
				Bool("ledger", cfg.Ledger.Enabled).
				Msg("starting giftrouter")
			if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Info().Msg("giftrouter stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}

// stack is the recommendation pipeline shared by serve and mcp.
type stack struct {
	svc        *recommend.Service
	classifier *classifier.Classifier
	cache      *cache.Manager
	ledger     *ledger.Ledger
}

func newStack(ctx context.Context, cfg *config.Config, log zerolog.Logger, rec *metrics.Recorder) (*stack, error) {
	store, err := openStore(ctx, cfg.Cache, log)
	if err != nil {
		return nil, err
	}
	st := &stack{
		classifier: classifier.New(cfg.Classifier),
		cache: cache.NewManager(store, cache.Options{
			TTL:       cfg.Cache.TTL,
			OpTimeout: cfg.Cache.OpTimeout,
			Logger:    log.With().Str("component", "cache").Logger(),
			Metrics:   rec,
		}),
	}

	var sink tracker.Sink
	if cfg.Ledger.Enabled {
		l, err := ledger.New(cfg.Ledger.DBPath, log.With().Str("component", "ledger").Logger())
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		l.RetainFor(cfg.Ledger.Retention)
		st.ledger = l
		sink = l
	}

	providers, err := provider.FromConfig(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init providers: %w", err)
	}
	tr := tracker.New(cfg.Pricing(), tracker.Options{
		Sink:    sink,
		Metrics: rec,
		Logger:  log.With().Str("component", "tracker").Logger(),
	})
	rt := router.New(cfg, providers, tr, log.With().Str("component", "router").Logger())
	st.svc = recommend.New(st.cache, st.classifier, rt, tr, providers, recommend.Options{
		Logger:  log,
		Metrics: rec,
	})
	return st, nil
}

func (st *stack) Close() {
	_ = st.cache.Close()
	if st.ledger != nil {
		_ = st.ledger.Close()
	}
}

// openStore builds the configured cache backend. It returns a nil Store when
// caching is disabled. An unreachable Redis at startup is logged and the
// store is kept: the service runs degraded until Redis comes back.
func openStore(ctx context.Context, cfg config.CacheConfig, log zerolog.Logger) (cache.Store, error) {
	if !cfg.Enabled {
		log.Info().Msg("cache disabled")
		return nil, nil
	}
	switch cfg.Backend {
	case "redis":
		s := redisstore.New(redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.KeyPrefix,
			Timeout:  cfg.OpTimeout,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, cache degraded")
		} else {
			log.Info().Str("addr", cfg.Redis.Addr).Msg("redis cache connected")
		}
		return s, nil
	case "sqlite":
		s, err := sqlitestore.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init sqlite cache: %w", err)
		}
		s.PurgeEvery(cfg.SQLite.PurgeInterval, func(n int64, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("sqlite cache purge failed")
				return
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("purged expired cache entries")
			}
		})
		return s, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
