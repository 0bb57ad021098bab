package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	loadDotEnv()

	cfg, err := readConfig()
	if err != nil {
		log.Error().Err(err).Msg("config error")
		return 1
	}

	logger := newLogger(os.Stderr, cfg.logLevel, cfg.logFormat)
	log.Logger = logger

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		logger.Error().Err(err).Msg("invalid UPSTREAM_URL")
		return 1
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	store := infra.NewStore(infra.WithSweepEvery(cfg.sweepEvery), infra.WithLogger(logger))
	defer store.Close()

	stats, closeStats, err := initStats(cfg)
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.statsBackend).Msg("stats init error")
		return 1
	}
	defer closeStats()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           newRouter(cfg, store, stats, proxy, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info().Str("addr", cfg.listenAddr).Stringer("upstream", target).Msg("gateway listening")
	logPolicies(logger, cfg)

	exit := 0
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		exit = 1
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
	}
	return exit
}

func logPolicies(logger zerolog.Logger, cfg config) {
	for _, name := range cfg.policies.Names() {
		p, _ := cfg.policies.Lookup(name)
		logger.Info().Str("policy", p.Name).Dur("window", p.Window).Int("quota", p.Quota).Msg("policy loaded")
	}
	logger.Info().
		Bool("enabled", cfg.rateEnabled).
		Str("default_policy", cfg.defaultPolicy.Name).
		Str("strict_policy", cfg.strictPolicy.Name).
		Strs("strict_prefixes", cfg.strictPrefixes).
		Dur("sweep_every", cfg.sweepEvery).
		Str("key_header", cfg.rateKeyHeader).
		Int("concurrency_max", cfg.concurrencyMax).
		Str("stats_backend", cfg.statsBackend).
		Str("stats_path", cfg.statsPath).
		Dur("concurrency_timeout", cfg.concurrencyTimeout).
		Msg("admission control configured")
}

// initStats devolve o StatsStore configurado (nil quando desligado) e a
// função que libera seus recursos.
func initStats(cfg config) (domain.StatsStore, func(), error) {
	switch cfg.statsBackend {
	case "":
		return nil, func() {}, nil
	case "memory":
		return infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.statsTrackKeys)), func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis stats ping: %w", err)
		}

		stats := infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		)
		return stats, func() { _ = rdb.Close() }, nil
	case "sqlite":
		stats, err := infra.NewSQLiteStatsStore(cfg.statsSQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return stats, func() { _ = stats.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported stats backend: %q", cfg.statsBackend)
	}
}
