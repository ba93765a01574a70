package application

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/obscan/internal/cache"
	"github.com/sawpanic/obscan/internal/config"
	"github.com/sawpanic/obscan/internal/metrics"
	"github.com/sawpanic/obscan/internal/net/breaker"
	"github.com/sawpanic/obscan/internal/net/client"
	"github.com/sawpanic/obscan/internal/net/ratelimit"
	"github.com/sawpanic/obscan/internal/notify"
	"github.com/sawpanic/obscan/internal/persistence/postgres"
	"github.com/sawpanic/obscan/internal/report"
	"github.com/sawpanic/obscan/internal/scanner"
	"github.com/sawpanic/obscan/internal/universe"
	"github.com/sawpanic/obscan/internal/venues/binance"
	"github.com/sawpanic/obscan/internal/venues/bitget"
	"github.com/sawpanic/obscan/internal/venues/coingecko"
	"github.com/sawpanic/obscan/internal/venues/hyperliquid"
)

// WireOptions adjust how a Runner is assembled from configuration
type WireOptions struct {
	// DryRun delivers to the log only, ignoring Telegram and Postgres settings
	DryRun bool
}

// Wire assembles a Runner from configuration. The returned cleanup closes
// any connections opened here and must be called once the Runner is done.
func Wire(ctx context.Context, cfg *config.Config, m *metrics.Registry, opts WireOptions) (*Runner, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("cleanup failed")
			}
		}
	}

	limiter := ratelimit.NewLimiter(ratelimit.VenueLimit{}, cfg.VenueLimits())
	guard := client.NewGuard(limiter, breaker.NewSet(cfg.Breaker))
	httpc := client.NewHTTP(guard, cfg.Venues.RequestTimeout)

	var listCache cache.Cache = cache.NewMemory()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		closers = append(closers, rdb.Close)
		listCache = cache.NewRedis(rdb, cfg.Redis.Prefix)
	}

	target := bitget.NewClient(cfg.Venues.Bitget.BaseURL, httpc)
	refA := hyperliquid.NewClient(cfg.Venues.Hyperliquid.BaseURL, httpc)
	refB := binance.NewClient(cfg.Venues.Binance.BaseURL, guard, cfg.Venues.RequestTimeout)
	coins := coingecko.NewClient(httpc, coingecko.Options{
		BaseURL:    cfg.Venues.CoinGecko.BaseURL,
		BatchSize:  cfg.Valuation.BatchSize,
		BatchDelay: cfg.Valuation.BatchDelay,
		Cache:      listCache,
		ListTTL:    cfg.Valuation.CoinListTTL,
	})

	builder := universe.NewBuilder(target, coins, universe.Options{
		MarketLimit: cfg.Thresholds.MarketLimit,
		SampleCap:   cfg.Scan.SampleCap,
		Seed:        cfg.Scan.Seed,
	})

	sinks, err := buildSinks(ctx, cfg, opts, &closers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	runner := NewRunner(Deps{
		Candidates: builder,
		ReferenceA: refA,
		ReferenceB: refB,
		Scanner:    scanner.New(target, refB, cfg.ScannerOptions(), m),
		Aggregator: report.NewAggregator(),
		Notifier:   notify.NewFanout(m, sinks...),
		Metrics:    m,
	})
	return runner, cleanup, nil
}

func buildSinks(ctx context.Context, cfg *config.Config, opts WireOptions, closers *[]func() error) ([]notify.Notifier, error) {
	if opts.DryRun {
		return []notify.Notifier{notify.LogSink{}}, nil
	}

	var sinks []notify.Notifier
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sinks = append(sinks, tg)
	} else {
		sinks = append(sinks, notify.LogSink{})
	}

	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		*closers = append(*closers, closeDB(db))
		repo := postgres.NewAlertsRepo(db, cfg.Postgres.Timeout)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		sinks = append(sinks, notify.NewPostgresSink(repo))
	}
	return sinks, nil
}

func closeDB(db *sqlx.DB) func() error { return db.Close }
