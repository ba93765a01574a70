// Package config builds the immutable run configuration from a YAML file, a
// .env file, environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/obscan/internal/net/breaker"
	"github.com/sawpanic/obscan/internal/net/ratelimit"
	"github.com/sawpanic/obscan/internal/reconcile"
	"github.com/sawpanic/obscan/internal/scanner"
	"github.com/sawpanic/obscan/internal/signals"
)

// Config is constructed once at startup and passed to every component
type Config struct {
	LogLevel string `yaml:"log_level"`

	Thresholds ThresholdConfig  `yaml:"thresholds"`
	Scan       ScanConfig       `yaml:"scan"`
	Valuation  ValuationConfig  `yaml:"valuation"`
	Venues     VenuesConfig     `yaml:"venues"`
	Breaker    breaker.Settings `yaml:"breaker"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Server     ServerConfig     `yaml:"server"`
}

// ThresholdConfig holds the signal and gate thresholds. All are required.
type ThresholdConfig struct {
	MarketLimit    float64                  `yaml:"market_limit"`    // FDV ceiling, USD
	DepthLimit     int                      `yaml:"depth_limit"`     // orderbook levels requested
	BidWallUSD     float64                  `yaml:"bid_wall_usd"`    // wall notional, USD
	BandPct        float64                  `yaml:"band_pct"`        // fraction of mid, 0-1
	ImbalanceRatio float64                  `yaml:"imbalance_ratio"` // bid/ask depth ratio
	PriceDiffPct   float64                  `yaml:"price_diff_pct"`  // percent, 0-100
	DivergenceMode reconcile.DivergenceMode `yaml:"divergence_mode"`
}

type ScanConfig struct {
	Concurrency int           `yaml:"concurrency"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
	SampleCap   int           `yaml:"sample_cap"`
	Seed        int64         `yaml:"seed"`
}

type ValuationConfig struct {
	BatchSize   int           `yaml:"batch_size"`
	BatchDelay  time.Duration `yaml:"batch_delay"`
	CoinListTTL time.Duration `yaml:"coin_list_ttl"`
}

type VenueConfig struct {
	BaseURL string               `yaml:"base_url"`
	Limit   ratelimit.VenueLimit `yaml:"rate_limit"`
}

type VenuesConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Bitget         VenueConfig   `yaml:"bitget"`
	Binance        VenueConfig   `yaml:"binance"`
	Hyperliquid    VenueConfig   `yaml:"hyperliquid"`
	CoinGecko      VenueConfig   `yaml:"coingecko"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	Endpoint string `yaml:"endpoint"`
}

type RedisConfig struct {
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

type PostgresConfig struct {
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ConfigurationError reports every invalid or missing setting at once
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// IsConfigurationError reports whether err wraps a *ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Defaults returns every non-threshold setting at its default
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Thresholds: ThresholdConfig{
			DivergenceMode: reconcile.DivergenceGate,
		},
		Scan: ScanConfig{
			Concurrency: scanner.DefaultConcurrency,
			TaskTimeout: scanner.DefaultTaskTimeout,
			SampleCap:   200,
		},
		Valuation: ValuationConfig{
			BatchSize:   100,
			BatchDelay:  time.Second,
			CoinListTTL: 6 * time.Hour,
		},
		Venues: VenuesConfig{
			RequestTimeout: 10 * time.Second,
			Bitget:         VenueConfig{Limit: ratelimit.VenueLimit{RPS: 15, Burst: 20}},
			Binance:        VenueConfig{Limit: ratelimit.VenueLimit{RPS: 20, Burst: 20}},
			Hyperliquid:    VenueConfig{Limit: ratelimit.VenueLimit{RPS: 5, Burst: 5}},
			CoinGecko:      VenueConfig{Limit: ratelimit.VenueLimit{RPS: 0.5, Burst: 1}},
		},
		Breaker:  breaker.DefaultSettings(),
		Redis:    RedisConfig{Prefix: "obscan:"},
		Postgres: PostgresConfig{Timeout: 5 * time.Second},
		Server:   ServerConfig{Addr: ":8080"},
	}
}

// Load reads path (optional), then envFile (optional, ignored when absent),
// then the process environment, and validates the result.
func Load(path, envFile string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("read %s: %v", path, err)}}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("parse %s: %v", path, err)}}
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("load %s: %v", envFile, err)}}
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

type envBinding struct {
	name  string
	apply func(string) error
}

func (c *Config) envBindings() []envBinding {
	return []envBinding{
		{"MARKET_LIMIT", floatVar(&c.Thresholds.MarketLimit)},
		{"OB_LIMIT", intVar(&c.Thresholds.DepthLimit)},
		{"BID_WALL_THRESHOLD", floatVar(&c.Thresholds.BidWallUSD)},
		{"IMBALANCE_PERCENT", floatVar(&c.Thresholds.BandPct)},
		{"OB_IMBAL_THRESHOLD", floatVar(&c.Thresholds.ImbalanceRatio)},
		{"PRICE_DIFF_THRESHOLD", floatVar(&c.Thresholds.PriceDiffPct)},
		{"DIVERGENCE_MODE", func(v string) error {
			c.Thresholds.DivergenceMode = reconcile.DivergenceMode(strings.ToLower(v))
			return nil
		}},
		{"SCAN_CONCURRENCY", intVar(&c.Scan.Concurrency)},
		{"SCAN_TASK_TIMEOUT", durationVar(&c.Scan.TaskTimeout)},
		{"SCAN_SAMPLE_CAP", intVar(&c.Scan.SampleCap)},
		{"LOG_LEVEL", stringVar(&c.LogLevel)},
		{"TELEGRAM_BOT_TOKEN", stringVar(&c.Telegram.BotToken)},
		{"TELEGRAM_CHAT_ID", stringVar(&c.Telegram.ChatID)},
		{"REDIS_ADDR", stringVar(&c.Redis.Addr)},
		{"DATABASE_URL", stringVar(&c.Postgres.DSN)},
		{"OBSCAN_ADDR", stringVar(&c.Server.Addr)},
	}
}

func (c *Config) applyEnv(lookup lookupFunc) error {
	var problems []string
	for _, b := range c.envBindings() {
		v, ok := lookup(b.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.apply(strings.TrimSpace(v)); err != nil {
			problems = append(problems, fmt.Sprintf("%s=%q: %v", b.name, v, err))
		}
	}
	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

func floatVar(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.New("not a number")
		}
		*dst = f
		return nil
	}
}

func intVar(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("not an integer")
		}
		*dst = n
		return nil
	}
}

func durationVar(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.New("not a duration")
		}
		*dst = d
		return nil
	}
}

func stringVar(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

// Validate checks every setting and reports all problems together
func (c *Config) Validate() error {
	var p []string
	t := c.Thresholds

	if t.MarketLimit <= 0 {
		p = append(p, "market_limit (MARKET_LIMIT) must be > 0")
	}
	if t.DepthLimit <= 0 {
		p = append(p, "depth_limit (OB_LIMIT) must be > 0")
	}
	if t.BidWallUSD <= 0 {
		p = append(p, "bid_wall_usd (BID_WALL_THRESHOLD) must be > 0")
	}
	if t.BandPct <= 0 || t.BandPct >= 1 {
		p = append(p, "band_pct (IMBALANCE_PERCENT) must be in (0, 1)")
	}
	if t.ImbalanceRatio <= 0 {
		p = append(p, "imbalance_ratio (OB_IMBAL_THRESHOLD) must be > 0")
	}
	if !t.DivergenceMode.Valid() {
		p = append(p, fmt.Sprintf("divergence_mode %q must be gate or informational", t.DivergenceMode))
	}
	if t.PriceDiffPct < 0 || t.PriceDiffPct > 100 {
		p = append(p, "price_diff_pct (PRICE_DIFF_THRESHOLD) must be in [0, 100]")
	} else if t.DivergenceMode == reconcile.DivergenceGate && t.PriceDiffPct == 0 {
		p = append(p, "price_diff_pct (PRICE_DIFF_THRESHOLD) is required in gate mode")
	}

	if c.Scan.Concurrency <= 0 {
		p = append(p, "scan.concurrency (SCAN_CONCURRENCY) must be > 0")
	}
	if c.Scan.TaskTimeout <= 0 {
		p = append(p, "scan.task_timeout must be > 0")
	}
	if c.Scan.SampleCap < 0 {
		p = append(p, "scan.sample_cap must be >= 0")
	}
	if c.Valuation.BatchSize <= 0 || c.Valuation.BatchSize > 250 {
		p = append(p, "valuation.batch_size must be in [1, 250]")
	}
	if c.Valuation.BatchDelay < 0 {
		p = append(p, "valuation.batch_delay must be >= 0")
	}
	if c.Venues.RequestTimeout <= 0 {
		p = append(p, "venues.request_timeout must be > 0")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		p = append(p, "telegram bot_token and chat_id must be set together")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		p = append(p, err.Error())
	}

	if len(p) > 0 {
		return &ConfigurationError{Problems: p}
	}
	return nil
}

// SignalThresholds returns the evaluator thresholds
func (c *Config) SignalThresholds() signals.Thresholds {
	return signals.Thresholds{
		BandPct:        c.Thresholds.BandPct,
		BidWallUSD:     c.Thresholds.BidWallUSD,
		ImbalanceRatio: c.Thresholds.ImbalanceRatio,
	}
}

// ScannerOptions returns the scanner configuration
func (c *Config) ScannerOptions() scanner.Options {
	return scanner.Options{
		Concurrency: c.Scan.Concurrency,
		TaskTimeout: c.Scan.TaskTimeout,
		DepthLimit:  c.Thresholds.DepthLimit,
		Thresholds:  c.SignalThresholds(),
		Reconcile: reconcile.Config{
			PriceDiffPct: c.Thresholds.PriceDiffPct,
			Mode:         c.Thresholds.DivergenceMode,
		},
	}
}

// VenueLimits returns the per-venue rate limits keyed by venue name
func (c *Config) VenueLimits() map[string]ratelimit.VenueLimit {
	return map[string]ratelimit.VenueLimit{
		"bitget":      c.Venues.Bitget.Limit,
		"binance":     c.Venues.Binance.Limit,
		"hyperliquid": c.Venues.Hyperliquid.Limit,
		"coingecko":   c.Venues.CoinGecko.Limit,
	}
}
