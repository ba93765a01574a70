package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/sawpanic/obscan/internal/reconcile"
)

// BindFlags registers the threshold and scan overrides on fs
func BindFlags(fs *pflag.FlagSet) {
	fs.Float64("market-limit", 0, "FDV ceiling in USD (MARKET_LIMIT)")
	fs.Int("depth-limit", 0, "orderbook levels to request (OB_LIMIT)")
	fs.Float64("bid-wall", 0, "bid wall notional threshold in USD (BID_WALL_THRESHOLD)")
	fs.Float64("band-pct", 0, "imbalance band as a fraction of mid, 0-1 (IMBALANCE_PERCENT)")
	fs.Float64("imbalance-ratio", 0, "bid/ask depth ratio threshold (OB_IMBAL_THRESHOLD)")
	fs.Float64("price-diff", 0, "price divergence threshold in percent (PRICE_DIFF_THRESHOLD)")
	fs.String("divergence-mode", "", "gate or informational")
	fs.Int("concurrency", 0, "max concurrent scan tasks")
	fs.Duration("task-timeout", 0, "per-candidate task timeout")
	fs.Int("sample-cap", 0, "max symbols sent for valuation")
	fs.String("log-level", "", "trace, debug, info, warn or error")
}

// ApplyFlags copies explicitly set flags onto c and re-validates
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "market-limit":
			c.Thresholds.MarketLimit, err = fs.GetFloat64(f.Name)
		case "depth-limit":
			c.Thresholds.DepthLimit, err = fs.GetInt(f.Name)
		case "bid-wall":
			c.Thresholds.BidWallUSD, err = fs.GetFloat64(f.Name)
		case "band-pct":
			c.Thresholds.BandPct, err = fs.GetFloat64(f.Name)
		case "imbalance-ratio":
			c.Thresholds.ImbalanceRatio, err = fs.GetFloat64(f.Name)
		case "price-diff":
			c.Thresholds.PriceDiffPct, err = fs.GetFloat64(f.Name)
		case "divergence-mode":
			var mode string
			mode, err = fs.GetString(f.Name)
			c.Thresholds.DivergenceMode = reconcile.DivergenceMode(strings.ToLower(mode))
		case "concurrency":
			c.Scan.Concurrency, err = fs.GetInt(f.Name)
		case "task-timeout":
			c.Scan.TaskTimeout, err = fs.GetDuration(f.Name)
		case "sample-cap":
			c.Scan.SampleCap, err = fs.GetInt(f.Name)
		case "log-level":
			c.LogLevel, err = fs.GetString(f.Name)
		}
	})
	if err != nil {
		return &ConfigurationError{Problems: []string{err.Error()}}
	}
	return c.Validate()
}

// ParseLevel maps a configured level name to a zerolog level
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("log_level %q is not a known level", name)
	}
	return lvl, nil
}
