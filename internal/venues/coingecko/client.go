// Package coingecko reads the coin list and fully diluted valuations from the
// public CoinGecko v3 API.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/obscan/internal/cache"
	"github.com/sawpanic/obscan/internal/net/client"
	"github.com/sawpanic/obscan/internal/net/ratelimit"
)

const (
	Venue          = "coingecko"
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	// DefaultBatchSize is the number of ids per /coins/markets call
	DefaultBatchSize = 100

	coinListKey = "coingecko:coins:list"
)

// Coin is one entry of /coins/list
type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Market is the valuation subset of one /coins/markets entry
type Market struct {
	ID           string   `json:"id"`
	Symbol       string   `json:"symbol"`
	Name         string   `json:"name"`
	CurrentPrice *float64 `json:"current_price"`
	MarketCap    *float64 `json:"market_cap"`
	FDV          *float64 `json:"fully_diluted_valuation"`
}

// Options tune batching and list caching
type Options struct {
	BaseURL    string
	BatchSize  int
	BatchDelay time.Duration
	Cache      cache.Cache
	ListTTL    time.Duration
}

type Client struct {
	baseURL   string
	http      *client.HTTP
	batchSize int
	pacer     *ratelimit.Pacer
	cache     cache.Cache
	listTTL   time.Duration
}

func NewClient(http *client.HTTP, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		http:      http,
		batchSize: opts.BatchSize,
		pacer:     ratelimit.NewPacer(opts.BatchDelay),
		cache:     opts.Cache,
		listTTL:   opts.ListTTL,
	}
}

// FetchCoinList returns every listed coin. With a cache configured the list is
// served from it while fresh; cache failures only cost a refetch.
func (c *Client) FetchCoinList(ctx context.Context) ([]Coin, error) {
	if c.cache != nil {
		raw, found, err := c.cache.Get(ctx, coinListKey)
		if err != nil {
			log.Warn().Err(err).Str("venue", Venue).Msg("coin list cache read failed")
		}
		if found {
			var coins []Coin
			if err := json.Unmarshal(raw, &coins); err == nil {
				log.Debug().Int("coins", len(coins)).Msg("coin list served from cache")
				return coins, nil
			}
		}
	}

	var coins []Coin
	if err := c.http.GetJSON(ctx, client.Call{Venue: Venue, Op: "coins_list"}, c.baseURL+"/coins/list", &coins); err != nil {
		return nil, err
	}

	if c.cache != nil && c.listTTL > 0 {
		if raw, err := json.Marshal(coins); err == nil {
			if err := c.cache.Set(ctx, coinListKey, raw, c.listTTL); err != nil {
				log.Warn().Err(err).Str("venue", Venue).Msg("coin list cache write failed")
			}
		}
	}
	return coins, nil
}

// SymbolIndex maps a lower-case symbol to every coin id sharing it, in list order
func SymbolIndex(coins []Coin) map[string][]string {
	index := make(map[string][]string, len(coins))
	for _, coin := range coins {
		sym := strings.ToLower(coin.Symbol)
		index[sym] = append(index[sym], coin.ID)
	}
	return index
}

// FetchMarkets fetches valuations for ids in sequential batches, pacing the
// calls with a fixed delay. A failed batch is logged and skipped; the call
// errors only when every batch failed.
func (c *Client) FetchMarkets(ctx context.Context, ids []string) ([]Market, error) {
	var (
		markets []Market
		errs    []error
		batches int
	)

	for start := 0; start < len(ids); start += c.batchSize {
		end := start + c.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		batches++

		if err := c.pacer.Wait(ctx); err != nil {
			return markets, err
		}

		log.Info().Str("venue", Venue).Int("batch", batches).Int("ids", len(batch)).Msg("fetching valuations")

		page, err := c.fetchMarketsBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return markets, ctx.Err()
			}
			log.Warn().Err(err).Str("venue", Venue).Int("batch", batches).Msg("valuation batch failed")
			errs = append(errs, err)
			continue
		}
		markets = append(markets, page...)
	}

	if batches > 0 && len(errs) == batches {
		return nil, fmt.Errorf("all %d valuation batches failed: %w", batches, errors.Join(errs...))
	}
	return markets, nil
}

func (c *Client) fetchMarketsBatch(ctx context.Context, ids []string) ([]Market, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("ids", strings.Join(ids, ","))
	q.Set("per_page", fmt.Sprint(len(ids)))
	q.Set("page", "1")
	q.Set("sparkline", "false")

	var page []Market
	err := c.http.GetJSON(ctx, client.Call{Venue: Venue, Op: "coins_markets"}, c.baseURL+"/coins/markets?"+q.Encode(), &page)
	return page, err
}
