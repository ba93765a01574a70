// Package binance reads USDT-M perpetual prices and listings through the
// go-binance futures client.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/sawpanic/obscan/internal/domain"
	"github.com/sawpanic/obscan/internal/net/client"
)

// Venue is the venue name used for limiting, breaking and errors
const Venue = "binance"

const quoteAsset = "USDT"

// Client wraps a futures client with the shared venue guard
type Client struct {
	futures *futures.Client
	guard   *client.Guard
}

// NewClient creates an unauthenticated futures client. An empty baseURL keeps
// the library default (fapi.binance.com).
func NewClient(baseURL string, guard *client.Guard, timeout time.Duration) *Client {
	fc := futures.NewClient("", "")
	if baseURL != "" {
		fc.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout > 0 {
		fc.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &Client{futures: fc, guard: guard}
}

// FetchPrice returns the last traded price of {SYMBOL}USDT
func (c *Client) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	pair := strings.ToUpper(symbol) + quoteAsset
	call := client.Call{Venue: Venue, Symbol: symbol, Op: "ticker_price"}

	var price float64
	err := c.guard.Do(ctx, call, func(ctx context.Context) error {
		prices, err := c.futures.NewListPricesService().Symbol(pair).Do(ctx)
		if err != nil {
			return apiFailure(call, err)
		}
		for _, p := range prices {
			if p == nil || !strings.EqualFold(p.Symbol, pair) {
				continue
			}
			v, err := strconv.ParseFloat(p.Price, 64)
			if err != nil {
				return &domain.FetchError{Venue: Venue, Symbol: symbol, Op: call.Op, Err: fmt.Errorf("parse price %q: %w", p.Price, err)}
			}
			price = v
			return nil
		}
		return &domain.FetchError{Venue: Venue, Symbol: symbol, Op: call.Op, Err: fmt.Errorf("no price for %s", pair)}
	})
	if err != nil {
		return 0, err
	}
	return price, nil
}

// FetchSymbols lists the upper-case base symbols of USDT-margined perpetuals
func (c *Client) FetchSymbols(ctx context.Context) ([]string, error) {
	call := client.Call{Venue: Venue, Op: "exchange_info"}

	var symbols []string
	err := c.guard.Do(ctx, call, func(ctx context.Context) error {
		info, err := c.futures.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return apiFailure(call, err)
		}
		symbols = perpetualBases(info.Symbols)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

func perpetualBases(listed []futures.Symbol) []string {
	seen := make(map[string]struct{}, len(listed))
	out := make([]string, 0, len(listed))
	for _, s := range listed {
		if s.ContractType != futures.ContractTypePerpetual || s.QuoteAsset != quoteAsset {
			continue
		}
		base := strings.TrimSuffix(s.Symbol, quoteAsset)
		if base == "" {
			continue
		}
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}
		out = append(out, base)
	}
	sort.Strings(out)
	return out
}

func apiFailure(call client.Call, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fe := &domain.FetchError{Venue: call.Venue, Symbol: call.Symbol, Op: call.Op,
			Err: fmt.Errorf("api code %d: %s", apiErr.Code, apiErr.Message)}
		// -11xx are request errors (bad symbol, bad parameter)
		if apiErr.Code <= -1100 && apiErr.Code > -1200 {
			fe.StatusCode = http.StatusBadRequest
		}
		return fe
	}
	return &domain.FetchError{Venue: call.Venue, Symbol: call.Symbol, Op: call.Op, Err: err}
}
