// Package bitget reads USDT-M perpetual orderbooks and the contract list from
// the Bitget mix API.
package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/obscan/internal/domain"
	"github.com/sawpanic/obscan/internal/net/client"
)

const (
	// Venue is the venue name used for limiting, breaking and errors
	Venue = "bitget"
	// DefaultBaseURL is the public Bitget REST endpoint
	DefaultBaseURL = "https://api.bitget.com"

	contractSuffix = "USDT_UMCBL"
	productType    = "umcbl"
)

// Client talks to the Bitget mix market endpoints
type Client struct {
	baseURL string
	http    *client.HTTP
}

// NewClient creates a Bitget client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, http *client.HTTP) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: http}
}

type depthResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
		// the v1 API reports "timestamp"; some gateways emit "ts"
		Timestamp json.Number `json:"timestamp"`
		TS        json.Number `json:"ts"`
	} `json:"data"`
}

// FetchOrderbook returns the current depth snapshot for a base symbol, e.g.
// "foo" reads FOOUSDT_UMCBL. An empty side yields domain.ErrEmptyBook.
func (c *Client) FetchOrderbook(ctx context.Context, symbol string, depthLimit int) (*domain.OrderbookSnapshot, error) {
	call := client.Call{Venue: Venue, Symbol: symbol, Op: "depth"}

	q := url.Values{}
	q.Set("symbol", ContractSymbol(symbol))
	q.Set("limit", strconv.Itoa(depthLimit))
	endpoint := c.baseURL + "/api/mix/v1/market/depth?" + q.Encode()

	var resp depthResponse
	if err := c.http.GetJSON(ctx, call, endpoint, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data.Bids) == 0 || len(resp.Data.Asks) == 0 {
		return nil, &domain.FetchError{Venue: Venue, Symbol: symbol, Op: call.Op, Err: domain.ErrEmptyBook}
	}

	bids, err := parseLevels(resp.Data.Bids)
	if err != nil {
		return nil, &domain.FetchError{Venue: Venue, Symbol: symbol, Op: call.Op, Err: fmt.Errorf("bids: %w", err)}
	}
	asks, err := parseLevels(resp.Data.Asks)
	if err != nil {
		return nil, &domain.FetchError{Venue: Venue, Symbol: symbol, Op: call.Op, Err: fmt.Errorf("asks: %w", err)}
	}

	return &domain.OrderbookSnapshot{
		Symbol:    strings.ToLower(symbol),
		Venue:     Venue,
		Bids:      bids,
		Asks:      asks,
		Timestamp: parseTimestamp(resp.Data.Timestamp, resp.Data.TS),
	}, nil
}

// parseLevels converts ["price","size"] pairs keeping venue order (best first)
func parseLevels(raw [][]string) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for i, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("level %d: expected [price, size], got %d fields", i, len(pair))
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("level %d price: %w", i, err)
		}
		size, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("level %d size: %w", i, err)
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}

func parseTimestamp(candidates ...json.Number) time.Time {
	for _, ts := range candidates {
		if ms, err := ts.Int64(); err == nil && ms > 0 {
			return time.UnixMilli(ms).UTC()
		}
	}
	return time.Now().UTC()
}

type contractsResponse struct {
	Code string `json:"code"`
	Data []struct {
		Symbol string `json:"symbol"`
	} `json:"data"`
}

// FetchSymbols lists the lower-case base symbols of every USDT-M perpetual,
// de-duplicated and sorted.
func (c *Client) FetchSymbols(ctx context.Context) ([]string, error) {
	call := client.Call{Venue: Venue, Op: "contracts"}
	endpoint := c.baseURL + "/api/mix/v1/market/contracts?productType=" + productType

	var resp contractsResponse
	if err := c.http.GetJSON(ctx, call, endpoint, &resp); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(resp.Data))
	symbols := make([]string, 0, len(resp.Data))
	for _, item := range resp.Data {
		if !strings.HasSuffix(item.Symbol, contractSuffix) {
			continue
		}
		base := strings.ToLower(strings.TrimSuffix(item.Symbol, contractSuffix))
		if base == "" {
			continue
		}
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}
		symbols = append(symbols, base)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ContractSymbol maps a base symbol to its USDT-M perpetual contract id
func ContractSymbol(base string) string {
	return strings.ToUpper(base) + contractSuffix
}
