// Package hyperliquid lists the perpetuals traded on Hyperliquid's main dex.
package hyperliquid

import (
	"context"
	"strings"

	"github.com/sawpanic/obscan/internal/net/client"
)

const (
	Venue          = "hyperliquid"
	DefaultBaseURL = "https://api.hyperliquid.xyz"
)

type Client struct {
	baseURL string
	http    *client.HTTP
}

func NewClient(baseURL string, http *client.HTTP) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: http}
}

type metaRequest struct {
	Type string `json:"type"`
	Dex  string `json:"dex"`
}

type metaResponse struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

// FetchSymbols returns asset names from the info "meta" call, as listed.
// An empty dex selects the default perp dex.
func (c *Client) FetchSymbols(ctx context.Context) ([]string, error) {
	call := client.Call{Venue: Venue, Op: "meta"}

	var resp metaResponse
	if err := c.http.PostJSON(ctx, call, c.baseURL+"/info", metaRequest{Type: "meta", Dex: ""}, &resp); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(resp.Universe))
	for _, asset := range resp.Universe {
		if asset.Name == "" {
			continue
		}
		symbols = append(symbols, asset.Name)
	}
	return symbols, nil
}
