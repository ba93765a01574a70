package domain

import "strings"

// TokenCandidate identifies a token that survived the valuation pre-filter
type TokenCandidate struct {
	Symbol      string  `json:"symbol"`       // display symbol, lower-case
	VenueSymbol string  `json:"venue_symbol"` // target-venue base symbol
	CoinGeckoID string  `json:"coingecko_id,omitempty"`
	FDV         float64 `json:"fdv"`
	MarketCap   float64 `json:"market_cap,omitempty"`
}

// SymbolSet is a read-only set of upper-case base symbols listed on a venue
type SymbolSet map[string]struct{}

// NewSymbolSet builds a set from base symbols; case is normalized
func NewSymbolSet(symbols ...string) SymbolSet {
	set := make(SymbolSet, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(s)] = struct{}{}
	}
	return set
}

// Contains reports whether the symbol is listed, case-insensitively
func (s SymbolSet) Contains(symbol string) bool {
	_, ok := s[strings.ToUpper(symbol)]
	return ok
}

// Len returns the number of listed symbols
func (s SymbolSet) Len() int {
	return len(s)
}
