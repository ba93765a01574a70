package domain

import "time"

// PriceLevel is a single (price, size) entry on one side of the book
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Notional returns the USD value resting at the level
func (l PriceLevel) Notional() float64 {
	return l.Price * l.Size
}

// OrderbookSnapshot represents one point-in-time depth read for a symbol.
// Bids and asks are ordered best-to-worst as returned by the venue.
type OrderbookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Venue     string       `json:"venue"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// MidPrice returns the average of best bid and best ask
func (s *OrderbookSnapshot) MidPrice() (float64, error) {
	if s == nil || len(s.Bids) == 0 || len(s.Asks) == 0 {
		return 0, ErrInsufficientData
	}
	return (s.Bids[0].Price + s.Asks[0].Price) / 2, nil
}
