package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when a snapshot lacks a bid or ask side
	ErrInsufficientData = errors.New("insufficient orderbook data")
	// ErrEmptyBook is returned by fetchers when the venue reports no levels
	ErrEmptyBook = errors.New("empty orderbook")
)

// FetchError describes a failed call against a venue
type FetchError struct {
	Venue      string
	Symbol     string
	Op         string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Venue, e.Op)
	if e.Symbol != "" {
		msg += " " + e.Symbol
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Rejected reports a 4xx answer about this request, such as an unknown
// symbol. Throttling (429, and 418 for Binance IP bans) is not a rejection.
func (e *FetchError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != 429 && e.StatusCode != 418
}

// IsFetchError reports whether err wraps a *FetchError
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
