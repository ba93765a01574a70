package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/obscan/internal/domain"
)

// ErrOpen is returned while a venue's breaker refuses calls
var ErrOpen = gobreaker.ErrOpenState

// Settings configures every venue breaker
type Settings struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
}

// DefaultSettings trips after five consecutive failures and probes again after 30s
func DefaultSettings() Settings {
	return Settings{
		ConsecutiveFailures: 5,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
	}
}

// Set holds one circuit breaker per venue, created lazily
type Set struct {
	mu       sync.Mutex
	settings Settings
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewSet creates an empty breaker set
func NewSet(settings Settings) *Set {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = DefaultSettings().ConsecutiveFailures
	}
	return &Set{
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (s *Set) get(venue string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[venue]; ok {
		return cb
	}

	threshold := s.settings.ConsecutiveFailures
	st := gobreaker.Settings{
		Name:     venue,
		Interval: s.settings.Interval,
		Timeout:  s.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("venue", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}
	cb := gobreaker.NewCircuitBreaker(st)
	s.breakers[venue] = cb
	return cb
}

// Only transport errors, 5xx and throttling count against a venue. An empty
// book or a rejected symbol is a valid venue answer, and a cancelled or
// timed-out task says nothing about venue health.
func countsAsSuccess(err error) bool {
	if err == nil ||
		errors.Is(err, domain.ErrEmptyBook) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var fe *domain.FetchError
	return errors.As(err, &fe) && fe.Rejected()
}

// Execute runs fn through the venue's breaker
func (s *Set) Execute(venue string, fn func() error) error {
	_, err := s.get(venue).Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// State reports the venue's current breaker state
func (s *Set) State(venue string) gobreaker.State {
	return s.get(venue).State()
}

// IsOpen reports whether err came from a refusing breaker
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
