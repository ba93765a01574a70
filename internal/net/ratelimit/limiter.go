package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// VenueLimit is the token-bucket budget for one venue
type VenueLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Limiter provides per-venue rate limiting using a token bucket per venue.
// Venues without an explicit budget fall back to the default.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	budgets  map[string]VenueLimit
	fallback VenueLimit
}

// NewLimiter creates a limiter with a default budget and optional per-venue overrides
func NewLimiter(fallback VenueLimit, budgets map[string]VenueLimit) *Limiter {
	b := make(map[string]VenueLimit, len(budgets))
	for venue, limit := range budgets {
		b[venue] = limit
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		budgets:  b,
		fallback: fallback,
	}
}

func (l *Limiter) venueLimiter(venue string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[venue]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[venue]; exists {
		return limiter
	}

	budget, ok := l.budgets[venue]
	if !ok {
		budget = l.fallback
	}
	limit := rate.Limit(budget.RPS)
	if budget.RPS <= 0 {
		limit = rate.Inf
	}
	burst := budget.Burst
	if burst < 1 {
		burst = 1
	}
	limiter = rate.NewLimiter(limit, burst)
	l.limiters[venue] = limiter
	return limiter
}

// Allow reports whether a request to venue may proceed now
func (l *Limiter) Allow(venue string) bool {
	return l.venueLimiter(venue).Allow()
}

// Wait blocks until a request to venue is allowed or ctx is done
func (l *Limiter) Wait(ctx context.Context, venue string) error {
	return l.venueLimiter(venue).Wait(ctx)
}

// Stats returns the current bucket state per venue
func (l *Limiter) Stats() map[string]LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]LimiterStats, len(l.limiters))
	for venue, limiter := range l.limiters {
		stats[venue] = LimiterStats{
			Venue:           venue,
			RPS:             float64(limiter.Limit()),
			Burst:           limiter.Burst(),
			TokensAvailable: limiter.Tokens(),
		}
	}
	return stats
}

// LimiterStats represents statistics for a single venue limiter
type LimiterStats struct {
	Venue           string  `json:"venue"`
	RPS             float64 `json:"rps"`
	Burst           int     `json:"burst"`
	TokensAvailable float64 `json:"tokens_available"`
}

// Pacer enforces a fixed delay between sequential calls. The first call
// passes immediately.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a pacer allowing one call per interval
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is permitted
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
