// Package client routes venue calls through the per-venue rate limiter and
// circuit breaker and maps every failure to a *domain.FetchError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/obscan/internal/domain"
	"github.com/sawpanic/obscan/internal/net/breaker"
	"github.com/sawpanic/obscan/internal/net/ratelimit"
)

const userAgent = "obscan/1.0"

// Call identifies one venue request for limiting, breaking and error reporting
type Call struct {
	Venue  string
	Symbol string
	Op     string
}

func (c Call) fail(status int, err error) *domain.FetchError {
	return &domain.FetchError{Venue: c.Venue, Symbol: c.Symbol, Op: c.Op, StatusCode: status, Err: err}
}

// Guard applies rate limiting then circuit breaking to a call
type Guard struct {
	limiter  *ratelimit.Limiter
	breakers *breaker.Set
}

// NewGuard creates a guard; either dependency may be nil to disable it
func NewGuard(limiter *ratelimit.Limiter, breakers *breaker.Set) *Guard {
	return &Guard{limiter: limiter, breakers: breakers}
}

// Do runs fn for call. Any error is returned as a *domain.FetchError.
func (g *Guard) Do(ctx context.Context, call Call, fn func(ctx context.Context) error) error {
	if g != nil && g.limiter != nil {
		if err := g.limiter.Wait(ctx, call.Venue); err != nil {
			return call.fail(0, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	run := func() error { return fn(ctx) }
	var err error
	if g != nil && g.breakers != nil {
		err = g.breakers.Execute(call.Venue, run)
	} else {
		err = run()
	}
	if err == nil {
		return nil
	}

	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return err
	}
	return call.fail(0, err)
}

// HTTP is a small JSON-over-HTTP client used by the REST venues
type HTTP struct {
	guard *Guard
	http  *http.Client
}

// NewHTTP creates a client with the given request timeout
func NewHTTP(guard *Guard, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{guard: guard, http: &http.Client{Timeout: timeout}}
}

// GetJSON issues a GET and decodes a 2xx JSON body into out
func (c *HTTP) GetJSON(ctx context.Context, call Call, url string, out any) error {
	return c.do(ctx, call, http.MethodGet, url, nil, out)
}

// PostJSON marshals body, issues a POST and decodes a 2xx JSON body into out
func (c *HTTP) PostJSON(ctx context.Context, call Call, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return call.fail(0, fmt.Errorf("encode request: %w", err))
	}
	return c.do(ctx, call, http.MethodPost, url, payload, out)
}

func (c *HTTP) do(ctx context.Context, call Call, method, url string, payload []byte, out any) error {
	return c.guard.Do(ctx, call, func(ctx context.Context) error {
		start := time.Now()

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return call.fail(0, fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return call.fail(0, err)
		}
		defer resp.Body.Close()

		log.Debug().Str("venue", call.Venue).Str("op", call.Op).Str("symbol", call.Symbol).
			Int("status", resp.StatusCode).Dur("dur", time.Since(start)).Msg("venue request")

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return call.fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", bytes.TrimSpace(snippet)))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return call.fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}
