// Package scanner runs one bounded, concurrent pass over the candidates:
// fetch each orderbook, evaluate the heuristics, reconcile against the
// reference venues and gather the resulting alerts.
package scanner

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/obscan/internal/domain"
	"github.com/sawpanic/obscan/internal/metrics"
	"github.com/sawpanic/obscan/internal/reconcile"
	"github.com/sawpanic/obscan/internal/signals"
)

const (
	DefaultConcurrency = 20
	DefaultTaskTimeout = 15 * time.Second
)

// OrderbookFetcher reads a target-venue depth snapshot
type OrderbookFetcher interface {
	FetchOrderbook(ctx context.Context, symbol string, depthLimit int) (*domain.OrderbookSnapshot, error)
}

// PriceFetcher reads a reference-venue B price
type PriceFetcher interface {
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// Options configure one scanner
type Options struct {
	Concurrency int
	TaskTimeout time.Duration
	DepthLimit  int
	Thresholds  signals.Thresholds
	Reconcile   reconcile.Config
}

// Stats are diagnostic counters for one scan
type Stats struct {
	Candidates int           `json:"candidates"`
	Duplicates int           `json:"duplicates"`
	Skipped    int           `json:"skipped"`
	Fetched    int           `json:"fetched"`
	Evaluated  int           `json:"evaluated"`
	Signaled   int           `json:"signaled"`
	Errored    int           `json:"errored"`
	Alerted    int           `json:"alerted"`
	Duration   time.Duration `json:"duration_ns"`
}

type Scanner struct {
	books      OrderbookFetcher
	reconciler *reconcile.Reconciler
	opts       Options
	metrics    *metrics.Registry
}

// New creates a scanner. metrics may be nil.
func New(books OrderbookFetcher, prices PriceFetcher, opts Options, m *metrics.Registry) *Scanner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	return &Scanner{
		books:      books,
		reconciler: reconcile.NewReconciler(prices, opts.Reconcile),
		opts:       opts,
		metrics:    m,
	}
}

type stage string

const (
	stageFetch     stage = "fetch"
	stageEvaluate  stage = "evaluate"
	stageReconcile stage = "reconcile"
)

// outcome is what one task reports back to the collector
type outcome struct {
	symbol    string
	fetched   bool
	evaluated bool
	signaled  bool
	failedAt  stage
	err       error
	alert     *domain.AlertRecord
	dur       time.Duration
}

// Scan evaluates every distinct candidate once and returns the alerts sorted
// by symbol. Task failures are counted and logged, never returned; when ctx
// is cancelled no further tasks are dispatched.
func (s *Scanner) Scan(ctx context.Context, candidates []domain.TokenCandidate, universeA, universeB domain.SymbolSet) ([]domain.AlertRecord, Stats) {
	start := time.Now()
	unique := dedupe(candidates)
	stats := Stats{Candidates: len(unique), Duplicates: len(candidates) - len(unique)}

	results := make(chan outcome, len(unique))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)

	dispatched := 0
	for _, c := range unique {
		if ctx.Err() != nil {
			break
		}
		c := c
		dispatched++
		g.Go(func() error {
			results <- s.runTask(ctx, c, universeA, universeB)
			return nil
		})
	}
	stats.Skipped = len(unique) - dispatched

	_ = g.Wait()
	close(results)

	alerts := make([]domain.AlertRecord, 0)
	for o := range results {
		if o.fetched {
			stats.Fetched++
		}
		if o.evaluated {
			stats.Evaluated++
		}
		if o.signaled {
			stats.Signaled++
		}
		if o.err != nil {
			stats.Errored++
		}
		if o.alert != nil {
			alerts = append(alerts, *o.alert)
		}
		s.observeTask(o)
	}
	stats.Alerted = len(alerts)
	stats.Duration = time.Since(start)

	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Symbol < alerts[j].Symbol })

	if s.metrics != nil {
		s.metrics.Candidates.Add(float64(stats.Candidates))
	}

	log.Info().
		Int("candidates", stats.Candidates).
		Int("duplicates", stats.Duplicates).
		Int("skipped", stats.Skipped).
		Int("fetched", stats.Fetched).
		Int("evaluated", stats.Evaluated).
		Int("signaled", stats.Signaled).
		Int("errored", stats.Errored).
		Int("alerted", stats.Alerted).
		Dur("dur", stats.Duration).
		Msg("scan complete")

	return alerts, stats
}

func (s *Scanner) runTask(ctx context.Context, c domain.TokenCandidate, universeA, universeB domain.SymbolSet) outcome {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.TaskTimeout)
	defer cancel()

	symbol := c.VenueSymbol
	if symbol == "" {
		symbol = c.Symbol
	}
	o := s.process(ctx, symbol, universeA, universeB)
	o.dur = time.Since(start)
	if o.err != nil {
		logTaskError(o)
	}
	return o
}

func (s *Scanner) process(ctx context.Context, symbol string, universeA, universeB domain.SymbolSet) outcome {
	o := outcome{symbol: symbol}

	snapshot, err := s.books.FetchOrderbook(ctx, symbol, s.opts.DepthLimit)
	if err != nil {
		o.failedAt, o.err = stageFetch, err
		return o
	}
	o.fetched = true

	result, err := signals.Evaluate(snapshot, s.opts.Thresholds)
	if err != nil {
		o.failedAt, o.err = stageEvaluate, err
		return o
	}
	o.evaluated = true

	if !result.Triggered() {
		return o
	}
	o.signaled = true

	inA, inB := universeA.Contains(symbol), universeB.Contains(symbol)
	decision, err := s.reconciler.Reconcile(ctx, reconcile.Input{
		Symbol:       symbol,
		Signal:       result,
		InReferenceA: inA,
		InReferenceB: inB,
	})
	if err != nil {
		o.failedAt, o.err = stageReconcile, err
		return o
	}

	log.Debug().Str("symbol", symbol).Str("reason", decision.Reason).
		Bool("in_a", inA).Bool("in_b", inB).Msg("reconciled")

	o.alert = decision.Alert
	return o
}

func (s *Scanner) observeTask(o outcome) {
	if s.metrics == nil {
		return
	}
	if o.fetched {
		s.metrics.Fetched.Inc()
	}
	if o.evaluated {
		s.metrics.Evaluated.Inc()
	}
	if o.signaled {
		s.metrics.Signaled.Inc()
	}
	result := "ok"
	if o.err != nil {
		s.metrics.TaskErrors.WithLabelValues(string(o.failedAt)).Inc()
		result = "error"
	}
	if o.alert != nil {
		s.metrics.Alerted.Inc()
		result = "alert"
	}
	s.metrics.TaskDuration.WithLabelValues(result).Observe(o.dur.Seconds())
}

func logTaskError(o outcome) {
	ev := log.Warn()
	if errors.Is(o.err, domain.ErrEmptyBook) || errors.Is(o.err, domain.ErrInsufficientData) {
		ev = log.Debug()
	}
	ev.Err(o.err).Str("symbol", o.symbol).Str("stage", string(o.failedAt)).Msg("scan task failed")
}

// dedupe keeps the first candidate per symbol, case-insensitively
func dedupe(candidates []domain.TokenCandidate) []domain.TokenCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]domain.TokenCandidate, 0, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(c.VenueSymbol)
		if key == "" {
			key = strings.ToLower(c.Symbol)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
