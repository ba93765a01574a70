// Package application runs one stateless scan end to end: universe
// selection, the concurrent scan, report aggregation and delivery.
package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/obscan/internal/domain"
	"github.com/sawpanic/obscan/internal/metrics"
	"github.com/sawpanic/obscan/internal/notify"
	"github.com/sawpanic/obscan/internal/report"
	"github.com/sawpanic/obscan/internal/scanner"
	"github.com/sawpanic/obscan/internal/universe"
)

// ErrScanInProgress is returned when Run is called while another scan is running
var ErrScanInProgress = errors.New("scan already in progress")

const (
	StepUniverse = "universe"
	StepScan     = "scan"
	StepDeliver  = "deliver"
)

// CandidateSource selects the tokens to scan
type CandidateSource interface {
	Candidates(ctx context.Context) ([]domain.TokenCandidate, error)
}

// AlertScanner is the concurrent scan stage
type AlertScanner interface {
	Scan(ctx context.Context, candidates []domain.TokenCandidate, universeA, universeB domain.SymbolSet) ([]domain.AlertRecord, scanner.Stats)
}

// Deps are the collaborators of a Runner. Notifier may be nil.
type Deps struct {
	Candidates CandidateSource
	ReferenceA universe.SymbolSource
	ReferenceB universe.SymbolSource
	Scanner    AlertScanner
	Aggregator *report.Aggregator
	Notifier   notify.Notifier
	Metrics    *metrics.Registry
}

// Result describes one completed scan
type Result struct {
	StartedAt     time.Time                `json:"started_at"`
	Duration      time.Duration            `json:"duration"`
	StepDurations map[string]time.Duration `json:"step_durations"`
	Stats         scanner.Stats            `json:"stats"`
	Report        *report.Report           `json:"report"` // nil when nothing qualified
	Delivered     bool                     `json:"delivered"`
}

// Runner executes scans one at a time
type Runner struct {
	deps Deps
	mu   sync.Mutex
}

func NewRunner(deps Deps) *Runner {
	if deps.Aggregator == nil {
		deps.Aggregator = report.NewAggregator()
	}
	return &Runner{deps: deps}
}

// Run performs one scan. Universe failures abort the run. A delivery
// failure is returned alongside the completed Result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if !r.mu.TryLock() {
		return nil, ErrScanInProgress
	}
	defer r.mu.Unlock()

	res := &Result{StartedAt: time.Now().UTC(), StepDurations: make(map[string]time.Duration)}
	defer func() {
		res.Duration = time.Since(res.StartedAt)
		r.deps.Metrics.ObserveScan(res.Duration, time.Now())
	}()

	step := time.Now()
	candidates, refs, err := r.loadUniverse(ctx)
	res.StepDurations[StepUniverse] = time.Since(step)
	if err != nil {
		return nil, fmt.Errorf("universe: %w", err)
	}
	log.Info().
		Int("candidates", len(candidates)).
		Int("reference_a", len(refs.A)).
		Int("reference_b", len(refs.B)).
		Msg("Universe loaded")

	step = time.Now()
	alerts, stats := r.deps.Scanner.Scan(ctx, candidates, refs.A, refs.B)
	res.StepDurations[StepScan] = time.Since(step)
	res.Stats = stats
	res.Report = r.deps.Aggregator.Build(alerts)

	if res.Report == nil {
		log.Info().Msg("No qualifying alerts")
		return res, nil
	}
	if r.deps.Notifier == nil {
		return res, nil
	}

	step = time.Now()
	err = r.deps.Notifier.Notify(ctx, res.Report)
	res.StepDurations[StepDeliver] = time.Since(step)
	if err != nil {
		return res, fmt.Errorf("deliver: %w", err)
	}
	res.Delivered = true
	return res, nil
}

// loadUniverse fetches candidates and both reference listings in parallel
func (r *Runner) loadUniverse(ctx context.Context) ([]domain.TokenCandidate, universe.References, error) {
	var (
		candidates []domain.TokenCandidate
		refs       universe.References
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		candidates, err = r.deps.Candidates.Candidates(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		refs, err = universe.LoadReferences(gctx, r.deps.ReferenceA, r.deps.ReferenceB)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, universe.References{}, err
	}
	return candidates, refs, nil
}
