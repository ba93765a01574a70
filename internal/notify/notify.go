// Package notify delivers scan reports to their sinks.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/obscan/internal/metrics"
	"github.com/sawpanic/obscan/internal/report"
)

// Notifier delivers one report. Callers never pass a nil report.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, r *report.Report) error
}

// Fanout delivers to every sink. A failing sink does not stop the others.
type Fanout struct {
	sinks   []Notifier
	metrics *metrics.Registry
}

// NewFanout creates a fan-out over sinks; metrics may be nil
func NewFanout(m *metrics.Registry, sinks ...Notifier) *Fanout {
	return &Fanout{sinks: sinks, metrics: m}
}

func (f *Fanout) Name() string { return "fanout" }

// Notify skips delivery entirely for a nil or empty report
func (f *Fanout) Notify(ctx context.Context, r *report.Report) error {
	if r == nil || len(r.Alerts) == 0 {
		log.Info().Msg("no alerts, nothing to deliver")
		return nil
	}

	var errs []error
	for _, sink := range f.sinks {
		err := sink.Notify(ctx, r)
		f.metrics.ObserveDelivery(sink.Name(), err)
		if err != nil {
			log.Error().Err(err).Str("sink", sink.Name()).Str("scan_id", r.ScanID).Msg("report delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		log.Info().Str("sink", sink.Name()).Str("scan_id", r.ScanID).Int("alerts", len(r.Alerts)).Msg("report delivered")
	}
	return errors.Join(errs...)
}

// LogSink writes the formatted report to the structured log
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Notify(_ context.Context, r *report.Report) error {
	for _, a := range r.Alerts {
		ev := log.Info().
			Str("scan_id", r.ScanID).
			Str("symbol", a.Symbol).
			Bool("in_reference_a", a.InReferenceA).
			Bool("in_reference_b", a.InReferenceB).
			Float64("bid_wall_price", a.BidWallPrice).
			Float64("bid_wall_amount", a.BidWallAmount).
			Float64("reference_price", a.ReferencePrice).
			Float64("target_price", a.TargetPrice).
			Float64("divergence_pct", a.DivergencePct)
		if a.ImbalanceRatio != nil {
			ev = ev.Float64("imbalance_ratio", *a.ImbalanceRatio)
		}
		ev.Msg("manipulation alert")
	}
	return nil
}
