// Package reconcile decides whether a triggered candidate becomes an alert by
// cross-referencing reference-venue listings and prices.
package reconcile

import (
	"context"
	"fmt"
	"math"

	"github.com/sawpanic/obscan/internal/domain"
)

// PriceFetcher returns the current price of a base symbol on reference venue B
type PriceFetcher interface {
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// DivergenceMode selects how the price-divergence threshold is applied
type DivergenceMode string

const (
	// DivergenceGate requires divergence strictly above the threshold
	DivergenceGate DivergenceMode = "gate"
	// DivergenceInformational attaches divergence to the alert without gating
	DivergenceInformational DivergenceMode = "informational"
)

// Valid reports whether the mode is recognised
func (m DivergenceMode) Valid() bool {
	return m == DivergenceGate || m == DivergenceInformational
}

// Config controls the reconciliation gates
type Config struct {
	PriceDiffPct float64 // percent, 0-100
	Mode         DivergenceMode
}

// Decision reasons
const (
	ReasonEligible         = "eligible"
	ReasonNotTriggered     = "signals_not_triggered"
	ReasonListedOnA        = "listed_on_reference_a"
	ReasonNotListedOnB     = "not_listed_on_reference_b"
	ReasonPriceUnavailable = "reference_price_unavailable"
	ReasonDivergenceTooLow = "divergence_below_threshold"
)

// Input is everything the reconciler needs for one candidate
type Input struct {
	Symbol       string
	Signal       domain.SignalResult
	InReferenceA bool
	InReferenceB bool
}

// Decision is the reconciliation outcome; Alert is nil unless eligible
type Decision struct {
	Alert  *domain.AlertRecord
	Reason string
}

// Reconciler applies the presence and divergence gates
type Reconciler struct {
	prices PriceFetcher
	config Config
}

// NewReconciler creates a reconciler. An empty mode defaults to DivergenceGate.
func NewReconciler(prices PriceFetcher, config Config) *Reconciler {
	if config.Mode == "" {
		config.Mode = DivergenceGate
	}
	return &Reconciler{prices: prices, config: config}
}

// Reconcile evaluates the gates in order: signals, absent from A, present on
// B, reference price, divergence. A reference price failure yields no alert
// and is returned as the error.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) (Decision, error) {
	if !in.Signal.Triggered() {
		return Decision{Reason: ReasonNotTriggered}, nil
	}
	if in.InReferenceA {
		return Decision{Reason: ReasonListedOnA}, nil
	}
	if !in.InReferenceB {
		return Decision{Reason: ReasonNotListedOnB}, nil
	}

	refPrice, err := r.prices.FetchPrice(ctx, in.Symbol)
	if err != nil {
		return Decision{Reason: ReasonPriceUnavailable}, err
	}
	if refPrice <= 0 {
		return Decision{Reason: ReasonPriceUnavailable},
			fmt.Errorf("non-positive reference price %v for %s", refPrice, in.Symbol)
	}

	target := in.Signal.MidPrice
	divergence := DivergencePct(target, refPrice)

	if r.config.Mode == DivergenceGate && !(divergence > r.config.PriceDiffPct) {
		return Decision{Reason: ReasonDivergenceTooLow}, nil
	}

	alert := &domain.AlertRecord{
		Symbol:         in.Symbol,
		InReferenceA:   in.InReferenceA,
		InReferenceB:   in.InReferenceB,
		ImbalanceRatio: in.Signal.ImbalanceRatio,
		ReferencePrice: refPrice,
		TargetPrice:    target,
		DivergencePct:  divergence,
	}
	if in.Signal.BidWallPrice != nil {
		alert.BidWallPrice = *in.Signal.BidWallPrice
	}
	if in.Signal.BidWallNotional != nil {
		alert.BidWallAmount = *in.Signal.BidWallNotional
	}

	return Decision{Alert: alert, Reason: ReasonEligible}, nil
}

// DivergencePct returns |target-reference| as a percentage of reference
func DivergencePct(target, reference float64) float64 {
	if reference == 0 {
		return 0
	}
	return math.Abs(target-reference) / reference * 100
}
