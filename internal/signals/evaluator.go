// Package signals computes orderbook manipulation heuristics from a single
// depth snapshot: liquidity imbalance inside a band around mid, and the
// nearest-to-top bid wall.
package signals

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/obscan/internal/domain"
)

// Thresholds configures signal evaluation
type Thresholds struct {
	BandPct        float64 // fraction of mid, 0-1
	BidWallUSD     float64 // minimum notional for a single bid level
	ImbalanceRatio float64 // bid/ask depth ratio at or above which the signal fires
}

// Validate checks threshold sanity
func (t Thresholds) Validate() error {
	if t.BandPct <= 0 || t.BandPct >= 1 {
		return fmt.Errorf("band pct must be in (0,1), got %v", t.BandPct)
	}
	if t.BidWallUSD <= 0 {
		return fmt.Errorf("bid wall threshold must be positive, got %v", t.BidWallUSD)
	}
	if t.ImbalanceRatio <= 0 {
		return fmt.Errorf("imbalance ratio threshold must be positive, got %v", t.ImbalanceRatio)
	}
	return nil
}

// Evaluate derives the signal result for one snapshot. It fails with
// domain.ErrInsufficientData when either side of the book is empty.
func Evaluate(snapshot *domain.OrderbookSnapshot, th Thresholds) (domain.SignalResult, error) {
	mid, err := snapshot.MidPrice()
	if err != nil {
		return domain.SignalResult{}, err
	}

	minBid := mid * (1 - th.BandPct)
	maxAsk := mid * (1 + th.BandPct)

	result := domain.SignalResult{MidPrice: mid}

	for _, bid := range snapshot.Bids {
		if bid.Price >= minBid && bid.Price <= mid {
			result.BidDepth += bid.Size
		}
	}
	for _, ask := range snapshot.Asks {
		if ask.Price >= mid && ask.Price <= maxAsk {
			result.AskDepth += ask.Size
		}
	}

	if result.AskDepth != 0 {
		ratio := roundRatio(result.BidDepth / result.AskDepth)
		result.ImbalanceRatio = &ratio
	}

	// An undefined ratio (no asks inside the band) counts as imbalanced.
	result.ImbalanceSignal = !(result.ImbalanceRatio != nil && *result.ImbalanceRatio < th.ImbalanceRatio)

	if level, ok := FirstBidWall(snapshot.Bids, th.BidWallUSD); ok {
		price := level.Price
		notional := level.Notional()
		result.BidWall = true
		result.BidWallPrice = &price
		result.BidWallNotional = &notional
	}

	return result, nil
}

// FirstBidWall walks bids best-to-worst and returns the first level whose
// notional meets the threshold. Deeper levels are never considered once a
// wall is found nearer the top.
func FirstBidWall(bids []domain.PriceLevel, thresholdUSD float64) (domain.PriceLevel, bool) {
	for _, level := range bids {
		if level.Notional() >= thresholdUSD {
			return level, true
		}
	}
	return domain.PriceLevel{}, false
}

// roundRatio rounds the exact binary value of v to 2 places, half to even.
// 2.675 is stored as 2.67499... and so rounds to 2.67.
func roundRatio(v float64) float64 {
	return exactDecimal(v).RoundBank(2).InexactFloat64()
}

// exactDecimal expands a finite float64 without the shortest-representation
// step that decimal.NewFromFloat applies: v = mant * 2^exp = mant * 5^-exp * 10^exp.
func exactDecimal(v float64) decimal.Decimal {
	if v == 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return decimal.Zero
	}
	frac, exp := math.Frexp(v)
	mant := big.NewInt(int64(frac * (1 << 53)))
	exp -= 53
	if exp >= 0 {
		return decimal.NewFromBigInt(mant.Lsh(mant, uint(exp)), 0)
	}
	pow := new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(-exp)), nil)
	return decimal.NewFromBigInt(mant.Mul(mant, pow), int32(exp))
}
