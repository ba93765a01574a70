package signals

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/obscan/internal/domain"
)

func book(bids, asks [][2]float64) *domain.OrderbookSnapshot {
	s := &domain.OrderbookSnapshot{Symbol: "TEST", Venue: "bitget", Timestamp: time.Now()}
	for _, b := range bids {
		s.Bids = append(s.Bids, domain.PriceLevel{Price: b[0], Size: b[1]})
	}
	for _, a := range asks {
		s.Asks = append(s.Asks, domain.PriceLevel{Price: a[0], Size: a[1]})
	}
	return s
}

var defaultThresholds = Thresholds{BandPct: 0.05, BidWallUSD: 100, ImbalanceRatio: 3}

func TestEvaluate_InsufficientData(t *testing.T) {
	tests := []struct {
		name string
		snap *domain.OrderbookSnapshot
	}{
		{"nil_snapshot", nil},
		{"empty_bids", book(nil, [][2]float64{{10.1, 5}})},
		{"empty_asks", book([][2]float64{{9.9, 5}}, nil)},
		{"both_empty", book(nil, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.snap, defaultThresholds)
			require.ErrorIs(t, err, domain.ErrInsufficientData)
		})
	}
}

func TestEvaluate_ScenarioFoo(t *testing.T) {
	snap := book(
		[][2]float64{{9.9, 20}, {9.8, 30}, {9.7, 30}, {9.0, 500}},
		[][2]float64{{10.1, 10}, {10.2, 10}, {11.0, 400}},
	)

	res, err := Evaluate(snap, defaultThresholds)
	require.NoError(t, err)

	assert.InDelta(t, 10.0, res.MidPrice, 1e-9)
	assert.InDelta(t, 80.0, res.BidDepth, 1e-9)
	assert.InDelta(t, 20.0, res.AskDepth, 1e-9)
	require.NotNil(t, res.ImbalanceRatio)
	assert.Equal(t, 4.0, *res.ImbalanceRatio)
	assert.True(t, res.ImbalanceSignal)

	assert.True(t, res.BidWall)
	require.NotNil(t, res.BidWallPrice)
	require.NotNil(t, res.BidWallNotional)
	assert.Equal(t, 9.9, *res.BidWallPrice)
	assert.InDelta(t, 198.0, *res.BidWallNotional, 1e-9)
	assert.True(t, res.Triggered())
}

func TestEvaluate_ZeroAskDepthIsPositiveSignal(t *testing.T) {
	// the only ask sits above mid*(1+band), so no ask depth is counted
	snap := book(
		[][2]float64{{9.0, 10}},
		[][2]float64{{11.0, 10}},
	)
	th := Thresholds{BandPct: 0.05, BidWallUSD: 1000, ImbalanceRatio: 3}

	res, err := Evaluate(snap, th)
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.AskDepth)
	assert.Nil(t, res.ImbalanceRatio)
	assert.True(t, res.ImbalanceSignal)
}

func TestEvaluate_ImbalanceThresholdBoundary(t *testing.T) {
	tests := []struct {
		name      string
		bidSize   float64
		askSize   float64
		wantRatio float64
		wantFire  bool
	}{
		{"exactly_threshold", 30, 10, 3.0, true},
		{"rounds_up_to_threshold", 29.96, 10, 3.0, true},
		{"rounds_down_to_threshold", 30.04, 10, 3.0, true},
		{"just_below_threshold", 29.94, 10, 2.99, false},
		{"well_above", 50, 10, 5.0, true},
		{"balanced", 10, 10, 1.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := book(
				[][2]float64{{99.9, tt.bidSize}},
				[][2]float64{{100.1, tt.askSize}},
			)
			res, err := Evaluate(snap, Thresholds{BandPct: 0.01, BidWallUSD: 1e9, ImbalanceRatio: 3})
			require.NoError(t, err)
			require.NotNil(t, res.ImbalanceRatio)
			assert.Equal(t, tt.wantRatio, *res.ImbalanceRatio)
			assert.Equal(t, tt.wantFire, res.ImbalanceSignal)
		})
	}
}

func TestEvaluate_ZeroRatioIsNegativeSignal(t *testing.T) {
	// a present ratio of 0.00 is below any threshold, unlike an absent one
	tests := []struct {
		name    string
		bidSize float64
	}{
		{"no_bid_size_in_band", 0},
		{"rounds_to_zero", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := book(
				[][2]float64{{99.9, tt.bidSize}},
				[][2]float64{{100.1, 1000}},
			)
			res, err := Evaluate(snap, Thresholds{BandPct: 0.01, BidWallUSD: 1e9, ImbalanceRatio: 3})
			require.NoError(t, err)
			require.NotNil(t, res.ImbalanceRatio)
			assert.Equal(t, 0.0, *res.ImbalanceRatio)
			assert.False(t, res.ImbalanceSignal)
		})
	}
}

func TestRoundRatio(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{2.675, 2.67}, // binary value is below the tie
		{1.005, 1.0},
		{0.125, 0.12}, // exact tie, half to even
		{0.375, 0.38},
		{2.5, 2.5},
		{4.0, 4.0},
		{1.0 / 3.0, 0.33},
		{2.996, 3.0},
		{12345.678, 12345.68},
		{0.001, 0},
		{0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, roundRatio(tt.in))
		})
	}
}

func TestEvaluate_BandExcludesFarLevels(t *testing.T) {
	snap := book(
		[][2]float64{{99.5, 10}, {98.0, 1000}},
		[][2]float64{{100.5, 10}, {102.0, 1000}},
	)
	res, err := Evaluate(snap, Thresholds{BandPct: 0.01, BidWallUSD: 1e9, ImbalanceRatio: 3})
	require.NoError(t, err)

	assert.InDelta(t, 10.0, res.BidDepth, 1e-9)
	assert.InDelta(t, 10.0, res.AskDepth, 1e-9)
	require.NotNil(t, res.ImbalanceRatio)
	assert.Equal(t, 1.0, *res.ImbalanceRatio)
	assert.False(t, res.ImbalanceSignal)
	assert.False(t, res.BidWall)
	assert.Nil(t, res.BidWallPrice)
	assert.Nil(t, res.BidWallNotional)
}

func TestFirstBidWall(t *testing.T) {
	tests := []struct {
		name      string
		bids      [][2]float64
		threshold float64
		wantOK    bool
		wantPrice float64
	}{
		{
			name:      "top_level_too_small_next_qualifies",
			bids:      [][2]float64{{100, 1}, {99, 50}},
			threshold: 4000,
			wantOK:    true,
			wantPrice: 99,
		},
		{
			name:      "first_qualifying_not_largest",
			bids:      [][2]float64{{100, 45}, {99, 500}},
			threshold: 4000,
			wantOK:    true,
			wantPrice: 100,
		},
		{
			name:      "inclusive_threshold",
			bids:      [][2]float64{{100, 40}},
			threshold: 4000,
			wantOK:    true,
			wantPrice: 100,
		},
		{
			name:      "none_qualifies",
			bids:      [][2]float64{{100, 1}, {99, 2}},
			threshold: 4000,
			wantOK:    false,
		},
		{
			name:      "empty",
			bids:      nil,
			threshold: 1,
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels := book(tt.bids, nil).Bids
			level, ok := FirstBidWall(levels, tt.threshold)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantPrice, level.Price)
			}
		})
	}
}

func TestEvaluate_BidWallOutsideBandStillCounts(t *testing.T) {
	snap := book(
		[][2]float64{{99.9, 1}, {80, 100}},
		[][2]float64{{100.1, 1}},
	)
	res, err := Evaluate(snap, Thresholds{BandPct: 0.01, BidWallUSD: 5000, ImbalanceRatio: 1})
	require.NoError(t, err)

	require.True(t, res.BidWall)
	assert.Equal(t, 80.0, *res.BidWallPrice)
	assert.Equal(t, 8000.0, *res.BidWallNotional)
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, defaultThresholds.Validate())
	assert.Error(t, Thresholds{BandPct: 0, BidWallUSD: 1, ImbalanceRatio: 1}.Validate())
	assert.Error(t, Thresholds{BandPct: 1, BidWallUSD: 1, ImbalanceRatio: 1}.Validate())
	assert.Error(t, Thresholds{BandPct: 0.1, BidWallUSD: 0, ImbalanceRatio: 1}.Validate())
	assert.Error(t, Thresholds{BandPct: 0.1, BidWallUSD: 1, ImbalanceRatio: 0}.Validate())
}
