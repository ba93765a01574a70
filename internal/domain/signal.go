package domain

// SignalResult holds the manipulation heuristics derived from one snapshot
type SignalResult struct {
	MidPrice float64 `json:"mid_price"`
	BidDepth float64 `json:"bid_depth"`
	AskDepth float64 `json:"ask_depth"`

	// ImbalanceRatio is nil when there is no ask depth inside the band
	ImbalanceRatio  *float64 `json:"imbalance_ratio"`
	ImbalanceSignal bool     `json:"imbalance_signal"`

	BidWall         bool     `json:"bid_wall"`
	BidWallPrice    *float64 `json:"bid_wall_price"`
	BidWallNotional *float64 `json:"bid_wall_notional"`
}

// Triggered reports whether both the bid-wall and imbalance signals fired
func (r SignalResult) Triggered() bool {
	return r.BidWall && r.ImbalanceSignal
}
