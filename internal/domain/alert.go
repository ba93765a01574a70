package domain

// AlertRecord is the final per-candidate verdict for a qualifying token
type AlertRecord struct {
	Symbol         string   `json:"symbol"`
	InReferenceA   bool     `json:"in_reference_a"`
	InReferenceB   bool     `json:"in_reference_b"`
	BidWallPrice   float64  `json:"bid_wall_price"`
	BidWallAmount  float64  `json:"bid_wall_amount"`
	ImbalanceRatio *float64 `json:"imbalance_ratio"`
	ReferencePrice float64  `json:"reference_price"`
	TargetPrice    float64  `json:"target_price"`
	DivergencePct  float64  `json:"divergence_pct"`
}
