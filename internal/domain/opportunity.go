package domain

import "time"

// Leg is one side of a two-legged arbitrage trade.
type Leg struct {
	Venue        Venue
	MarketID     string
	TokenID      string
	Side         OrderSide
	Price        float64
	DecimalOdds  float64
	LiquidityUSD float64
}

// Opportunity is a validated price discrepancy across a mapped pair. It is a
// point-in-time artifact: prices move, so an opportunity is executed within
// the scan cycle that produced it or discarded.
type Opportunity struct {
	ID          string
	MappingID   string
	LegA        Leg
	LegB        Leg
	EVNetPct    float64 // fee-adjusted expected value, percent
	MaxSizeUSD  float64 // bounded by the thinner leg's liquidity
	FeeRate     float64
	DetectedAt  time.Time
	Explanation string
}
