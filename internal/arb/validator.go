// Package arb holds the pure validation math for arbitrage opportunities:
// fee-adjusted ROI, liquidity sufficiency, and the price-consistency guard.
// Nothing here errors or blocks; every function returns a number or a
// boolean and the caller ANDs the verdicts.
package arb

import "math"

// FeeAdjustedROI computes the arbitrage return, in percent, of buying one
// outcome at buyPrice (implied probability, 0..1) and hedging at hedgeOdds
// (decimal) on a venue charging feeRate commission on winnings.
//
// The hedge leg's fee-net implied probability is 1/(1+(odds-1)(1-fee)); the
// total cost of covering both outcomes is buyPrice plus that probability,
// and ROI is the profit per unit of that cost. Non-positive means no
// opportunity. Invalid inputs return a hard negative rather than an error.
func FeeAdjustedROI(buyPrice, hedgeOdds, feeRate float64) float64 {
	if buyPrice <= 0 || buyPrice >= 1 || hedgeOdds <= 1 || feeRate < 0 || feeRate >= 1 {
		return -100
	}
	netOdds := 1 + (hedgeOdds-1)*(1-feeRate)
	if netOdds <= 1 {
		return -100
	}
	impliedHedge := 1 / netOdds
	totalCost := buyPrice + impliedHedge
	return (1/totalCost - 1) * 100
}

// HedgeImpliedProbability exposes the fee-net hedge probability used by
// FeeAdjustedROI, for logging and price-consistency checks.
func HedgeImpliedProbability(hedgeOdds, feeRate float64) float64 {
	netOdds := 1 + (hedgeOdds-1)*(1-feeRate)
	if netOdds <= 1 {
		return 1
	}
	return 1 / netOdds
}

// CheckLiquidity reports whether the executable size, the minimum of the
// two sides, clears the floor.
func CheckLiquidity(sideAUSD, sideBUSD, minUSD float64) bool {
	executable := math.Min(sideAUSD, sideBUSD)
	return executable >= minUSD
}

// CheckPriceConsistency guards against wrong-market matches: implied
// probabilities further apart than maxDiff signal the two markets are not
// the same proposition, whatever the text said. Applied with live prices at
// validation time, independently of the identical check during matching.
func CheckPriceConsistency(impliedA, impliedB, maxDiff float64) bool {
	if !isFiniteProb(impliedA) || !isFiniteProb(impliedB) {
		return false
	}
	return math.Abs(impliedA-impliedB) <= maxDiff
}

func isFiniteProb(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p >= 0 && p <= 1
}

// MaxExecutableUSD is the size cap for an opportunity: the thinner leg.
func MaxExecutableUSD(sideAUSD, sideBUSD float64) float64 {
	return math.Min(sideAUSD, sideBUSD)
}
