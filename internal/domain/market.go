// Package domain defines the core types shared across the cross-venue
// arbitrage engine: markets, fingerprints, mappings, opportunities,
// executions, and the capability interfaces the engine consumes.
package domain

import "time"

// Venue identifies one of the supported trading venues.
type Venue string

const (
	VenuePolymarket Venue = "polymarket" // CLOB prediction market
	VenueBetfair    Venue = "betfair"    // traditional sports exchange
	VenueSX         Venue = "sxbet"      // blockchain-settled exchange
)

// VenuePair is the canonical "source:target" key used for per-pair
// configuration (confidence minimums, execution halts).
func VenuePair(source, target Venue) string {
	return string(source) + ":" + string(target)
}

// OutcomeToken is one tradeable outcome of a market with its current price
// (implied probability, 0..1 for binary venues) and available liquidity.
type OutcomeToken struct {
	TokenID      string
	OutcomeLabel string
	Price        float64
	DecimalOdds  float64 // exchange-style odds, 0 when the venue quotes prices
	LiquidityUSD float64
}

// Market is a venue-agnostic snapshot of a single proposition. It is
// immutable for the duration of a scan cycle; the next fetch supersedes it
// rather than mutating it in place.
type Market struct {
	Venue          Venue
	ExternalID     string
	Title          string
	StartTime      time.Time
	Tokens         []OutcomeToken
	MarketTypeCode string // venue-declared type code, may be empty
	CompetitionTag string
	Region         string
	FetchedAt      time.Time
}

// PrimaryToken returns the first outcome token, which by convention is the
// "Yes" / home-side outcome on every supported venue.
func (m Market) PrimaryToken() (OutcomeToken, bool) {
	if len(m.Tokens) == 0 {
		return OutcomeToken{}, false
	}
	return m.Tokens[0], true
}

// ImpliedProbability converts the primary token to an implied probability.
// Venues quoting decimal odds are converted via 1/odds; price-quoting venues
// already express probability. Returns 0 when no usable quote exists.
func (m Market) ImpliedProbability() float64 {
	tok, ok := m.PrimaryToken()
	if !ok {
		return 0
	}
	if tok.Price > 0 {
		return tok.Price
	}
	if tok.DecimalOdds > 1 {
		return 1 / tok.DecimalOdds
	}
	return 0
}
