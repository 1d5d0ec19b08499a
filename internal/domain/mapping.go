package domain

import "time"

// MappingSource records how a cross-venue mapping was established. Trust and
// expiry policy differ by source: static mappings never expire, cached and
// llm mappings carry TTLs, graph mappings require promotion first.
type MappingSource string

const (
	SourceStatic MappingSource = "static"
	SourceCache  MappingSource = "cache"
	SourceLLM    MappingSource = "llm"
	SourceGraph  MappingSource = "graph"
)

// Mapping links a market on one venue to its counterpart on another. A
// mapping is the unit of trust in the engine: only mapped pairs are ever
// priced for arbitrage.
type Mapping struct {
	ID           string
	SourceVenue  Venue
	SourceID     string
	TargetVenue  Venue
	TargetID     string
	SourceTitle  string
	TargetTitle  string
	Confidence   float64
	Source       MappingSource
	CreatedAt    time.Time
	LastVerified time.Time
}

// Pair returns the canonical venue-pair key for this mapping.
func (m Mapping) Pair() string {
	return VenuePair(m.SourceVenue, m.TargetVenue)
}
