package domain

import "time"

// SuggestionStatus is the review state of a graph-produced pairing.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionRejected SuggestionStatus = "rejected"
	SuggestionPromoted SuggestionStatus = "promoted"
)

// MappingSuggestion is a lower-trust pairing produced by the graph engine
// from orphan markets. It never feeds execution directly: promotion to a
// Mapping requires repeated agreement across cycles or operator approval.
type MappingSuggestion struct {
	ID                string
	SourceVenue       Venue
	SourceID          string
	TargetVenue       Venue
	TargetID          string
	SourceTitle       string
	TargetTitle       string
	Score             float64 // hybrid edge weight, 0..100
	ClusterConfidence float64
	Agreements        int // consecutive cycles producing this pairing
	Status            SuggestionStatus
	FirstSeen         time.Time
	LastSeen          time.Time
}
