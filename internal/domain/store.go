package domain

import (
	"context"
	"time"
)

// MappingStore persists confirmed cross-venue mappings.
type MappingStore interface {
	Upsert(ctx context.Context, m Mapping) error
	Get(ctx context.Context, sourceVenue Venue, sourceID string) (Mapping, error)
	ListActive(ctx context.Context, pair string) ([]Mapping, error)
	Delete(ctx context.Context, id string) error
}

// SuggestionStore persists graph-engine suggestions through their review
// lifecycle.
type SuggestionStore interface {
	Upsert(ctx context.Context, s MappingSuggestion) error
	Get(ctx context.Context, id string) (MappingSuggestion, error)
	// FindPairing returns the suggestion for an exact source/target pairing
	// regardless of status, or ErrNotFound.
	FindPairing(ctx context.Context, sourceVenue Venue, sourceID string, targetVenue Venue, targetID string) (MappingSuggestion, error)
	ListByStatus(ctx context.Context, status SuggestionStatus) ([]MappingSuggestion, error)
	SetStatus(ctx context.Context, id string, status SuggestionStatus) error
}

// ExecutionStore is the append-only audit log of execution attempts.
type ExecutionStore interface {
	Insert(ctx context.Context, rec ExecutionRecord) error
	ListSince(ctx context.Context, since time.Time) ([]ExecutionRecord, error)
}

// BreakerStore persists circuit-breaker state so trips survive restarts.
type BreakerStore interface {
	Load(ctx context.Context) (BreakerState, error)
	Save(ctx context.Context, s BreakerState) error
}
