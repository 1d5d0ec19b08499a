package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// SuggestionStore implements domain.SuggestionStore using PostgreSQL.
type SuggestionStore struct {
	pool *pgxpool.Pool
}

var _ domain.SuggestionStore = (*SuggestionStore)(nil)

// NewSuggestionStore creates a new SuggestionStore.
func NewSuggestionStore(pool *pgxpool.Pool) *SuggestionStore {
	return &SuggestionStore{pool: pool}
}

const suggestionCols = `id, source_venue, source_id, target_venue, target_id, source_title, target_title, score, cluster_confidence, agreements, status, first_seen, last_seen`

// Upsert inserts a suggestion or updates the existing row for the same
// pairing, keeping its ID and first_seen stable across cycles.
func (s *SuggestionStore) Upsert(ctx context.Context, sugg domain.MappingSuggestion) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mapping_suggestions (`+suggestionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (source_venue, source_id, target_venue, target_id) DO UPDATE SET
			score              = EXCLUDED.score,
			cluster_confidence = EXCLUDED.cluster_confidence,
			agreements         = EXCLUDED.agreements,
			status             = EXCLUDED.status,
			last_seen          = EXCLUDED.last_seen`,
		sugg.ID, string(sugg.SourceVenue), sugg.SourceID, string(sugg.TargetVenue), sugg.TargetID,
		sugg.SourceTitle, sugg.TargetTitle, sugg.Score, sugg.ClusterConfidence,
		sugg.Agreements, string(sugg.Status), sugg.FirstSeen, sugg.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert suggestion %s/%s: %w", sugg.SourceVenue, sugg.SourceID, err)
	}
	return nil
}

// Get returns a suggestion by ID, or domain.ErrNotFound.
func (s *SuggestionStore) Get(ctx context.Context, id string) (domain.MappingSuggestion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+suggestionCols+` FROM mapping_suggestions WHERE id = $1`, id)
	sugg, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MappingSuggestion{}, domain.ErrNotFound
		}
		return domain.MappingSuggestion{}, fmt.Errorf("postgres: get suggestion %s: %w", id, err)
	}
	return sugg, nil
}

// FindPairing returns the suggestion for an exact pairing regardless of
// status, or domain.ErrNotFound.
func (s *SuggestionStore) FindPairing(ctx context.Context, sourceVenue domain.Venue, sourceID string, targetVenue domain.Venue, targetID string) (domain.MappingSuggestion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+suggestionCols+` FROM mapping_suggestions
		WHERE source_venue = $1 AND source_id = $2 AND target_venue = $3 AND target_id = $4`,
		string(sourceVenue), sourceID, string(targetVenue), targetID,
	)
	sugg, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MappingSuggestion{}, domain.ErrNotFound
		}
		return domain.MappingSuggestion{}, fmt.Errorf("postgres: find suggestion pairing: %w", err)
	}
	return sugg, nil
}

// ListByStatus returns suggestions in the given review state, most recently
// seen first.
func (s *SuggestionStore) ListByStatus(ctx context.Context, status domain.SuggestionStatus) ([]domain.MappingSuggestion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+suggestionCols+` FROM mapping_suggestions
		WHERE status = $1 ORDER BY last_seen DESC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list suggestions %s: %w", status, err)
	}
	defer rows.Close()

	var out []domain.MappingSuggestion
	for rows.Next() {
		sugg, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan suggestion: %w", err)
		}
		out = append(out, sugg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list suggestions %s: %w", status, err)
	}
	return out, nil
}

// SetStatus moves a suggestion to a new review state.
func (s *SuggestionStore) SetStatus(ctx context.Context, id string, status domain.SuggestionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE mapping_suggestions SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("postgres: set suggestion status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSuggestion(row pgx.Row) (domain.MappingSuggestion, error) {
	var sugg domain.MappingSuggestion
	var sourceVenue, targetVenue, status string
	err := row.Scan(&sugg.ID, &sourceVenue, &sugg.SourceID, &targetVenue, &sugg.TargetID,
		&sugg.SourceTitle, &sugg.TargetTitle, &sugg.Score, &sugg.ClusterConfidence,
		&sugg.Agreements, &status, &sugg.FirstSeen, &sugg.LastSeen,
	)
	if err != nil {
		return domain.MappingSuggestion{}, err
	}
	sugg.SourceVenue = domain.Venue(sourceVenue)
	sugg.TargetVenue = domain.Venue(targetVenue)
	sugg.Status = domain.SuggestionStatus(status)
	return sugg, nil
}
