package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// MappingStore implements domain.MappingStore using PostgreSQL.
type MappingStore struct {
	pool *pgxpool.Pool
}

var _ domain.MappingStore = (*MappingStore)(nil)

// NewMappingStore creates a new MappingStore.
func NewMappingStore(pool *pgxpool.Pool) *MappingStore {
	return &MappingStore{pool: pool}
}

// Upsert inserts a mapping or refreshes an existing one for the same
// source market and target venue. Re-resolving a pair updates confidence
// and last_verified rather than duplicating the row.
func (s *MappingStore) Upsert(ctx context.Context, m domain.Mapping) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mappings (id, source_venue, source_id, target_venue, target_id, source_title, target_title, confidence, source, created_at, last_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (source_venue, source_id, target_venue) DO UPDATE SET
			target_id     = EXCLUDED.target_id,
			target_title  = EXCLUDED.target_title,
			confidence    = EXCLUDED.confidence,
			source        = EXCLUDED.source,
			last_verified = EXCLUDED.last_verified`,
		m.ID, string(m.SourceVenue), m.SourceID, string(m.TargetVenue), m.TargetID,
		m.SourceTitle, m.TargetTitle, m.Confidence, string(m.Source),
		m.CreatedAt, m.LastVerified,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert mapping %s/%s: %w", m.SourceVenue, m.SourceID, err)
	}
	return nil
}

// Get returns the mapping for a source market, or domain.ErrNotFound.
func (s *MappingStore) Get(ctx context.Context, sourceVenue domain.Venue, sourceID string) (domain.Mapping, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source_venue, source_id, target_venue, target_id, source_title, target_title, confidence, source, created_at, last_verified
		FROM mappings WHERE source_venue = $1 AND source_id = $2`,
		string(sourceVenue), sourceID,
	)
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Mapping{}, domain.ErrNotFound
		}
		return domain.Mapping{}, fmt.Errorf("postgres: get mapping %s/%s: %w", sourceVenue, sourceID, err)
	}
	return m, nil
}

// ListActive returns all mappings for a venue pair key such as
// "polymarket:betfair".
func (s *MappingStore) ListActive(ctx context.Context, pair string) ([]domain.Mapping, error) {
	sourceVenue, targetVenue, ok := strings.Cut(pair, ":")
	if !ok {
		return nil, fmt.Errorf("postgres: malformed pair key %q", pair)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, source_venue, source_id, target_venue, target_id, source_title, target_title, confidence, source, created_at, last_verified
		FROM mappings WHERE source_venue = $1 AND target_venue = $2
		ORDER BY last_verified DESC`,
		sourceVenue, targetVenue,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list mappings %s: %w", pair, err)
	}
	defer rows.Close()

	var out []domain.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list mappings %s: %w", pair, err)
	}
	return out, nil
}

// Delete removes a mapping by ID.
func (s *MappingStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete mapping %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanMapping(row pgx.Row) (domain.Mapping, error) {
	var m domain.Mapping
	var sourceVenue, targetVenue, source string
	err := row.Scan(&m.ID, &sourceVenue, &m.SourceID, &targetVenue, &m.TargetID,
		&m.SourceTitle, &m.TargetTitle, &m.Confidence, &source,
		&m.CreatedAt, &m.LastVerified,
	)
	if err != nil {
		return domain.Mapping{}, err
	}
	m.SourceVenue = domain.Venue(sourceVenue)
	m.TargetVenue = domain.Venue(targetVenue)
	m.Source = domain.MappingSource(source)
	return m, nil
}
